// Package dispatch runs the processing workers: claim PENDING jobs, pull the
// full-title XML, extract the agency-owned subdivisions, normalize the text
// and persist the word counts. One poisoned job never stops a worker.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"ecfr-wordstats/internal/extract"
	"ecfr-wordstats/internal/normalize"
	"ecfr-wordstats/internal/pathmap"
	"ecfr-wordstats/internal/store"
)

// Queue is the job-queue slice of the store.
type Queue interface {
	ClaimPendingJobs(ctx context.Context, batchSize int, lockID uuid.UUID) ([]store.Job, error)
	CompleteJobWithCounts(ctx context.Context, job store.Job, rows []store.WordCountRow) error
	MarkJobFailed(ctx context.Context, jobID int64, errMsg string) error
	ReclaimExpiredJobs(ctx context.Context, ttl time.Duration) (int64, error)
}

// Fetcher pulls full-title XML. Satisfied by *ecfr.Client.
type Fetcher interface {
	GetFullTitleXML(ctx context.Context, title int, date string) ([]byte, error)
}

type Config struct {
	Workers          int           // concurrent workers, default 3
	BatchSize        int           // jobs claimed per round, default 10
	JobPause         time.Duration // pause between jobs of a batch, default 250ms
	IdlePause        time.Duration // pause after an empty claim, default 2s
	LockTTL          time.Duration // PROCESSING locks older than this are reclaimed, default 1h
	SweepInterval    time.Duration // how often the sweeper runs, default 1m
	TransformMapPath string        // word_transformation_map.json; empty disables persistence
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.JobPause <= 0 {
		c.JobPause = 250 * time.Millisecond
	}
	if c.IdlePause <= 0 {
		c.IdlePause = 2 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

type Dispatcher struct {
	queue      Queue
	fetcher    Fetcher
	paths      pathmap.TitlePathMap
	transforms *normalize.TransformStore
	normalizer *normalize.Normalizer
	cfg        Config
}

func New(queue Queue, fetcher Fetcher, paths pathmap.TitlePathMap, transforms *normalize.TransformStore, cfg Config) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		queue:      queue,
		fetcher:    fetcher,
		paths:      paths,
		transforms: transforms,
		normalizer: normalize.New(transforms),
		cfg:        cfg,
	}
}

// Run drives the worker loops and the lock sweeper until ctx is canceled.
// Shutdown is cooperative: a claimed batch finishes processing; anything
// still PROCESSING at exit is recovered later via the lock TTL.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.runSweeper(gctx) })
	for i := 0; i < d.cfg.Workers; i++ {
		worker := i
		g.Go(func() error { return d.runWorker(gctx, worker) })
	}
	return g.Wait()
}

func (d *Dispatcher) runWorker(ctx context.Context, worker int) error {
	logger := log.With().Int("worker", worker).Logger()
	logger.Info().Int("batch_size", d.cfg.BatchSize).Msg("worker started")

	for {
		if ctx.Err() != nil {
			logger.Info().Msg("worker stopping")
			return nil
		}
		lockID := uuid.New()
		jobs, err := d.queue.ClaimPendingJobs(ctx, d.cfg.BatchSize, lockID)
		if err != nil {
			logger.Error().Err(err).Msg("claim failed")
			if !sleepCtx(ctx, d.cfg.IdlePause) {
				return nil
			}
			continue
		}
		if len(jobs) == 0 {
			if !sleepCtx(ctx, d.cfg.IdlePause) {
				return nil
			}
			continue
		}
		logger.Info().Int("claimed", len(jobs)).Str("lock_id", lockID.String()).Msg("claimed batch")

		// The batch runs to completion even if shutdown starts mid-way.
		procCtx := context.WithoutCancel(ctx)
		for _, job := range jobs {
			d.processJob(procCtx, logger, job)
			if !sleepCtx(ctx, d.cfg.JobPause) {
				// finish the batch without pausing once shutdown begins
				continue
			}
		}
		d.persistTransforms(logger)
	}
}

// processJob runs one job end to end and records the terminal status. The
// failure write runs on its own connection, after the processing transaction
// has already rolled back.
func (d *Dispatcher) processJob(ctx context.Context, logger zerolog.Logger, job store.Job) {
	jlog := logger.With().Int64("job", job.ID).Int("title", job.TitleNumber).
		Str("version_date", job.VersionDate.Format("2006-01-02")).Logger()

	rows, err := d.buildRows(ctx, jlog, job)
	if err == nil {
		err = d.queue.CompleteJobWithCounts(ctx, job, rows)
		if err == nil {
			jlog.Info().Int("records", len(rows)).Msg("job completed")
			return
		}
	}

	jlog.Error().Err(err).Msg("job failed")
	if ferr := d.queue.MarkJobFailed(ctx, job.ID, err.Error()); ferr != nil {
		jlog.Error().Err(ferr).Msg("could not record failure")
	}
}

func (d *Dispatcher) buildRows(ctx context.Context, jlog zerolog.Logger, job store.Job) ([]store.WordCountRow, error) {
	selector := d.paths.SelectorFor(job.TitleNumber)
	if selector == nil {
		// interest filter is broader than the path map; complete as a no-op
		jlog.Warn().Msg("title not in path map, completing without records")
		return nil, nil
	}

	xmlBytes, err := d.fetcher.GetFullTitleXML(ctx, job.TitleNumber, job.VersionDate.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	extracted, err := extract.Subdivisions(xmlBytes, selector)
	if err != nil {
		return nil, err
	}

	var rows []store.WordCountRow
	for typ, byCode := range extracted {
		for code, text := range byCode {
			rows = append(rows, store.WordCountRow{
				Type:  typ,
				Code:  code,
				Words: d.normalizer.CountWords(text),
			})
		}
	}
	return rows, nil
}

func (d *Dispatcher) persistTransforms(logger zerolog.Logger) {
	if d.cfg.TransformMapPath == "" {
		return
	}
	if err := d.transforms.SaveFile(d.cfg.TransformMapPath); err != nil {
		logger.Error().Err(err).Msg("could not persist transformation map")
	}
}

func (d *Dispatcher) runSweeper(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := d.queue.ReclaimExpiredJobs(ctx, d.cfg.LockTTL)
			if err != nil {
				log.Error().Err(err).Msg("lock sweep failed")
				continue
			}
			if n > 0 {
				log.Warn().Int64("reclaimed", n).Dur("ttl", d.cfg.LockTTL).Msg("reclaimed expired job locks")
			}
		}
	}
}

// sleepCtx pauses for dur, returning false if ctx was canceled first.
func sleepCtx(ctx context.Context, dur time.Duration) bool {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
