// Package planner materializes the processing queue: one PENDING job per
// (title, version date) of every title the operator is interested in and at
// least one agency is responsible for.
package planner

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"ecfr-wordstats/internal/ecfr"
	"ecfr-wordstats/internal/store"
)

// commitBatch bounds the size of each job-creation transaction.
const commitBatch = 100

// Catalog is the slice of the store the planner needs.
type Catalog interface {
	ListAgencies(ctx context.Context) ([]ecfr.Agency, error)
	ListVersionsForTitle(ctx context.Context, titleNumber int) ([]store.TitleVersionRow, error)
	CreatePendingJobs(ctx context.Context, keys []store.JobKey) (int64, error)
}

type Planner struct {
	catalog  Catalog
	interest map[int]bool
}

// New builds a planner restricted to the given interest titles. An empty
// interest set plans nothing.
func New(catalog Catalog, interestTitles []int) *Planner {
	interest := make(map[int]bool, len(interestTitles))
	for _, t := range interestTitles {
		interest[t] = true
	}
	return &Planner{catalog: catalog, interest: interest}
}

// Plan walks agencies -> interesting titles -> all versions and enqueues a
// pending job for each, newest version first. Planning is idempotent: jobs
// that already exist are skipped by the store. Returns the number of jobs
// actually created.
func (p *Planner) Plan(ctx context.Context) (int64, error) {
	agencies, err := p.catalog.ListAgencies(ctx)
	if err != nil {
		return 0, fmt.Errorf("plan: %w", err)
	}

	titleSet := map[int]bool{}
	for _, a := range agencies {
		for _, ref := range a.CFRReferences {
			if ref.Title != 0 && p.interest[ref.Title] {
				titleSet[ref.Title] = true
			}
		}
	}
	titles := make([]int, 0, len(titleSet))
	for t := range titleSet {
		titles = append(titles, t)
	}
	sort.Ints(titles)

	var pending []store.JobKey
	seen := map[store.JobKey]bool{}
	var created int64

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := p.catalog.CreatePendingJobs(ctx, pending)
		if err != nil {
			return err
		}
		created += n
		pending = pending[:0]
		return nil
	}

	for _, title := range titles {
		versions, err := p.catalog.ListVersionsForTitle(ctx, title)
		if err != nil {
			return created, fmt.Errorf("plan title %d: %w", title, err)
		}
		for _, v := range versions {
			key := store.JobKey{TitleNumber: title, VersionDate: v.VersionDate}
			if seen[key] {
				continue
			}
			seen[key] = true
			pending = append(pending, key)
			if len(pending) >= commitBatch {
				if err := flush(); err != nil {
					return created, fmt.Errorf("plan title %d: %w", title, err)
				}
			}
		}
	}
	if err := flush(); err != nil {
		return created, fmt.Errorf("plan: %w", err)
	}

	log.Info().Int("titles", len(titles)).Int64("jobs_created", created).Msg("planning complete")
	return created, nil
}
