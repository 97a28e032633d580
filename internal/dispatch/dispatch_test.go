package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ecfr-wordstats/internal/normalize"
	"ecfr-wordstats/internal/pathmap"
	"ecfr-wordstats/internal/store"
)

type fakeQueue struct {
	mu       sync.Mutex
	jobs     []store.Job
	statuses map[int64]string
	errors   map[int64]string
	rows     map[int64][]store.WordCountRow
	claimers map[int64]uuid.UUID
}

func newFakeQueue(jobs ...store.Job) *fakeQueue {
	return &fakeQueue{
		jobs:     jobs,
		statuses: map[int64]string{},
		errors:   map[int64]string{},
		rows:     map[int64][]store.WordCountRow{},
		claimers: map[int64]uuid.UUID{},
	}
}

func (q *fakeQueue) ClaimPendingJobs(_ context.Context, batchSize int, lockID uuid.UUID) ([]store.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var claimed []store.Job
	for _, j := range q.jobs {
		if len(claimed) >= batchSize {
			break
		}
		if q.statuses[j.ID] == "" {
			q.statuses[j.ID] = store.StatusProcessing
			q.claimers[j.ID] = lockID
			claimed = append(claimed, j)
		}
	}
	return claimed, nil
}

func (q *fakeQueue) CompleteJobWithCounts(_ context.Context, job store.Job, rows []store.WordCountRow) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[job.ID] = store.StatusCompleted
	q.rows[job.ID] = rows
	return nil
}

func (q *fakeQueue) MarkJobFailed(_ context.Context, jobID int64, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[jobID] = store.StatusFailed
	q.errors[jobID] = errMsg
	return nil
}

func (q *fakeQueue) ReclaimExpiredJobs(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (q *fakeQueue) status(id int64) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statuses[id]
}

func (q *fakeQueue) allTerminal() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		s := q.statuses[j.ID]
		if s != store.StatusCompleted && s != store.StatusFailed {
			return false
		}
	}
	return true
}

type fakeFetcher struct {
	xml map[int][]byte
	err map[int]error
}

func (f *fakeFetcher) GetFullTitleXML(_ context.Context, title int, _ string) ([]byte, error) {
	if err := f.err[title]; err != nil {
		return nil, err
	}
	return f.xml[title], nil
}

func testConfig() Config {
	return Config{
		Workers:       1,
		BatchSize:     10,
		JobPause:      time.Millisecond,
		IdlePause:     5 * time.Millisecond,
		SweepInterval: time.Hour,
	}
}

func runUntil(t *testing.T, d *Dispatcher, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- d.Run(ctx) }()
	require.Eventually(t, done, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-finished)
}

func testJob(id int64, title int) store.Job {
	return store.Job{
		ID:          id,
		TitleNumber: title,
		VersionDate: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
		Status:      store.StatusPending,
	}
}

func chapterPaths(title int, codes ...string) pathmap.TitlePathMap {
	return pathmap.TitlePathMap{title: {"chapter": codes}}
}

func TestDispatcherHappyPath(t *testing.T) {
	queue := newFakeQueue(testJob(1, 7))
	fetcher := &fakeFetcher{xml: map[int][]byte{
		7: []byte(`<ROOT><DIV TYPE="CHAPTER" N="I">Fishing fished fishes 1999 a the</DIV></ROOT>`),
	}}
	d := New(queue, fetcher, chapterPaths(7, "I"), normalize.NewTransformStore(), testConfig())

	runUntil(t, d, queue.allTerminal)

	require.Equal(t, store.StatusCompleted, queue.status(1))
	require.Len(t, queue.rows[1], 1)
	row := queue.rows[1][0]
	require.Equal(t, "chapter", row.Type)
	require.Equal(t, "I", row.Code)
	require.Equal(t, store.WordStats{"fish": 3}, row.Words)
}

func TestDispatcherEmptySelectorMatchCompletesWithNoRecords(t *testing.T) {
	queue := newFakeQueue(testJob(1, 7))
	fetcher := &fakeFetcher{xml: map[int][]byte{
		7: []byte(`<ROOT><DIV TYPE="CHAPTER" N="I">hi</DIV></ROOT>`),
	}}
	// selector asks for chapter II, document only has chapter I
	d := New(queue, fetcher, chapterPaths(7, "II"), normalize.NewTransformStore(), testConfig())

	runUntil(t, d, queue.allTerminal)

	require.Equal(t, store.StatusCompleted, queue.status(1))
	require.Empty(t, queue.rows[1])
}

func TestDispatcherTitleMissingFromPathMapIsNoOp(t *testing.T) {
	queue := newFakeQueue(testJob(1, 14))
	fetcher := &fakeFetcher{err: map[int]error{14: fmt.Errorf("should not be fetched")}}
	d := New(queue, fetcher, chapterPaths(7, "I"), normalize.NewTransformStore(), testConfig())

	runUntil(t, d, queue.allTerminal)

	require.Equal(t, store.StatusCompleted, queue.status(1))
	require.Empty(t, queue.rows[1])
}

func TestDispatcherFailureIsolation(t *testing.T) {
	queue := newFakeQueue(testJob(1, 7), testJob(2, 50), testJob(3, 7))
	fetcher := &fakeFetcher{
		xml: map[int][]byte{
			7:  []byte(`<ROOT><DIV TYPE="CHAPTER" N="I">Fishing vessels</DIV></ROOT>`),
			50: []byte(`<ROOT><DIV TYPE="CHAPTER" N="I"`), // malformed
		},
	}
	paths := pathmap.TitlePathMap{
		7:  {"chapter": []string{"I"}},
		50: {"chapter": []string{"I"}},
	}
	d := New(queue, fetcher, paths, normalize.NewTransformStore(), testConfig())

	runUntil(t, d, queue.allTerminal)

	require.Equal(t, store.StatusCompleted, queue.status(1))
	require.Equal(t, store.StatusCompleted, queue.status(3))
	require.Equal(t, store.StatusFailed, queue.status(2))
	require.Contains(t, queue.errors[2], "parse xml")
}

func TestDispatcherTransportErrorFailsJob(t *testing.T) {
	queue := newFakeQueue(testJob(1, 7))
	fetcher := &fakeFetcher{err: map[int]error{7: fmt.Errorf("GET /full: status=502")}}
	d := New(queue, fetcher, chapterPaths(7, "I"), normalize.NewTransformStore(), testConfig())

	runUntil(t, d, queue.allTerminal)

	require.Equal(t, store.StatusFailed, queue.status(1))
	require.Contains(t, queue.errors[1], "status=502")
}

func TestDispatcherConcurrentWorkersProcessEachJobOnce(t *testing.T) {
	jobs := make([]store.Job, 0, 50)
	for i := 1; i <= 50; i++ {
		jobs = append(jobs, testJob(int64(i), 7))
	}
	queue := newFakeQueue(jobs...)
	fetcher := &fakeFetcher{xml: map[int][]byte{
		7: []byte(`<ROOT><DIV TYPE="CHAPTER" N="I">regulated fisheries</DIV></ROOT>`),
	}}
	cfg := testConfig()
	cfg.Workers = 5
	d := New(queue, fetcher, chapterPaths(7, "I"), normalize.NewTransformStore(), cfg)

	runUntil(t, d, queue.allTerminal)

	queue.mu.Lock()
	defer queue.mu.Unlock()
	require.Len(t, queue.statuses, 50)
	for id, s := range queue.statuses {
		require.Equalf(t, store.StatusCompleted, s, "job %d", id)
	}
	// every claimed job carries the lock id of exactly one claim round
	require.Len(t, queue.claimers, 50)
}
