package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"ecfr-wordstats/internal/ecfr"
)

// Store is the persistence layer over Postgres. Each method owns its own
// transaction; nothing here holds locks across calls except ClaimPendingJobs,
// which commits before returning.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InitSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS agencies (
  id BIGSERIAL PRIMARY KEY,
  agency_id TEXT UNIQUE NOT NULL,
  name TEXT NOT NULL,
  short_name TEXT,
  display_name TEXT,
  sortable_name TEXT,
  docs JSONB,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS titles (
  number INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  latest_amended_on DATE,
  latest_issue_date DATE,
  up_to_date_as_of DATE,
  reserved BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS title_versions (
  id BIGSERIAL PRIMARY KEY,
  title_number INTEGER NOT NULL REFERENCES titles(number),
  version_date DATE NOT NULL,
  amendment_date DATE,
  issue_date DATE,
  identifier TEXT NOT NULL DEFAULT '',
  name TEXT,
  part TEXT NOT NULL DEFAULT '',
  substantive BOOLEAN,
  removed BOOLEAN,
  subpart TEXT,
  type TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (title_number, version_date, identifier, part, type)
);

CREATE TABLE IF NOT EXISTS version_processing_jobs (
  id BIGSERIAL PRIMARY KEY,
  title_number INTEGER NOT NULL,
  version_date DATE NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_attempt_at TIMESTAMPTZ,
  error_message TEXT,
  lock_id UUID,
  lock_acquired_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (title_number, version_date)
);

CREATE TABLE IF NOT EXISTS version_word_counts (
  id BIGSERIAL PRIMARY KEY,
  task_id BIGINT NOT NULL REFERENCES version_processing_jobs(id),
  title_number INTEGER NOT NULL,
  version_date DATE NOT NULL,
  type TEXT NOT NULL,
  code TEXT NOT NULL,
  word_statistics JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (task_id, title_number, version_date, type, code)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON version_processing_jobs (status, created_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// UpsertAgencies replaces agency rows wholesale on their agency_id slug.
// Child agencies are flattened in by the caller.
func (s *Store) UpsertAgencies(ctx context.Context, agencies []ecfr.Agency) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
INSERT INTO agencies (agency_id, name, short_name, display_name, sortable_name, docs)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (agency_id) DO UPDATE SET
  name = excluded.name,
  short_name = excluded.short_name,
  display_name = excluded.display_name,
  sortable_name = excluded.sortable_name,
  docs = excluded.docs`
	for _, a := range agencies {
		docs, err := json.Marshal(a.CFRReferences)
		if err != nil {
			return fmt.Errorf("marshal docs for agency %q: %w", a.Slug, err)
		}
		if _, err := tx.ExecContext(ctx, q, a.Slug, a.Name, a.ShortName, a.DisplayName, a.SortableName, docs); err != nil {
			return fmt.Errorf("upsert agency %q: %w", a.Slug, err)
		}
	}
	return tx.Commit()
}

func (s *Store) UpsertTitles(ctx context.Context, titles []ecfr.Title) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
INSERT INTO titles (number, name, latest_amended_on, latest_issue_date, up_to_date_as_of, reserved)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (number) DO UPDATE SET
  name = excluded.name,
  latest_amended_on = excluded.latest_amended_on,
  latest_issue_date = excluded.latest_issue_date,
  up_to_date_as_of = excluded.up_to_date_as_of,
  reserved = excluded.reserved`
	for _, t := range titles {
		if _, err := tx.ExecContext(ctx, q, t.Number, t.Name,
			nullDate(t.LatestAmendedOn), nullDate(t.LatestIssueDate), nullDate(t.UpToDateAsOf), t.Reserved); err != nil {
			return fmt.Errorf("upsert title %d: %w", t.Number, err)
		}
	}
	return tx.Commit()
}

func (s *Store) UpsertTitleVersions(ctx context.Context, titleNumber int, versions []ecfr.TitleVersion) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
INSERT INTO title_versions (title_number, version_date, amendment_date, issue_date, identifier, name, part, substantive, removed, subpart, type)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (title_number, version_date, identifier, part, type) DO NOTHING`
	for _, v := range versions {
		if v.Date == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, q, titleNumber, v.Date,
			nullDate(v.AmendmentDate), nullDate(v.IssueDate),
			v.Identifier, v.Name, v.Part, v.Substantive, v.Removed, v.Subpart, v.Type); err != nil {
			return fmt.Errorf("upsert version %s of title %d: %w", v.Date, titleNumber, err)
		}
	}
	return tx.Commit()
}

// ListAgencies reconstructs agencies (with decoded document references) from
// their persisted rows.
func (s *Store) ListAgencies(ctx context.Context) ([]ecfr.Agency, error) {
	rows, err := s.db.QueryxContext(ctx, `
SELECT agency_id, name, COALESCE(short_name, ''), COALESCE(display_name, ''), COALESCE(sortable_name, ''), COALESCE(docs, '[]'::jsonb)
FROM agencies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list agencies: %w", err)
	}
	defer rows.Close()

	var out []ecfr.Agency
	for rows.Next() {
		var a ecfr.Agency
		var docs []byte
		if err := rows.Scan(&a.Slug, &a.Name, &a.ShortName, &a.DisplayName, &a.SortableName, &docs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(docs, &a.CFRReferences); err != nil {
			return nil, fmt.Errorf("decode docs for agency %q: %w", a.Slug, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListTitleNumbers(ctx context.Context) ([]int, error) {
	var numbers []int
	if err := s.db.SelectContext(ctx, &numbers, `SELECT number FROM titles ORDER BY number`); err != nil {
		return nil, fmt.Errorf("list title numbers: %w", err)
	}
	return numbers, nil
}

func (s *Store) ListVersionsForTitle(ctx context.Context, titleNumber int) ([]TitleVersionRow, error) {
	var out []TitleVersionRow
	err := s.db.SelectContext(ctx, &out, `
SELECT title_number, version_date, identifier, part, type
FROM title_versions
WHERE title_number = $1
ORDER BY version_date DESC`, titleNumber)
	if err != nil {
		return nil, fmt.Errorf("list versions for title %d: %w", titleNumber, err)
	}
	return out, nil
}

// CreatePendingJobs inserts PENDING jobs for the given keys, skipping any
// (title_number, version_date) that already has a job. Returns the number
// actually created. Callers batch keys to bound transaction size.
func (s *Store) CreatePendingJobs(ctx context.Context, keys []JobKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	const q = `
INSERT INTO version_processing_jobs (title_number, version_date)
VALUES ($1, $2)
ON CONFLICT (title_number, version_date) DO NOTHING`
	var created int64
	for _, k := range keys {
		res, err := tx.ExecContext(ctx, q, k.TitleNumber, k.VersionDate)
		if err != nil {
			return created, fmt.Errorf("create job title=%d date=%s: %w", k.TitleNumber, k.VersionDate.Format("2006-01-02"), err)
		}
		n, _ := res.RowsAffected()
		created += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

// ClaimPendingJobs moves up to batchSize PENDING jobs to PROCESSING under the
// given lock id. The row selection uses FOR UPDATE SKIP LOCKED so concurrent
// workers never claim the same job; the transaction commits before the batch
// is returned, making PROCESSING visible and releasing the row locks.
func (s *Store) ClaimPendingJobs(ctx context.Context, batchSize int, lockID uuid.UUID) ([]Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var ids []int64
	err = tx.SelectContext(ctx, &ids, `
SELECT id
FROM version_processing_jobs
WHERE status = 'PENDING'
ORDER BY created_at
LIMIT $1
FOR UPDATE SKIP LOCKED`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("select pending jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	query, args, err := sqlx.In(`
UPDATE version_processing_jobs
SET status = 'PROCESSING',
    attempt_count = attempt_count + 1,
    lock_id = ?,
    lock_acquired_at = now(),
    updated_at = now()
WHERE id IN (?)
RETURNING id, title_number, version_date, status, attempt_count, last_attempt_at, error_message, lock_id, lock_acquired_at, created_at, updated_at`, lockID, ids)
	if err != nil {
		return nil, err
	}
	var jobs []Job
	if err := tx.SelectContext(ctx, &jobs, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("mark jobs processing: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return jobs, nil
}

// CompleteJobWithCounts atomically replaces the word counts for the job's
// (title_number, version_date) and flips the job to COMPLETED. Rerunning a
// job therefore yields the same set of rows (delete-then-insert).
func (s *Store) CompleteJobWithCounts(ctx context.Context, job Job, rows []WordCountRow) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM version_word_counts WHERE title_number = $1 AND version_date = $2`,
		job.TitleNumber, job.VersionDate); err != nil {
		return fmt.Errorf("clear prior counts for job %d: %w", job.ID, err)
	}

	const ins = `
INSERT INTO version_word_counts (task_id, title_number, version_date, type, code, word_statistics)
VALUES ($1, $2, $3, $4, $5, $6)`
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, ins, job.ID, job.TitleNumber, job.VersionDate, r.Type, r.Code, r.Words); err != nil {
			return fmt.Errorf("insert counts (%s %s) for job %d: %w", r.Type, r.Code, job.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE version_processing_jobs
SET status = 'COMPLETED',
    error_message = NULL,
    last_attempt_at = now(),
    updated_at = now(),
    lock_id = NULL,
    lock_acquired_at = NULL
WHERE id = $1`, job.ID); err != nil {
		return fmt.Errorf("complete job %d: %w", job.ID, err)
	}
	return tx.Commit()
}

// MarkJobFailed records a terminal failure. It deliberately runs outside any
// caller transaction: the processing transaction has already rolled back, and
// the status write must survive on its own.
func (s *Store) MarkJobFailed(ctx context.Context, jobID int64, errMsg string) error {
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE version_processing_jobs
SET status = 'FAILED',
    error_message = $2,
    last_attempt_at = now(),
    updated_at = now(),
    lock_id = NULL,
    lock_acquired_at = NULL
WHERE id = $1`, jobID, errMsg)
	if err != nil {
		return fmt.Errorf("mark job %d failed: %w", jobID, err)
	}
	return nil
}

// ReclaimExpiredJobs resets PROCESSING jobs whose lock is older than ttl back
// to PENDING so another worker can pick them up.
func (s *Store) ReclaimExpiredJobs(ctx context.Context, ttl time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE version_processing_jobs
SET status = 'PENDING',
    lock_id = NULL,
    lock_acquired_at = NULL,
    updated_at = now()
WHERE status = 'PROCESSING' AND lock_acquired_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(ttl.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("reclaim expired jobs: %w", err)
	}
	return res.RowsAffected()
}

// StreamWordCounts walks every persisted word-count row in insertion order,
// invoking fn for each. Iteration stops at the first error from fn.
func (s *Store) StreamWordCounts(ctx context.Context, fn func(WordCountRecord) error) error {
	rows, err := s.db.QueryxContext(ctx, `
SELECT id, task_id, title_number, version_date, type, code, word_statistics
FROM version_word_counts
ORDER BY id`)
	if err != nil {
		return fmt.Errorf("stream word counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec WordCountRecord
		if err := rows.StructScan(&rec); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func nullDate(s string) any {
	if s == "" {
		return nil
	}
	return s
}
