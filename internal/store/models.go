package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job statuses. PENDING -> PROCESSING -> COMPLETED | FAILED.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Job is one row of version_processing_jobs. A PROCESSING job carries a
// non-nil lock; every other status has both lock fields nil.
type Job struct {
	ID             int64      `db:"id"`
	TitleNumber    int        `db:"title_number"`
	VersionDate    time.Time  `db:"version_date"`
	Status         string     `db:"status"`
	AttemptCount   int        `db:"attempt_count"`
	LastAttemptAt  *time.Time `db:"last_attempt_at"`
	ErrorMessage   *string    `db:"error_message"`
	LockID         *uuid.UUID `db:"lock_id"`
	LockAcquiredAt *time.Time `db:"lock_acquired_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// JobKey identifies the unit of work: one title at one version date.
type JobKey struct {
	TitleNumber int
	VersionDate time.Time
}

// TitleVersionRow is a persisted title_versions row, trimmed to what the
// planner and reporting need.
type TitleVersionRow struct {
	TitleNumber int       `db:"title_number"`
	VersionDate time.Time `db:"version_date"`
	Identifier  string    `db:"identifier"`
	Part        string    `db:"part"`
	Type        string    `db:"type"`
}

// WordCountRow is one (type, code) slot of a processed job, ready to insert.
type WordCountRow struct {
	Type  string
	Code  string
	Words WordStats
}

// WordCountRecord is a persisted version_word_counts row.
type WordCountRecord struct {
	ID          int64     `db:"id"`
	TaskID      int64     `db:"task_id"`
	TitleNumber int       `db:"title_number"`
	VersionDate time.Time `db:"version_date"`
	Type        string    `db:"type"`
	Code        string    `db:"code"`
	Words       WordStats `db:"word_statistics"`
}

// WordStats maps normalized token -> count. Stored as JSONB.
type WordStats map[string]int

func (w WordStats) Value() (driver.Value, error) {
	if w == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(w)
}

func (w *WordStats) Scan(src any) error {
	switch b := src.(type) {
	case []byte:
		return json.Unmarshal(b, w)
	case string:
		return json.Unmarshal([]byte(b), w)
	default:
		return fmt.Errorf("word_statistics: unsupported scan type %T", src)
	}
}
