// Package batch runs bulk operations over recordings: spreadsheet
// imports and reprocessing sweeps. One bad row never takes down the
// rest of the job.
package batch

import (
	"time"

	"github.com/google/uuid"
)

// Job kinds.
const (
	KindImport    = "import"
	KindReprocess = "reprocess"
)

// Job statuses.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobCancelled = "cancelled"
)

// RowError records one failed row. Index is the 1-based data row
// position in the source file, header excluded.
type RowError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// ImportJob tracks a bulk operation. RowsProcessed plus RowsFailed
// equals RowsTotal once the job completes; a cancelled job stops
// counting where it stopped launching.
type ImportJob struct {
	ID            uuid.UUID  `json:"id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	FileName      string     `json:"file_name,omitempty"`
	RowsTotal     int        `json:"rows_total"`
	RowsProcessed int        `json:"rows_processed"`
	RowsFailed    int        `json:"rows_failed"`
	Errors        []RowError `json:"errors,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Row is one recording to ingest from an import file.
type Row struct {
	Index            int
	FileName         string
	FileURL          string
	PolicyTemplateID uuid.UUID
}
