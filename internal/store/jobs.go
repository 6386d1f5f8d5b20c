package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/anderson/internal/batch"
)

// SaveImportJob upserts a job snapshot. The orchestrator calls this after
// every row, so progress is visible while the job runs.
func (s *Store) SaveImportJob(ctx context.Context, job *batch.ImportJob) error {
	rowErrs, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("marshal row errors: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_jobs (id, kind, status, file_name, rows_total, rows_processed, rows_failed, errors, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id)
		DO UPDATE SET
			status = $3,
			rows_processed = $6,
			rows_failed = $7,
			errors = $8,
			completed_at = $10`,
		job.ID, job.Kind, job.Status, job.FileName, job.RowsTotal, job.RowsProcessed, job.RowsFailed, rowErrs, job.CreatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert import job: %w", err)
	}
	return nil
}

// LoadImportJob fetches an import job by ID.
func (s *Store) LoadImportJob(ctx context.Context, id uuid.UUID) (*batch.ImportJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, kind, status, file_name, rows_total, rows_processed, rows_failed, errors, created_at, completed_at
		FROM import_jobs WHERE id = $1`, id)

	var (
		job     batch.ImportJob
		rowErrs []byte
	)
	err := row.Scan(&job.ID, &job.Kind, &job.Status, &job.FileName, &job.RowsTotal, &job.RowsProcessed, &job.RowsFailed, &rowErrs, &job.CreatedAt, &job.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("import job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load import job: %w", err)
	}
	if len(rowErrs) > 0 {
		if err := json.Unmarshal(rowErrs, &job.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal row errors: %w", err)
		}
	}
	return &job, nil
}
