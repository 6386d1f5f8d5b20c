package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/anderson/internal/pipeline"
)

// CreateRecording inserts a recording in its initial state.
func (s *Store) CreateRecording(ctx context.Context, rec *pipeline.Recording) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recordings (id, file_name, file_url, status, duration_seconds, transcript, confidence, redacted, policy_template_id, error_message, uploaded_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.FileName, rec.FileURL, rec.Status, rec.DurationSeconds, rec.Transcript, rec.Confidence, rec.Redacted, rec.PolicyTemplateID, rec.ErrorMessage, rec.UploadedAt, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// LoadRecording fetches a recording by ID.
func (s *Store) LoadRecording(ctx context.Context, id uuid.UUID) (*pipeline.Recording, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, file_name, file_url, status, duration_seconds, transcript, confidence, redacted, policy_template_id, error_message, uploaded_at, processed_at
		FROM recordings WHERE id = $1`, id)

	var rec pipeline.Recording
	err := row.Scan(&rec.ID, &rec.FileName, &rec.FileURL, &rec.Status, &rec.DurationSeconds, &rec.Transcript, &rec.Confidence, &rec.Redacted, &rec.PolicyTemplateID, &rec.ErrorMessage, &rec.UploadedAt, &rec.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load recording: %w", err)
	}
	return &rec, nil
}

// SaveRecordingState persists the mutable pipeline fields of a recording
// in a single statement.
func (s *Store) SaveRecordingState(ctx context.Context, rec *pipeline.Recording) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE recordings
		SET status = $1, duration_seconds = $2, transcript = $3, confidence = $4, redacted = $5, error_message = $6, processed_at = $7
		WHERE id = $8`,
		rec.Status, rec.DurationSeconds, rec.Transcript, rec.Confidence, rec.Redacted, rec.ErrorMessage, rec.ProcessedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recording %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}
