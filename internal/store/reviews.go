package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/anderson/internal/review"
)

// CreateReview inserts a pending human review.
func (s *Store) CreateReview(ctx context.Context, rev *review.HumanReview) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO human_reviews (id, recording_id, evaluation_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rev.ID, rev.RecordingID, rev.EvaluationID, rev.Status, rev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// LoadReview fetches a human review by ID.
func (s *Store) LoadReview(ctx context.Context, id uuid.UUID) (*review.HumanReview, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, recording_id, evaluation_id, status, reviewer_id, outcome, note, score_overrides, overall_override, created_at, completed_at
		FROM human_reviews WHERE id = $1`, id)

	var (
		rev       review.HumanReview
		overrides []byte
	)
	err := row.Scan(&rev.ID, &rev.RecordingID, &rev.EvaluationID, &rev.Status, &rev.ReviewerID, &rev.Outcome, &rev.Note, &overrides, &rev.OverallOverride, &rev.CreatedAt, &rev.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("review %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load review: %w", err)
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &rev.ScoreOverrides); err != nil {
			return nil, fmt.Errorf("unmarshal score overrides: %w", err)
		}
	}
	return &rev, nil
}

// CompleteReview persists a reviewer's verdict. The evaluation the review
// points at is never touched.
func (s *Store) CompleteReview(ctx context.Context, rev *review.HumanReview) error {
	overrides, err := json.Marshal(rev.ScoreOverrides)
	if err != nil {
		return fmt.Errorf("marshal score overrides: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE human_reviews
		SET status = $1, reviewer_id = $2, outcome = $3, note = $4, score_overrides = $5, overall_override = $6, completed_at = $7
		WHERE id = $8`,
		rev.Status, rev.ReviewerID, rev.Outcome, rev.Note, overrides, rev.OverallOverride, rev.CompletedAt, rev.ID,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("review %s: %w", rev.ID, ErrNotFound)
	}
	return nil
}
