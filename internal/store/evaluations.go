package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/anderson/internal/policy"
)

// SaveEvaluation writes an evaluation with its category scores and
// violations in one transaction so a crash never leaves a partial result.
// Tables: evaluations, category_scores, policy_violations.
func (s *Store) SaveEvaluation(ctx context.Context, eval *policy.Evaluation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO evaluations (id, recording_id, template_id, overall_score, confidence, customer_tone, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		eval.ID, eval.RecordingID, eval.TemplateID, eval.OverallScore, eval.Confidence, eval.CustomerTone, eval.Model, eval.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}

	for i, cs := range eval.CategoryScores {
		_, err = tx.Exec(ctx, `
			INSERT INTO category_scores (id, evaluation_id, position, category_name, score, feedback)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), eval.ID, i, cs.CategoryName, cs.Score, cs.Feedback,
		)
		if err != nil {
			return fmt.Errorf("insert category score: %w", err)
		}
	}

	for _, v := range eval.Violations {
		_, err = tx.Exec(ctx, `
			INSERT INTO policy_violations (id, evaluation_id, category_name, severity, detail)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), eval.ID, v.CategoryName, v.Severity, v.Detail,
		)
		if err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadEvaluation fetches the latest evaluation for a recording, with its
// category scores and violations.
func (s *Store) LoadEvaluation(ctx context.Context, recordingID uuid.UUID) (*policy.Evaluation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, recording_id, template_id, overall_score, confidence, customer_tone, model, created_at
		FROM evaluations WHERE recording_id = $1
		ORDER BY created_at DESC LIMIT 1`, recordingID)

	var eval policy.Evaluation
	err := row.Scan(&eval.ID, &eval.RecordingID, &eval.TemplateID, &eval.OverallScore, &eval.Confidence, &eval.CustomerTone, &eval.Model, &eval.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("evaluation for recording %s: %w", recordingID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load evaluation: %w", err)
	}

	scoreRows, err := s.pool.Query(ctx, `
		SELECT category_name, score, feedback
		FROM category_scores WHERE evaluation_id = $1 ORDER BY position`, eval.ID)
	if err != nil {
		return nil, fmt.Errorf("load category scores: %w", err)
	}
	defer scoreRows.Close()
	for scoreRows.Next() {
		var cs policy.CategoryScore
		if err := scoreRows.Scan(&cs.CategoryName, &cs.Score, &cs.Feedback); err != nil {
			return nil, fmt.Errorf("scan category score: %w", err)
		}
		eval.CategoryScores = append(eval.CategoryScores, cs)
	}
	if err := scoreRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category scores: %w", err)
	}

	violationRows, err := s.pool.Query(ctx, `
		SELECT category_name, severity, detail
		FROM policy_violations WHERE evaluation_id = $1 ORDER BY category_name`, eval.ID)
	if err != nil {
		return nil, fmt.Errorf("load violations: %w", err)
	}
	defer violationRows.Close()
	for violationRows.Next() {
		var v policy.Violation
		if err := violationRows.Scan(&v.CategoryName, &v.Severity, &v.Detail); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		eval.Violations = append(eval.Violations, v)
	}
	if err := violationRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}

	return &eval, nil
}
