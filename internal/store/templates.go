package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/anderson/internal/policy"
)

// CreateTemplate stores a template and its criteria together.
// Tables: policy_templates, template_criteria.
func (s *Store) CreateTemplate(ctx context.Context, tpl *policy.Template) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO policy_templates (id, name, created_at)
		VALUES ($1, $2, $3)`,
		tpl.ID, tpl.Name, tpl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	for i, c := range tpl.Criteria {
		levels, err := json.Marshal(c.Levels)
		if err != nil {
			return fmt.Errorf("marshal levels: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO template_criteria (id, template_id, position, name, description, weight, levels)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), tpl.ID, i, c.Name, c.Description, c.Weight, levels,
		)
		if err != nil {
			return fmt.Errorf("insert criterion: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadTemplate fetches a template with its criteria in rubric order.
func (s *Store) LoadTemplate(ctx context.Context, id uuid.UUID) (*policy.Template, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at FROM policy_templates WHERE id = $1`, id)

	var tpl policy.Template
	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT name, description, weight, levels
		FROM template_criteria WHERE template_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load criteria: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c      policy.Criterion
			levels []byte
		)
		if err := rows.Scan(&c.Name, &c.Description, &c.Weight, &levels); err != nil {
			return nil, fmt.Errorf("scan criterion: %w", err)
		}
		if len(levels) > 0 {
			if err := json.Unmarshal(levels, &c.Levels); err != nil {
				return nil, fmt.Errorf("unmarshal levels: %w", err)
			}
		}
		tpl.Criteria = append(tpl.Criteria, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate criteria: %w", err)
	}
	return &tpl, nil
}
