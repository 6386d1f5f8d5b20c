package store

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/anderson/internal/audit"
)

// AppendAudit inserts one immutable audit entry. There is no update or
// delete path for audit_log on purpose.
func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, entity_type, entity_id, change_type, field_name, old_value, new_value, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.EntityType, e.EntityID, e.ChangeType, e.FieldName, e.OldValue, e.NewValue, e.ChangedBy, e.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
