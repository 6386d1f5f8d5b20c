// Package audit records observable state changes as append-only entries.
// A failed append is logged and swallowed: audit is evidence, not a
// dependency, and must never take the pipeline down with it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Entity types.
const (
	EntityRecording  = "recording"
	EntityEvaluation = "evaluation"
	EntityReview     = "human_review"
	EntityImportJob  = "import_job"
	EntityTemplate   = "policy_template"
)

// Change types.
const (
	ChangeCreate       = "create"
	ChangeStatusChange = "status_change"
	ChangeUpdate       = "update"
)

// SystemActor marks changes made by the pipeline itself rather than a person.
const SystemActor = "system"

// Entry is one immutable audit record. Entries are only ever appended.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	ChangeType string    `json:"change_type"`
	FieldName  string    `json:"field_name,omitempty"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	ChangedBy  string    `json:"changed_by"`
	ChangedAt  time.Time `json:"changed_at"`
}

// Appender persists entries. Implemented by the store.
type Appender interface {
	AppendAudit(ctx context.Context, entry Entry) error
}

type Logger struct {
	store  Appender
	logger *slog.Logger
}

func New(store Appender, logger *slog.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

// Record appends an entry, filling in the ID and timestamp. Persistence
// failure is a warning, never an error to the caller.
func (l *Logger) Record(ctx context.Context, e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ChangedAt.IsZero() {
		e.ChangedAt = time.Now().UTC()
	}
	if e.ChangedBy == "" {
		e.ChangedBy = SystemActor
	}

	if err := l.store.AppendAudit(ctx, e); err != nil {
		l.logger.Warn("audit append failed",
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
			"change_type", e.ChangeType,
			"error", err,
		)
	}
}

// StatusChange is the common case: an entity moved between states.
func (l *Logger) StatusChange(ctx context.Context, entityType string, entityID uuid.UUID, from, to string) {
	l.Record(ctx, Entry{
		EntityType: entityType,
		EntityID:   entityID,
		ChangeType: ChangeStatusChange,
		FieldName:  "status",
		OldValue:   from,
		NewValue:   to,
	})
}
