// Package review holds the human escalation gate: which evaluations need
// a second pair of eyes, and what the reviewer decided.
package review

import (
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/policy"
)

// Review statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Review outcomes.
const (
	OutcomeConfirmed  = "confirmed"
	OutcomeOverridden = "overridden"
	OutcomeRejected   = "rejected"
)

// HumanReview tracks one escalated evaluation. ReviewerID stays nil while
// the review is pending; the original evaluation is never modified, a
// reviewer's corrections live here.
type HumanReview struct {
	ID              uuid.UUID              `json:"id"`
	RecordingID     uuid.UUID              `json:"recording_id"`
	EvaluationID    uuid.UUID              `json:"evaluation_id"`
	Status          string                 `json:"status"`
	ReviewerID      *uuid.UUID             `json:"reviewer_id,omitempty"`
	Outcome         string                 `json:"outcome,omitempty"`
	Note            string                 `json:"note,omitempty"`
	ScoreOverrides  []policy.CategoryScore `json:"score_overrides,omitempty"`
	OverallOverride *float64               `json:"overall_override,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
}

// ValidOutcome reports whether s is an outcome a reviewer may submit.
func ValidOutcome(s string) bool {
	switch s {
	case OutcomeConfirmed, OutcomeOverridden, OutcomeRejected:
		return true
	}
	return false
}

// ShouldEscalate decides whether an evaluation needs human review: any
// policy violation, an overall score below the review threshold, or model
// confidence below the floor. Pure function of its inputs.
func ShouldEscalate(eval *policy.Evaluation, reviewThreshold, minConfidence float64) bool {
	if len(eval.Violations) > 0 {
		return true
	}
	if eval.OverallScore < reviewThreshold {
		return true
	}
	if eval.Confidence < minConfidence {
		return true
	}
	return false
}

// NewPending creates the pending review row for an escalated evaluation.
func NewPending(eval *policy.Evaluation) *HumanReview {
	return &HumanReview{
		ID:           uuid.New(),
		RecordingID:  eval.RecordingID,
		EvaluationID: eval.ID,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}
