package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/policy"
	"github.com/MikeSquared-Agency/anderson/internal/review"
)

// Status is a recording's position in the pipeline.
type Status string

const (
	StatusUploaded     Status = "uploaded"
	StatusTranscribing Status = "transcribing"
	StatusRedacting    Status = "redacting"
	StatusEvaluating   Status = "evaluating"
	StatusScored       Status = "scored"
	StatusNeedsReview  Status = "needs_review"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further work will ever happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvance reports whether Advance has a next stage to run. A recording
// in needs_review only moves through SubmitReview, never through Advance.
func (s Status) CanAdvance() bool {
	switch s {
	case StatusUploaded, StatusTranscribing, StatusRedacting, StatusEvaluating, StatusScored:
		return true
	}
	return false
}

// Recording is one customer call moving through the pipeline.
type Recording struct {
	ID               uuid.UUID  `json:"id"`
	FileName         string     `json:"file_name"`
	FileURL          string     `json:"file_url"`
	Status           Status     `json:"status"`
	DurationSeconds  float64    `json:"duration_seconds,omitempty"`
	Transcript       string     `json:"transcript,omitempty"`
	Confidence       float64    `json:"confidence,omitempty"`
	Redacted         bool       `json:"redacted"`
	PolicyTemplateID uuid.UUID  `json:"policy_template_id"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	UploadedAt       time.Time  `json:"uploaded_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// UploadedEvent is the NATS payload announcing a new recording to process.
type UploadedEvent struct {
	RecordingID string `json:"recording_id"`
	FileURL     string `json:"file_url"`
}

// Store is what the controller needs from persistence. Each call is
// atomic; the controller never holds a transaction across stages.
type Store interface {
	LoadRecording(ctx context.Context, id uuid.UUID) (*Recording, error)
	SaveRecordingState(ctx context.Context, rec *Recording) error
	LoadTemplate(ctx context.Context, id uuid.UUID) (*policy.Template, error)
	SaveEvaluation(ctx context.Context, eval *policy.Evaluation) error
	LoadEvaluation(ctx context.Context, recordingID uuid.UUID) (*policy.Evaluation, error)
	CreateReview(ctx context.Context, rev *review.HumanReview) error
	LoadReview(ctx context.Context, id uuid.UUID) (*review.HumanReview, error)
	CompleteReview(ctx context.Context, rev *review.HumanReview) error
}

var (
	// ErrAdvanceInProgress means another caller is already advancing this
	// recording. The caller should back off, not queue.
	ErrAdvanceInProgress = errors.New("advance already in progress for this recording")

	// ErrReviewNotPending means the review was already submitted.
	ErrReviewNotPending = errors.New("review is not pending")

	// ErrInvalidOutcome means the submitted outcome is not one a reviewer
	// may give.
	ErrInvalidOutcome = errors.New("invalid review outcome")

	// ErrOverridesRequired means an overridden outcome arrived without
	// corrected scores.
	ErrOverridesRequired = errors.New("overridden outcome requires corrected scores")
)
