package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/audit"
	"github.com/MikeSquared-Agency/anderson/internal/events"
	"github.com/MikeSquared-Agency/anderson/internal/notify"
	"github.com/MikeSquared-Agency/anderson/internal/policy"
	"github.com/MikeSquared-Agency/anderson/internal/provider"
	"github.com/MikeSquared-Agency/anderson/internal/redact"
	"github.com/MikeSquared-Agency/anderson/internal/review"
)

// Config carries the controller's scoring and retry knobs.
type Config struct {
	Transcribe      provider.TranscribeOptions
	MinConfidence   float64
	ReviewThreshold float64
	RetryCap        int
	RetryBase       time.Duration
}

// Controller drives recordings through the pipeline one stage at a time.
// All status transitions and their audit entries happen here and nowhere
// else.
type Controller struct {
	store       Store
	transcriber provider.Transcriber
	engine      *policy.Engine
	audit       *audit.Logger
	events      *events.Client
	notifier    *notify.Poster
	logger      *slog.Logger
	cfg         Config

	locks *recordingLocks

	mu           sync.Mutex
	pendingPosts map[string]uuid.UUID // slack message TS -> review id
}

func New(s Store, tr provider.Transcriber, eng *policy.Engine, aud *audit.Logger, ev *events.Client, po *notify.Poster, cfg Config, logger *slog.Logger) *Controller {
	if cfg.RetryCap < 1 {
		cfg.RetryCap = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	return &Controller{
		store:        s,
		transcriber:  tr,
		engine:       eng,
		audit:        aud,
		events:       ev,
		notifier:     po,
		logger:       logger,
		cfg:          cfg,
		locks:        newRecordingLocks(),
		pendingPosts: make(map[string]uuid.UUID),
	}
}

// Advance runs exactly the next pipeline stage for a recording. Calling
// it on a recording with no runnable stage is a no-op returning current
// state. A second concurrent call for the same id gets
// ErrAdvanceInProgress.
func (c *Controller) Advance(ctx context.Context, id uuid.UUID) (*Recording, error) {
	if !c.locks.TryAcquire(id) {
		return nil, ErrAdvanceInProgress
	}
	defer c.locks.Release(id)

	rec, err := c.store.LoadRecording(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load recording: %w", err)
	}

	if !rec.Status.CanAdvance() {
		return rec, nil
	}

	switch rec.Status {
	case StatusUploaded, StatusTranscribing:
		err = c.stageTranscribe(ctx, rec)
	case StatusRedacting:
		err = c.stageRedact(ctx, rec)
	case StatusEvaluating:
		err = c.stageEvaluate(ctx, rec)
	case StatusScored:
		err = c.stageResolve(ctx, rec)
	}

	if err != nil {
		// Provider faults and template faults are pipeline failures.
		// Infrastructure errors (store down, caller cancelled) leave the
		// recording where it was so a later advance can resume.
		var te *policy.TemplateError
		if ctx.Err() == nil && (provider.Retryable(err) || provider.Permanent(err) || errors.As(err, &te)) {
			c.fail(ctx, rec, err)
		}
		return rec, err
	}
	return rec, nil
}

// RunToTerminal advances a recording until nothing more can run: it
// parks at needs_review and stops at completed or failed.
func (c *Controller) RunToTerminal(ctx context.Context, id uuid.UUID) (*Recording, error) {
	for {
		rec, err := c.Advance(ctx, id)
		if err != nil {
			return rec, err
		}
		if !rec.Status.CanAdvance() {
			return rec, nil
		}
		if ctx.Err() != nil {
			return rec, ctx.Err()
		}
	}
}

// Reprocess runs a recording through the pipeline again. Failed
// recordings are reset to uploaded first; anything else resumes from
// wherever it stopped.
func (c *Controller) Reprocess(ctx context.Context, id uuid.UUID) (*Recording, error) {
	if !c.locks.TryAcquire(id) {
		return nil, ErrAdvanceInProgress
	}
	rec, err := c.store.LoadRecording(ctx, id)
	if err != nil {
		c.locks.Release(id)
		return nil, fmt.Errorf("load recording: %w", err)
	}
	if rec.Status == StatusFailed {
		rec.ErrorMessage = ""
		rec.ProcessedAt = nil
		if err := c.transition(ctx, rec, StatusUploaded); err != nil {
			c.locks.Release(id)
			return nil, err
		}
	}
	c.locks.Release(id)

	return c.RunToTerminal(ctx, id)
}

func (c *Controller) stageTranscribe(ctx context.Context, rec *Recording) error {
	if rec.Status == StatusUploaded {
		if err := c.transition(ctx, rec, StatusTranscribing); err != nil {
			return err
		}
	}

	var tr *provider.Transcript
	err := c.withRetry(ctx, "transcribe", rec.ID, func() error {
		t, err := c.transcriber.Transcribe(ctx, rec.FileURL, c.cfg.Transcribe)
		if err != nil {
			return err
		}
		tr = t
		return nil
	})
	if err != nil {
		return fmt.Errorf("transcribe stage: %w", err)
	}

	rec.Transcript = tr.Text
	rec.DurationSeconds = tr.DurationSeconds
	rec.Confidence = tr.Confidence
	return c.transition(ctx, rec, StatusRedacting)
}

func (c *Controller) stageRedact(ctx context.Context, rec *Recording) error {
	before := len(rec.Transcript)
	rec.Transcript = redact.Redact(rec.Transcript)
	rec.Redacted = true

	c.logger.Info("transcript redacted",
		"recording_id", rec.ID,
		"chars_before", before,
		"chars_after", len(rec.Transcript),
	)
	return c.transition(ctx, rec, StatusEvaluating)
}

func (c *Controller) stageEvaluate(ctx context.Context, rec *Recording) error {
	tpl, err := c.store.LoadTemplate(ctx, rec.PolicyTemplateID)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}

	var eval *policy.Evaluation
	err = c.withRetry(ctx, "evaluate", rec.ID, func() error {
		e, err := c.engine.Evaluate(ctx, rec.ID, rec.Transcript, *tpl)
		if err != nil {
			return err
		}
		eval = e
		return nil
	})
	if err != nil {
		return fmt.Errorf("evaluate stage: %w", err)
	}

	if err := c.store.SaveEvaluation(ctx, eval); err != nil {
		return fmt.Errorf("save evaluation: %w", err)
	}
	c.audit.Record(ctx, audit.Entry{
		EntityType: audit.EntityEvaluation,
		EntityID:   eval.ID,
		ChangeType: audit.ChangeCreate,
		FieldName:  "overall_score",
		NewValue:   fmt.Sprintf("%.2f", eval.OverallScore),
	})

	return c.transition(ctx, rec, StatusScored)
}

func (c *Controller) stageResolve(ctx context.Context, rec *Recording) error {
	eval, err := c.store.LoadEvaluation(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("load evaluation: %w", err)
	}

	lowTranscript := rec.Confidence > 0 && rec.Confidence < c.cfg.MinConfidence
	if review.ShouldEscalate(eval, c.cfg.ReviewThreshold, c.cfg.MinConfidence) || lowTranscript {
		rev := review.NewPending(eval)
		if err := c.store.CreateReview(ctx, rev); err != nil {
			return fmt.Errorf("create review: %w", err)
		}
		c.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityReview,
			EntityID:   rev.ID,
			ChangeType: audit.ChangeCreate,
			FieldName:  "status",
			NewValue:   review.StatusPending,
		})

		if err := c.transition(ctx, rec, StatusNeedsReview); err != nil {
			return err
		}

		c.notifyReview(ctx, rev, eval, rec.FileName)
		c.publish(events.SubjectReviewRequired, map[string]any{
			"recording_id": rec.ID.String(),
			"review_id":    rev.ID.String(),
			"overall":      eval.OverallScore,
			"violations":   len(eval.Violations),
		})
		return nil
	}

	now := time.Now().UTC()
	rec.ProcessedAt = &now
	if err := c.transition(ctx, rec, StatusCompleted); err != nil {
		return err
	}
	c.publish(events.SubjectRecordingScored, map[string]any{
		"recording_id": rec.ID.String(),
		"overall":      eval.OverallScore,
		"violations":   len(eval.Violations),
	})
	return nil
}

// SubmitReviewParams is one reviewer verdict on a pending review.
type SubmitReviewParams struct {
	ReviewID       uuid.UUID
	ReviewerID     *uuid.UUID
	Actor          string // identity recorded in the audit trail
	Outcome        string
	Note           string
	ScoreOverrides []policy.CategoryScore
}

// SubmitReview settles a pending review and completes its recording. The
// original evaluation is never touched; corrections live on the review.
func (c *Controller) SubmitReview(ctx context.Context, p SubmitReviewParams) (*review.HumanReview, error) {
	if !review.ValidOutcome(p.Outcome) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, p.Outcome)
	}

	rev, err := c.store.LoadReview(ctx, p.ReviewID)
	if err != nil {
		return nil, fmt.Errorf("load review: %w", err)
	}

	if !c.locks.TryAcquire(rev.RecordingID) {
		return nil, ErrAdvanceInProgress
	}
	defer c.locks.Release(rev.RecordingID)

	// Re-read under the lock so racing submissions see each other.
	rev, err = c.store.LoadReview(ctx, p.ReviewID)
	if err != nil {
		return nil, fmt.Errorf("load review: %w", err)
	}
	if rev.Status != review.StatusPending {
		return nil, ErrReviewNotPending
	}

	rec, err := c.store.LoadRecording(ctx, rev.RecordingID)
	if err != nil {
		return nil, fmt.Errorf("load recording: %w", err)
	}

	if p.Outcome == review.OutcomeOverridden {
		if len(p.ScoreOverrides) == 0 {
			return nil, ErrOverridesRequired
		}
		overall, err := c.overrideOverall(ctx, rec, p.ScoreOverrides)
		if err != nil {
			return nil, err
		}
		rev.ScoreOverrides = p.ScoreOverrides
		rev.OverallOverride = &overall
	}

	now := time.Now().UTC()
	rev.Status = review.StatusCompleted
	rev.ReviewerID = p.ReviewerID
	rev.Outcome = p.Outcome
	rev.Note = p.Note
	rev.CompletedAt = &now

	if err := c.store.CompleteReview(ctx, rev); err != nil {
		return nil, fmt.Errorf("complete review: %w", err)
	}
	c.audit.Record(ctx, audit.Entry{
		EntityType: audit.EntityReview,
		EntityID:   rev.ID,
		ChangeType: audit.ChangeUpdate,
		FieldName:  "outcome",
		OldValue:   review.StatusPending,
		NewValue:   p.Outcome,
		ChangedBy:  p.Actor,
	})

	rec.ProcessedAt = &now
	if err := c.transition(ctx, rec, StatusCompleted); err != nil {
		return nil, err
	}

	c.publish(events.SubjectReviewCompleted, map[string]any{
		"recording_id": rec.ID.String(),
		"review_id":    rev.ID.String(),
		"outcome":      p.Outcome,
	})

	c.logger.Info("review submitted",
		"review_id", rev.ID,
		"recording_id", rec.ID,
		"outcome", p.Outcome,
		"actor", p.Actor,
	)
	return rev, nil
}

// overrideOverall recomputes the overall score from reviewer corrections
// merged over the original category scores.
func (c *Controller) overrideOverall(ctx context.Context, rec *Recording, overrides []policy.CategoryScore) (float64, error) {
	tpl, err := c.store.LoadTemplate(ctx, rec.PolicyTemplateID)
	if err != nil {
		return 0, fmt.Errorf("load template: %w", err)
	}
	known := make(map[string]bool, len(tpl.Criteria))
	for _, cr := range tpl.Criteria {
		known[cr.Name] = true
	}
	for _, o := range overrides {
		if !known[o.CategoryName] {
			return 0, fmt.Errorf("%w: unknown category %q", ErrInvalidOutcome, o.CategoryName)
		}
		if o.Score < 0 || o.Score > 100 {
			return 0, fmt.Errorf("%w: score %v outside [0,100]", ErrInvalidOutcome, o.Score)
		}
	}

	eval, err := c.store.LoadEvaluation(ctx, rec.ID)
	if err != nil {
		return 0, fmt.Errorf("load evaluation: %w", err)
	}

	merged := make([]policy.CategoryScore, len(eval.CategoryScores))
	copy(merged, eval.CategoryScores)
	for _, o := range overrides {
		replaced := false
		for i := range merged {
			if merged[i].CategoryName == o.CategoryName {
				merged[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, o)
		}
	}
	return policy.Overall(merged, tpl.Criteria), nil
}

// HandleReaction maps Slack reactions on posted review summaries to
// review submissions. Invoked from the NATS subscription.
func (c *Controller) HandleReaction(subject string, data []byte) {
	ctx := context.Background()

	evt, err := notify.ParseReactionEvent(data)
	if err != nil {
		c.logger.Error("failed to parse reaction", "error", err)
		return
	}

	verdict := notify.ParseReaction(evt.Reaction)
	if verdict == notify.VerdictUnknown {
		return
	}

	c.mu.Lock()
	reviewID, ok := c.pendingPosts[evt.MessageTS]
	if ok {
		delete(c.pendingPosts, evt.MessageTS)
	}
	c.mu.Unlock()
	if !ok {
		return // not a message we posted
	}

	outcome := review.OutcomeConfirmed
	if verdict == notify.VerdictRejected {
		outcome = review.OutcomeRejected
	}

	_, err = c.SubmitReview(ctx, SubmitReviewParams{
		ReviewID: reviewID,
		Actor:    "slack:" + evt.UserID,
		Outcome:  outcome,
		Note:     "submitted via slack reaction",
	})
	if err != nil {
		if errors.Is(err, ErrReviewNotPending) {
			c.logger.Info("reaction on already-settled review", "review_id", reviewID)
			return
		}
		c.logger.Error("failed to submit review from reaction", "review_id", reviewID, "error", err)
		return
	}

	if outcome == review.OutcomeRejected && c.notifier != nil {
		if err := c.notifier.PostThread(ctx, evt.MessageTS, "Recorded as rejected. Submit corrected scores through the review API if the call needs rescoring."); err != nil {
			c.logger.Error("failed to post rejection thread", "error", err)
		}
	}
}

func (c *Controller) notifyReview(ctx context.Context, rev *review.HumanReview, eval *policy.Evaluation, fileName string) {
	if c.notifier == nil {
		return
	}
	ts, err := c.notifier.PostReviewSummary(ctx, rev, eval, fileName)
	if err != nil {
		c.logger.Error("slack post failed", "review_id", rev.ID, "error", err)
		return
	}
	c.mu.Lock()
	c.pendingPosts[ts] = rev.ID
	c.mu.Unlock()
}

// withRetry runs fn, retrying transient provider faults with exponential
// backoff until the attempt cap. Anything else stops immediately.
func (c *Controller) withRetry(ctx context.Context, op string, id uuid.UUID, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBase
	bo.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !provider.Retryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("stage attempt failed",
			"op", op,
			"recording_id", id,
			"attempt", attempt,
			"error", err,
		)
		return err
	}, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), uint64(c.cfg.RetryCap-1)))
}

// fail parks a recording in the failed state with the cause preserved.
func (c *Controller) fail(ctx context.Context, rec *Recording, cause error) {
	from := rec.Status
	now := time.Now().UTC()
	rec.Status = StatusFailed
	rec.ErrorMessage = cause.Error()
	rec.ProcessedAt = &now

	if err := c.store.SaveRecordingState(ctx, rec); err != nil {
		rec.Status = from
		c.logger.Error("failed to persist failure state", "recording_id", rec.ID, "error", err)
		return
	}
	c.audit.StatusChange(ctx, audit.EntityRecording, rec.ID, string(from), string(StatusFailed))
	c.logger.Error("recording failed",
		"recording_id", rec.ID,
		"stage", from,
		"error", cause,
	)
	c.publish(events.SubjectRecordingFailed, map[string]any{
		"recording_id": rec.ID.String(),
		"stage":        string(from),
		"error":        cause.Error(),
	})
}

func (c *Controller) transition(ctx context.Context, rec *Recording, to Status) error {
	from := rec.Status
	rec.Status = to
	if err := c.store.SaveRecordingState(ctx, rec); err != nil {
		rec.Status = from
		return fmt.Errorf("save %s -> %s: %w", from, to, err)
	}
	c.audit.StatusChange(ctx, audit.EntityRecording, rec.ID, string(from), string(to))
	c.logger.Info("recording advanced",
		"recording_id", rec.ID,
		"from", from,
		"to", to,
	)
	return nil
}

func (c *Controller) publish(subject string, payload any) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(subject, payload); err != nil {
		c.logger.Error("failed to publish event", "subject", subject, "error", err)
	}
}
