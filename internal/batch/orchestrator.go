package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/anderson/internal/audit"
	"github.com/MikeSquared-Agency/anderson/internal/events"
	"github.com/MikeSquared-Agency/anderson/internal/pipeline"
)

// JobStore is what the orchestrator needs from persistence.
type JobStore interface {
	CreateRecording(ctx context.Context, rec *pipeline.Recording) error
	SaveImportJob(ctx context.Context, job *ImportJob) error
}

// Runner drives one recording through the pipeline. Implemented by the
// pipeline controller.
type Runner interface {
	RunToTerminal(ctx context.Context, id uuid.UUID) (*pipeline.Recording, error)
	Reprocess(ctx context.Context, id uuid.UUID) (*pipeline.Recording, error)
}

// Orchestrator fans rows out to a bounded worker pool. Row failures are
// isolated: they count against the job and never stop the other rows.
type Orchestrator struct {
	store   JobStore
	runner  Runner
	audit   *audit.Logger
	events  *events.Client
	logger  *slog.Logger
	workers int

	mu sync.Mutex // guards the job being updated by pool workers
}

func NewOrchestrator(store JobStore, runner Runner, workers int, aud *audit.Logger, ev *events.Client, logger *slog.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		store:   store,
		runner:  runner,
		audit:   aud,
		events:  ev,
		logger:  logger,
		workers: workers,
	}
}

// PrepareImport parses an import file and persists the job in its
// running state so callers can hand the execution off and still report
// the job immediately.
func (o *Orchestrator) PrepareImport(ctx context.Context, fileName string, src io.Reader) (*ImportJob, []Row, error) {
	rows, rowErrs, err := ParseRows(fileName, src)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", fileName, err)
	}

	job := &ImportJob{
		ID:         uuid.New(),
		Kind:       KindImport,
		Status:     JobRunning,
		FileName:   fileName,
		RowsTotal:  len(rows) + len(rowErrs),
		RowsFailed: len(rowErrs),
		Errors:     rowErrs,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.store.SaveImportJob(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("save import job: %w", err)
	}
	o.audit.Record(ctx, audit.Entry{
		EntityType: audit.EntityImportJob,
		EntityID:   job.ID,
		ChangeType: audit.ChangeCreate,
		FieldName:  "rows_total",
		NewValue:   fmt.Sprintf("%d", job.RowsTotal),
	})
	o.logger.Info("import started",
		"job_id", job.ID,
		"file", fileName,
		"rows", len(rows),
		"invalid_rows", len(rowErrs),
	)
	return job, rows, nil
}

// ExecuteImport drives every valid row through the pipeline. Blocks
// until the job settles; cancelling ctx stops new rows from launching
// while in-flight rows finish.
func (o *Orchestrator) ExecuteImport(ctx context.Context, job *ImportJob, rows []Row) {
	o.runPool(ctx, job, len(rows), func(itemCtx context.Context, i int) {
		o.runImportRow(itemCtx, job, rows[i])
	})
	o.finish(ctx, job)
}

// RunImport is PrepareImport plus ExecuteImport in one blocking call.
func (o *Orchestrator) RunImport(ctx context.Context, fileName string, src io.Reader) (*ImportJob, error) {
	job, rows, err := o.PrepareImport(ctx, fileName, src)
	if err != nil {
		return nil, err
	}
	o.ExecuteImport(ctx, job, rows)
	return job, nil
}

// PrepareReprocess persists a running reprocess job for a set of
// recordings.
func (o *Orchestrator) PrepareReprocess(ctx context.Context, ids []uuid.UUID) (*ImportJob, error) {
	job := &ImportJob{
		ID:        uuid.New(),
		Kind:      KindReprocess,
		Status:    JobRunning,
		RowsTotal: len(ids),
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.SaveImportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save reprocess job: %w", err)
	}
	o.logger.Info("reprocess started", "job_id", job.ID, "recordings", len(ids))
	return job, nil
}

// ExecuteReprocess drives existing recordings through the pipeline
// again. Blocks until the job settles.
func (o *Orchestrator) ExecuteReprocess(ctx context.Context, job *ImportJob, ids []uuid.UUID) {
	o.runPool(ctx, job, len(ids), func(itemCtx context.Context, i int) {
		if _, err := o.runner.Reprocess(itemCtx, ids[i]); err != nil {
			o.failRow(itemCtx, job, i+1, err)
			return
		}
		o.completeRow(itemCtx, job)
	})
	o.finish(ctx, job)
}

// RunReprocess is PrepareReprocess plus ExecuteReprocess in one blocking
// call.
func (o *Orchestrator) RunReprocess(ctx context.Context, ids []uuid.UUID) (*ImportJob, error) {
	job, err := o.PrepareReprocess(ctx, ids)
	if err != nil {
		return nil, err
	}
	o.ExecuteReprocess(ctx, job, ids)
	return job, nil
}

// runPool launches items on a bounded pool, checking for cancellation
// before each launch. Items run with cancellation stripped so an
// in-flight recording is never half-processed.
func (o *Orchestrator) runPool(ctx context.Context, job *ImportJob, n int, item func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(o.workers)

	itemCtx := context.WithoutCancel(ctx)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			o.logger.Info("job cancelled, stopping launches",
				"job_id", job.ID,
				"launched", i,
				"remaining", n-i,
			)
			break
		}
		i := i
		g.Go(func() error {
			item(itemCtx, i)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		o.mu.Lock()
		job.Status = JobCancelled
		o.mu.Unlock()
	}
}

func (o *Orchestrator) runImportRow(ctx context.Context, job *ImportJob, row Row) {
	rec := &pipeline.Recording{
		ID:               uuid.New(),
		FileName:         row.FileName,
		FileURL:          row.FileURL,
		Status:           pipeline.StatusUploaded,
		PolicyTemplateID: row.PolicyTemplateID,
		UploadedAt:       time.Now().UTC(),
	}
	if err := o.store.CreateRecording(ctx, rec); err != nil {
		o.failRow(ctx, job, row.Index, fmt.Errorf("create recording: %w", err))
		return
	}
	o.audit.Record(ctx, audit.Entry{
		EntityType: audit.EntityRecording,
		EntityID:   rec.ID,
		ChangeType: audit.ChangeCreate,
		FieldName:  "file_name",
		NewValue:   rec.FileName,
	})

	if _, err := o.runner.RunToTerminal(ctx, rec.ID); err != nil {
		o.failRow(ctx, job, row.Index, err)
		return
	}
	o.completeRow(ctx, job)
}

func (o *Orchestrator) completeRow(ctx context.Context, job *ImportJob) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job.RowsProcessed++
	if err := o.store.SaveImportJob(ctx, job); err != nil {
		o.logger.Warn("failed to save job progress", "job_id", job.ID, "error", err)
	}
}

func (o *Orchestrator) failRow(ctx context.Context, job *ImportJob, index int, cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job.RowsFailed++
	job.Errors = append(job.Errors, RowError{Index: index, Message: cause.Error()})
	if err := o.store.SaveImportJob(ctx, job); err != nil {
		o.logger.Warn("failed to save job progress", "job_id", job.ID, "error", err)
	}
	o.logger.Warn("row failed", "job_id", job.ID, "row", index, "error", cause)
}

func (o *Orchestrator) finish(ctx context.Context, job *ImportJob) {
	// The settled state must persist even when the job was cancelled.
	ctx = context.WithoutCancel(ctx)

	o.mu.Lock()
	now := time.Now().UTC()
	job.CompletedAt = &now
	if job.Status != JobCancelled {
		job.Status = JobCompleted
	}
	if err := o.store.SaveImportJob(ctx, job); err != nil {
		o.logger.Error("failed to save finished job", "job_id", job.ID, "error", err)
	}
	status := job.Status
	processed, failed, total := job.RowsProcessed, job.RowsFailed, job.RowsTotal
	o.mu.Unlock()

	o.audit.Record(ctx, audit.Entry{
		EntityType: audit.EntityImportJob,
		EntityID:   job.ID,
		ChangeType: audit.ChangeStatusChange,
		FieldName:  "status",
		OldValue:   JobRunning,
		NewValue:   status,
	})
	if o.events != nil {
		if err := o.events.Publish(events.SubjectImportCompleted, map[string]any{
			"job_id":    job.ID.String(),
			"kind":      job.Kind,
			"status":    status,
			"processed": processed,
			"failed":    failed,
			"total":     total,
		}); err != nil {
			o.logger.Error("failed to publish import event", "job_id", job.ID, "error", err)
		}
	}
	o.logger.Info("job finished",
		"job_id", job.ID,
		"kind", job.Kind,
		"status", status,
		"processed", processed,
		"failed", failed,
		"total", total,
	)
}
