package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const dispatchQueueSize = 256

// Dispatcher fans incoming recordings out to a fixed pool of workers,
// each driving a recording to its terminal state. In-flight recordings
// finish during shutdown; queued ones are drained.
type Dispatcher struct {
	ctrl   *Controller
	logger *slog.Logger

	queue chan uuid.UUID
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func NewDispatcher(ctrl *Controller, workers int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		ctrl:   ctrl,
		logger: logger,
		queue:  make(chan uuid.UUID, dispatchQueueSize),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for id := range d.queue {
		rec, err := d.ctrl.RunToTerminal(context.Background(), id)
		if err != nil {
			if errors.Is(err, ErrAdvanceInProgress) {
				continue
			}
			d.logger.Error("pipeline run ended with error", "recording_id", id, "error", err)
			continue
		}
		if rec != nil && rec.Status == StatusNeedsReview {
			d.logger.Info("recording parked for review", "recording_id", id)
		}
	}
}

// Enqueue hands a recording to the pool. Returns false if the queue is
// full or the dispatcher is stopped; the recording stays untouched and a
// later reprocess can pick it up.
func (d *Dispatcher) Enqueue(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	select {
	case d.queue <- id:
		return true
	default:
		d.logger.Warn("dispatch queue full, dropping", "recording_id", id)
		return false
	}
}

// QueueDepth reports how many recordings are waiting for a worker.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Stop closes the queue and waits for workers to drain it.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.queue)
	d.wg.Wait()
}

// HandleUploaded is the NATS handler for newly uploaded recordings.
func (d *Dispatcher) HandleUploaded(subject string, data []byte) {
	var evt UploadedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		d.logger.Error("failed to parse uploaded event", "error", err)
		return
	}
	id, err := uuid.Parse(evt.RecordingID)
	if err != nil {
		d.logger.Error("uploaded event has bad recording id", "recording_id", evt.RecordingID, "error", err)
		return
	}
	d.Enqueue(id)
}
