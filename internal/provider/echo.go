package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Job states reported by the Echo transcription service.
const (
	echoQueued     = "queued"
	echoProcessing = "processing"
	echoSuccess    = "success"
	echoFailed     = "failed"
)

// EchoTranscriber submits audio to the Echo service and polls the job to
// completion. One call is one logical attempt: transient failures come
// back as retryable errors and the caller decides whether to try again.
type EchoTranscriber struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxWait      time.Duration
}

func NewEchoTranscriber(baseURL string) *EchoTranscriber {
	return &EchoTranscriber{
		baseURL:      baseURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		pollInterval: 2 * time.Second,
		maxWait:      10 * time.Minute,
	}
}

// SetPollInterval shortens the poll cadence in tests.
func (t *EchoTranscriber) SetPollInterval(d time.Duration) {
	t.pollInterval = d
}

type echoSubmitRequest struct {
	AudioURL    string `json:"audio_url"`
	Language    string `json:"language,omitempty"`
	WordTimings bool   `json:"word_timings,omitempty"`
}

type echoJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Result *struct {
		Text            string  `json:"text"`
		DurationSeconds float64 `json:"duration_seconds"`
		Confidence      float64 `json:"confidence"`
		Words           []Word  `json:"words,omitempty"`
	} `json:"result,omitempty"`
}

func (t *EchoTranscriber) Transcribe(ctx context.Context, audioURL string, opts TranscribeOptions) (*Transcript, error) {
	job, err := t.submit(ctx, audioURL, opts)
	if err != nil {
		return nil, err
	}

	deadline := time.NewTimer(t.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		switch job.Status {
		case echoSuccess:
			if job.Result == nil {
				return nil, permanent("echo poll", fmt.Errorf("job %s succeeded without a result", job.ID))
			}
			return &Transcript{
				Text:            job.Result.Text,
				DurationSeconds: job.Result.DurationSeconds,
				Confidence:      job.Result.Confidence,
				Words:           job.Result.Words,
			}, nil
		case echoFailed:
			return nil, permanent("echo poll", fmt.Errorf("job %s failed: %s", job.ID, job.Error))
		case echoQueued, echoProcessing:
			// keep polling
		default:
			return nil, permanent("echo poll", fmt.Errorf("job %s in unknown state %q", job.ID, job.Status))
		}

		select {
		case <-ctx.Done():
			return nil, retryable("echo poll", ctx.Err())
		case <-deadline.C:
			return nil, retryable("echo poll", fmt.Errorf("job %s did not complete within %s", job.ID, t.maxWait))
		case <-ticker.C:
		}

		job, err = t.status(ctx, job.ID)
		if err != nil {
			return nil, err
		}
	}
}

func (t *EchoTranscriber) submit(ctx context.Context, audioURL string, opts TranscribeOptions) (*echoJob, error) {
	body, err := json.Marshal(echoSubmitRequest{
		AudioURL:    audioURL,
		Language:    opts.Language,
		WordTimings: opts.WordTimings,
	})
	if err != nil {
		return nil, permanent("echo submit", fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/transcriptions", bytes.NewReader(body))
	if err != nil {
		return nil, permanent("echo submit", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	return t.do(req, "echo submit", http.StatusAccepted)
}

func (t *EchoTranscriber) status(ctx context.Context, jobID string) (*echoJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/v1/transcriptions/"+jobID, nil)
	if err != nil {
		return nil, permanent("echo poll", fmt.Errorf("create request: %w", err))
	}
	return t.do(req, "echo poll", http.StatusOK)
}

func (t *EchoTranscriber) do(req *http.Request, op string, wantStatus int) (*echoJob, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		// Network faults and client timeouts are worth another attempt.
		return nil, retryable(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryable(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != wantStatus {
		return nil, classifyStatus(op, resp.StatusCode, string(body))
	}

	var job echoJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, permanent(op, fmt.Errorf("unmarshal response: %w", err))
	}
	if job.ID == "" {
		return nil, permanent(op, fmt.Errorf("response missing job id: %s", string(body)))
	}
	return &job, nil
}
