// Package provider holds the adapters for external transcription and
// evaluation services. Adapters translate service responses and failures
// into a common shape; they never retry internally. Retry policy belongs
// to the caller, which knows the pipeline stage it is running.
package provider

import "context"

// Transcriber converts an audio recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string, opts TranscribeOptions) (*Transcript, error)
}

// Evaluator runs an evaluation prompt and returns the raw model output.
// Parsing and scoring semantics live with the caller.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvalRequest) (string, error)
}

// TranscribeOptions carries per-request knobs. Word timings are an opaque
// annotation for playback alignment and never affect scoring.
type TranscribeOptions struct {
	Language    string
	WordTimings bool
}

// Transcript is the normalized transcription result.
type Transcript struct {
	Text            string
	DurationSeconds float64
	Confidence      float64
	Words           []Word
}

// Word is a single aligned token, present only when word timings were
// requested and the service supports them.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// EvalRequest is a fully rendered evaluation prompt.
type EvalRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}
