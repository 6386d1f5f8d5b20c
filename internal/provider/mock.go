package provider

import "context"

const mockTranscript = `Agent: Thank you for calling, how can I help you today?
Customer: Hi, I was double charged on my last statement and I would like a refund.
Agent: I am sorry about that, let me take a look. I can see the duplicate charge here.
Customer: Okay, great.
Agent: I have issued a refund, you should see it within three business days. Anything else?
Customer: No, that was it. Thanks for sorting it quickly.`

const mockEvaluation = `{
  "category_scores": [
    {"category_name": "Greeting", "score": 90, "feedback": "Polite opening, identified the purpose quickly."},
    {"category_name": "Problem Resolution", "score": 85, "feedback": "Duplicate charge found and refunded in one contact."},
    {"category_name": "Closing", "score": 80, "feedback": "Confirmed resolution and offered further help."}
  ],
  "violations": [],
  "confidence": 0.95,
  "customer_tone": {"overall": "satisfied", "start": "frustrated", "end": "positive"}
}`

// Mock is a deterministic Transcriber and Evaluator for tests and local
// development. Zero value returns canned output; set the fields to steer
// behavior.
type Mock struct {
	Transcript    *Transcript
	TranscribeErr error
	Response      string
	EvaluateErr   error

	TranscribeCalls int
	EvaluateCalls   int
}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Transcribe(ctx context.Context, audioURL string, opts TranscribeOptions) (*Transcript, error) {
	m.TranscribeCalls++
	if m.TranscribeErr != nil {
		return nil, m.TranscribeErr
	}
	if m.Transcript != nil {
		return m.Transcript, nil
	}
	return &Transcript{
		Text:            mockTranscript,
		DurationSeconds: 42.5,
		Confidence:      0.92,
	}, nil
}

func (m *Mock) Evaluate(ctx context.Context, req EvalRequest) (string, error) {
	m.EvaluateCalls++
	if m.EvaluateErr != nil {
		return "", m.EvaluateErr
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return mockEvaluation, nil
}
