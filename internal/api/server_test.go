package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/audit"
	"github.com/MikeSquared-Agency/anderson/internal/batch"
	"github.com/MikeSquared-Agency/anderson/internal/pipeline"
	"github.com/MikeSquared-Agency/anderson/internal/policy"
	"github.com/MikeSquared-Agency/anderson/internal/provider"
	"github.com/MikeSquared-Agency/anderson/internal/review"
	"github.com/MikeSquared-Agency/anderson/internal/store"
)

const testToken = "test-token"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore backs the whole server in memory: handlers, pipeline and
// batch jobs all read and write through it. Loads return copies.
type fakeStore struct {
	mu          sync.Mutex
	recordings  map[uuid.UUID]pipeline.Recording
	templates   map[uuid.UUID]policy.Template
	evaluations map[uuid.UUID]policy.Evaluation
	reviews     map[uuid.UUID]review.HumanReview
	jobs        map[uuid.UUID]batch.ImportJob
	audits      []audit.Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recordings:  make(map[uuid.UUID]pipeline.Recording),
		templates:   make(map[uuid.UUID]policy.Template),
		evaluations: make(map[uuid.UUID]policy.Evaluation),
		reviews:     make(map[uuid.UUID]review.HumanReview),
		jobs:        make(map[uuid.UUID]batch.ImportJob),
	}
}

func (f *fakeStore) CreateRecording(ctx context.Context, rec *pipeline.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordings[rec.ID] = *rec
	return nil
}

func (f *fakeStore) LoadRecording(ctx context.Context, id uuid.UUID) (*pipeline.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		return nil, fmt.Errorf("recording %s: %w", id, store.ErrNotFound)
	}
	return &rec, nil
}

func (f *fakeStore) SaveRecordingState(ctx context.Context, rec *pipeline.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordings[rec.ID] = *rec
	return nil
}

func (f *fakeStore) CreateTemplate(ctx context.Context, tpl *policy.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[tpl.ID] = *tpl
	return nil
}

func (f *fakeStore) LoadTemplate(ctx context.Context, id uuid.UUID) (*policy.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tpl, ok := f.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, store.ErrNotFound)
	}
	return &tpl, nil
}

func (f *fakeStore) SaveEvaluation(ctx context.Context, eval *policy.Evaluation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluations[eval.RecordingID] = *eval
	return nil
}

func (f *fakeStore) LoadEvaluation(ctx context.Context, recordingID uuid.UUID) (*policy.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	eval, ok := f.evaluations[recordingID]
	if !ok {
		return nil, fmt.Errorf("evaluation for recording %s: %w", recordingID, store.ErrNotFound)
	}
	return &eval, nil
}

func (f *fakeStore) CreateReview(ctx context.Context, rev *review.HumanReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews[rev.ID] = *rev
	return nil
}

func (f *fakeStore) LoadReview(ctx context.Context, id uuid.UUID) (*review.HumanReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.reviews[id]
	if !ok {
		return nil, fmt.Errorf("review %s: %w", id, store.ErrNotFound)
	}
	return &rev, nil
}

func (f *fakeStore) CompleteReview(ctx context.Context, rev *review.HumanReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reviews[rev.ID]; !ok {
		return fmt.Errorf("review %s: %w", rev.ID, store.ErrNotFound)
	}
	f.reviews[rev.ID] = *rev
	return nil
}

func (f *fakeStore) SaveImportJob(ctx context.Context, job *batch.ImportJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = *job
	return nil
}

func (f *fakeStore) LoadImportJob(ctx context.Context, id uuid.UUID) (*batch.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("import job %s: %w", id, store.ErrNotFound)
	}
	return &job, nil
}

func (f *fakeStore) AppendAudit(ctx context.Context, entry audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, entry)
	return nil
}

func (f *fakeStore) recording(t *testing.T, id uuid.UUID) pipeline.Recording {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		t.Fatalf("recording %s not in store", id)
	}
	return rec
}

func (f *fakeStore) review(t *testing.T, id uuid.UUID) review.HumanReview {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.reviews[id]
	if !ok {
		t.Fatalf("review %s not in store", id)
	}
	return rev
}

func newTestServer(t *testing.T, s *fakeStore) *Server {
	t.Helper()
	logger := discardLogger()
	m := provider.NewMock()
	eng := policy.NewEngine(m, "test-model", 40, logger)
	aud := audit.New(s, logger)
	ctrl := pipeline.New(s, m, eng, aud, nil, nil, pipeline.Config{
		MinConfidence:   0.6,
		ReviewThreshold: 70,
		RetryCap:        2,
		RetryBase:       time.Millisecond,
	}, logger)
	disp := pipeline.NewDispatcher(ctrl, 2, logger)
	t.Cleanup(disp.Stop)
	orch := batch.NewOrchestrator(s, ctrl, 2, aud, nil, logger)

	cfg := Config{Port: 8760, APIToken: testToken, Transcriber: "mock", Evaluator: "mock"}
	return NewServer(cfg, s, ctrl, disp, orch, aud, nil, logger)
}

func seedTemplate(s *fakeStore) policy.Template {
	tpl := policy.Template{
		ID:   uuid.New(),
		Name: "Support Call Quality",
		Criteria: []policy.Criterion{
			{Name: "Greeting", Weight: 40},
			{Name: "Problem Resolution", Weight: 40},
			{Name: "Closing", Weight: 20},
		},
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.templates[tpl.ID] = tpl
	s.mu.Unlock()
	return tpl
}

func seedPendingReview(s *fakeStore, tpl policy.Template) (recID, revID uuid.UUID) {
	rec := pipeline.Recording{
		ID:               uuid.New(),
		FileName:         "call-0142.wav",
		FileURL:          "https://files.example.com/call-0142.wav",
		Status:           pipeline.StatusNeedsReview,
		Transcript:       "agent: hello. customer: my refund never arrived.",
		Confidence:       0.9,
		Redacted:         true,
		PolicyTemplateID: tpl.ID,
		UploadedAt:       time.Now().UTC(),
	}
	eval := policy.Evaluation{
		ID:          uuid.New(),
		RecordingID: rec.ID,
		TemplateID:  tpl.ID,
		CategoryScores: []policy.CategoryScore{
			{CategoryName: "Greeting", Score: 80},
			{CategoryName: "Problem Resolution", Score: 30},
			{CategoryName: "Closing", Score: 50},
		},
		OverallScore: 54,
		Violations: []policy.Violation{
			{CategoryName: "Problem Resolution", Severity: policy.SeverityMajor, Detail: "issue left unresolved"},
		},
		Confidence: 0.9,
		Model:      "test-model",
		CreatedAt:  time.Now().UTC(),
	}
	rev := review.NewPending(&eval)
	s.mu.Lock()
	s.recordings[rec.ID] = rec
	s.evaluations[rec.ID] = eval
	s.reviews[rev.ID] = *rev
	s.mu.Unlock()
	return rec.ID, rev.ID
}

func getPath(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, srv *Server, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	w := getPath(t, srv, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "healthy" || body["agent"] != "anderson" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	w := getPath(t, srv, "/api/v1/anderson/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["agent"] != "anderson" {
		t.Errorf("agent = %v, want anderson", body["agent"])
	}
	if body["transcriber"] != "mock" || body["evaluator"] != "mock" {
		t.Errorf("unexpected providers: %v / %v", body["transcriber"], body["evaluator"])
	}
	if body["nats_connected"] != false {
		t.Errorf("nats_connected = %v, want false without a broker", body["nats_connected"])
	}
	if body["queue_depth"] != float64(0) {
		t.Errorf("queue_depth = %v, want 0", body["queue_depth"])
	}
}

func TestCreateRecording_ProcessesToCompletion(t *testing.T) {
	s := newFakeStore()
	srv := newTestServer(t, s)
	tpl := seedTemplate(s)

	w := postJSON(t, srv, "/api/v1/recordings", testToken, map[string]any{
		"file_name":          "call-0142.wav",
		"file_url":           "https://files.example.com/call-0142.wav",
		"policy_template_id": tpl.ID,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(pipeline.StatusUploaded) {
		t.Errorf("status = %q, want uploaded", resp.Status)
	}

	// Stop drains the dispatch queue, so the recording is settled after.
	srv.disp.Stop()

	rec := s.recording(t, resp.ID)
	if rec.Status != pipeline.StatusCompleted {
		t.Errorf("status = %s, want completed (error=%q)", rec.Status, rec.ErrorMessage)
	}
	if !rec.Redacted {
		t.Error("expected transcript to be redacted")
	}
}

func TestCreateRecording_Validation(t *testing.T) {
	s := newFakeStore()
	srv := newTestServer(t, s)
	tpl := seedTemplate(s)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing file_url", map[string]any{"file_name": "a.wav", "policy_template_id": tpl.ID}},
		{"missing template", map[string]any{"file_name": "a.wav", "file_url": "https://x/a.wav"}},
		{"unknown template", map[string]any{"file_name": "a.wav", "file_url": "https://x/a.wav", "policy_template_id": uuid.New()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, srv, "/api/v1/recordings", testToken, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recordings", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed json, got %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newFakeStore()
	srv := newTestServer(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recordings", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/recordings", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: expected 401, got %d", w.Code)
	}

	// Reads stay open.
	if w := getPath(t, srv, "/api/v1/recordings/"+uuid.NewString()); w.Code == http.StatusUnauthorized {
		t.Errorf("read endpoint should not require auth, got %d", w.Code)
	}
}

func TestGetRecording(t *testing.T) {
	s := newFakeStore()
	srv := newTestServer(t, s)
	tpl := seedTemplate(s)
	recID, _ := seedPendingReview(s, tpl)

	w := getPath(t, srv, "/api/v1/recordings/"+recID.String())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var rec pipeline.Recording
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("decode recording: %v", err)
	}
	if rec.ID != recID || rec.Status != pipeline.StatusNeedsReview {
		t.Errorf("got %s in %s, want %s in needs_review", rec.ID, rec.Status, recID)
	}

	if w := getPath(t, srv, "/api/v1/recordings/not-a-uuid"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", w.Code)
	}
	if w := getPath(t, srv, "/api/v1/recordings/"+uuid.NewString()); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", w.Code)
	}
}

func TestGetEvaluation(t *testing.T) {
	s := newFakeStore()
	srv := newTestServer(t, s)
	tpl := seedTemplate(s)
	recID, _ := seedPendingReview(s, tpl)

	w := getPath(t, srv, "/api/v1/recordings/"+recID.String()+"/evaluation")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var eval policy.Evaluation
	if err := json.NewDecoder(w.Body).Decode(&eval); err != nil {
		t.Fatalf("decode evaluation: %v", err)
	}
	if eval.RecordingID != recID || eval.OverallScore != 54 {
		t.Errorf("got evaluation %v for %s", eval.OverallScore, eval.RecordingID)
	}
	if len(eval.Violations) != 1 {
		t.Errorf("expected 1 violation, got %d", len(eval.Violations))
	}

	if w := getPath(t, srv, "/api/v1/recordings/"+uuid.NewString()+"/evaluation"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for recording without evaluation, got %d", w.Code)
	}
}

func TestSubmitReviewEndpoint(t *testing.T) {
	s := newFakeStore()
	srv := newTestServer(t, s)
	tpl := seedTemplate(s)
	recID, revID := seedPendingReview(s, tpl)
	reviewer := uuid.New()

	w := postJSON(t, srv, "/api/v1/reviews/"+revID.String(), testToken, map[string]any{
		"reviewer_id": reviewer,
		"outcome":     review.OutcomeConfirmed,
		"note":        "score stands",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var rev review.HumanReview
	if err := json.NewDecoder(w.Body).Decode(&rev); err != nil {
		t.Fatalf("decode review: %v", err)
	}
	if rev.Status != review.StatusCompleted || rev.Outcome != review.OutcomeConfirmed {
		t.Errorf("review settled as %s/%s", rev.Status, rev.Outcome)
	}
	if rev.ReviewerID == nil || *rev.ReviewerID != reviewer {
		t.Errorf("reviewer = %v, want %s", rev.ReviewerID, reviewer)
	}
	if got := s.recording(t, recID); got.Status != pipeline.StatusCompleted {
		t.Errorf("recording = %s, want completed", got.Status)
	}

	// Second submission hits an already-settled review.
	w = postJSON(t, srv, "/api/v1/reviews/"+revID.String(), testToken, map[string]any{
		"outcome": review.OutcomeConfirmed,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on resubmit, got %d", w.Code)
	}
}

func TestSubmitReviewEndpoint_Rejections(t *testing.T) {
	s := newFakeStore()
	srv := newTestServer(t, s)
	tpl := seedTemplate(s)
	_, revID := seedPendingReview(s, tpl)

	w := postJSON(t, srv, "/api/v1/reviews/"+revID.String(), testToken, map[string]any{
		"outcome": "escalate-harder",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid outcome, got %d", w.Code)
	}

	w = postJSON(t, srv, "/api/v1/reviews/"+revID.String(), testToken, map[string]any{
		"outcome": review.OutcomeOverridden,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for override without scores, got %d", w.Code)
	}

	w = postJSON(t, srv, "/api/v1/reviews/"+uuid.NewString(), testToken, map[string]any{
		"outcome": review.OutcomeConfirmed,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown review, got %d", w.Code)
	}

	if got := s.review(t, revID); got.Status != review.StatusPending {
		t.Errorf("review should still be pending, got %s", got.Status)
	}
}

func TestImportEndpoint(t *testing.T) {
	s := newFakeStore()
	srv := newTestServer(t, s)
	tpl := seedTemplate(s)

	csv := "file_name,file_url,policy_template_id\n" +
		fmt.Sprintf("call-1.wav,https://files.example.com/call-1.wav,%s\n", tpl.ID) +
		fmt.Sprintf("call-2.wav,https://files.example.com/call-2.wav,%s\n", tpl.ID)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "calls.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(fw, csv); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var job batch.ImportJob
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.RowsTotal != 2 || job.Status != batch.JobRunning {
		t.Errorf("job accepted as %s with %d rows", job.Status, job.RowsTotal)
	}

	waitFor(t, "import job to finish", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.jobs[job.ID].Status == batch.JobCompleted
	})

	w = getPath(t, srv, "/api/v1/imports/"+job.ID.String())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var done batch.ImportJob
	if err := json.NewDecoder(w.Body).Decode(&done); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if done.RowsProcessed != 2 || done.RowsFailed != 0 {
		t.Errorf("job finished %d/%d, want 2/0", done.RowsProcessed, done.RowsFailed)
	}

	s.mu.Lock()
	recordings := len(s.recordings)
	s.mu.Unlock()
	if recordings != 2 {
		t.Errorf("expected 2 recordings created, got %d", recordings)
	}
}

func TestImportEndpoint_BadUploads(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "calls.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	io.WriteString(fw, "not an import file")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported format, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/imports", strings.NewReader("plain body"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+testToken)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-multipart body, got %d", w.Code)
	}
}

func TestReprocessEndpoint(t *testing.T) {
	s := newFakeStore()
	srv := newTestServer(t, s)
	tpl := seedTemplate(s)

	rec := pipeline.Recording{
		ID:               uuid.New(),
		FileName:         "call-0199.wav",
		FileURL:          "https://files.example.com/call-0199.wav",
		Status:           pipeline.StatusFailed,
		ErrorMessage:     "transcribe recording: request timed out",
		PolicyTemplateID: tpl.ID,
		UploadedAt:       time.Now().UTC(),
	}
	s.mu.Lock()
	s.recordings[rec.ID] = rec
	s.mu.Unlock()

	w := postJSON(t, srv, "/api/v1/recordings/reprocess", testToken, map[string]any{
		"recording_ids": []uuid.UUID{rec.ID},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var job batch.ImportJob
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Kind != batch.KindReprocess || job.RowsTotal != 1 {
		t.Errorf("job = %s with %d rows, want reprocess with 1", job.Kind, job.RowsTotal)
	}

	waitFor(t, "reprocess job to finish", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.jobs[job.ID].Status == batch.JobCompleted
	})

	got := s.recording(t, rec.ID)
	if got.Status != pipeline.StatusCompleted {
		t.Errorf("recording = %s, want completed (error=%q)", got.Status, got.ErrorMessage)
	}
	if got.ErrorMessage != "" {
		t.Errorf("error message should be cleared, got %q", got.ErrorMessage)
	}

	w = postJSON(t, srv, "/api/v1/recordings/reprocess", testToken, map[string]any{"recording_ids": []string{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty id list, got %d", w.Code)
	}
}

func TestTemplateEndpoints(t *testing.T) {
	s := newFakeStore()
	srv := newTestServer(t, s)

	w := postJSON(t, srv, "/api/v1/templates", testToken, map[string]any{
		"name": "Billing Calls",
		"criteria": []map[string]any{
			{"name": "Accuracy", "weight": 50},
			{"name": "Empathy", "weight": 50},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var tpl policy.Template
	if err := json.NewDecoder(w.Body).Decode(&tpl); err != nil {
		t.Fatalf("decode template: %v", err)
	}
	if tpl.ID == uuid.Nil || len(tpl.Criteria) != 2 {
		t.Errorf("unexpected template: %+v", tpl)
	}

	w = getPath(t, srv, "/api/v1/templates/"+tpl.ID.String())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got policy.Template
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode template: %v", err)
	}
	if got.Name != "Billing Calls" {
		t.Errorf("name = %q", got.Name)
	}

	if w := getPath(t, srv, "/api/v1/templates/"+uuid.NewString()); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown template, got %d", w.Code)
	}
}

func TestCreateTemplate_BadWeights(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	w := postJSON(t, srv, "/api/v1/templates", testToken, map[string]any{
		"name": "Broken",
		"criteria": []map[string]any{
			{"name": "Accuracy", "weight": 50},
			{"name": "Empathy", "weight": 40},
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.Contains(body["error"], "invalid policy template") {
		t.Errorf("error = %q, want a template validation message", body["error"])
	}
}

func TestGetImportJob_NotFound(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	if w := getPath(t, srv, "/api/v1/imports/"+uuid.NewString()); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := getPath(t, srv, "/api/v1/imports/zzz"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
