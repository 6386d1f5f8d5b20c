package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/audit"
	"github.com/MikeSquared-Agency/anderson/internal/batch"
	"github.com/MikeSquared-Agency/anderson/internal/pipeline"
	"github.com/MikeSquared-Agency/anderson/internal/policy"
	"github.com/MikeSquared-Agency/anderson/internal/store"
)

// maxImportMemory caps how much of an import upload is held in memory
// before spilling to temp files.
const maxImportMemory = 32 << 20

type createRecordingRequest struct {
	FileName         string    `json:"file_name"`
	FileURL          string    `json:"file_url"`
	PolicyTemplateID uuid.UUID `json:"policy_template_id"`
}

func (s *Server) handleCreateRecording(w http.ResponseWriter, r *http.Request) {
	var req createRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileName == "" || req.FileURL == "" {
		writeError(w, http.StatusBadRequest, "file_name and file_url are required")
		return
	}
	if req.PolicyTemplateID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "policy_template_id is required")
		return
	}
	if _, err := s.db.LoadTemplate(r.Context(), req.PolicyTemplateID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "unknown policy_template_id")
			return
		}
		s.logger.Error("load template", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	rec := &pipeline.Recording{
		ID:               uuid.New(),
		FileName:         req.FileName,
		FileURL:          req.FileURL,
		Status:           pipeline.StatusUploaded,
		PolicyTemplateID: req.PolicyTemplateID,
		UploadedAt:       time.Now().UTC(),
	}
	if err := s.db.CreateRecording(r.Context(), rec); err != nil {
		s.logger.Error("create recording", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.audit.Record(r.Context(), audit.Entry{
		EntityType: audit.EntityRecording,
		EntityID:   rec.ID,
		ChangeType: audit.ChangeCreate,
		FieldName:  "file_name",
		NewValue:   rec.FileName,
	})

	if !s.disp.Enqueue(rec.ID) {
		s.logger.Warn("dispatch queue full, recording left for reprocess", "recording_id", rec.ID)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     rec.ID,
		"status": rec.Status,
	})
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recording id")
		return
	}
	rec, err := s.db.LoadRecording(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		s.logger.Error("load recording", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recording id")
		return
	}
	eval, err := s.db.LoadEvaluation(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no evaluation for recording")
			return
		}
		s.logger.Error("load evaluation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

type submitReviewRequest struct {
	ReviewerID     *uuid.UUID             `json:"reviewer_id"`
	Outcome        string                 `json:"outcome"`
	Note           string                 `json:"note"`
	ScoreOverrides []policy.CategoryScore `json:"score_overrides"`
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid review id")
		return
	}
	var req submitReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := "api"
	if req.ReviewerID != nil {
		actor = req.ReviewerID.String()
	}
	rev, err := s.ctrl.SubmitReview(r.Context(), pipeline.SubmitReviewParams{
		ReviewID:       id,
		ReviewerID:     req.ReviewerID,
		Actor:          actor,
		Outcome:        req.Outcome,
		Note:           req.Note,
		ScoreOverrides: req.ScoreOverrides,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "review not found")
		case errors.Is(err, pipeline.ErrReviewNotPending):
			writeError(w, http.StatusConflict, "review already submitted")
		case errors.Is(err, pipeline.ErrAdvanceInProgress):
			writeError(w, http.StatusConflict, "recording is busy, retry shortly")
		case errors.Is(err, pipeline.ErrInvalidOutcome), errors.Is(err, pipeline.ErrOverridesRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("submit review", "review_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportMemory); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	job, rows, err := s.orch.PrepareImport(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, batch.ErrBadFile) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("prepare import", "file", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Snapshot before the pool starts mutating the job.
	snapshot := *job
	go s.orch.ExecuteImport(context.Background(), job, rows)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) handleGetImportJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.db.LoadImportJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "import job not found")
			return
		}
		s.logger.Error("load import job", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type reprocessRequest struct {
	RecordingIDs []uuid.UUID `json:"recording_ids"`
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	var req reprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.RecordingIDs) == 0 {
		writeError(w, http.StatusBadRequest, "recording_ids is empty")
		return
	}

	job, err := s.orch.PrepareReprocess(r.Context(), req.RecordingIDs)
	if err != nil {
		s.logger.Error("prepare reprocess", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	snapshot := *job
	go s.orch.ExecuteReprocess(context.Background(), job, req.RecordingIDs)

	writeJSON(w, http.StatusAccepted, snapshot)
}

type createTemplateRequest struct {
	Name     string             `json:"name"`
	Criteria []policy.Criterion `json:"criteria"`
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tpl := &policy.Template{
		ID:        uuid.New(),
		Name:      req.Name,
		Criteria:  req.Criteria,
		CreatedAt: time.Now().UTC(),
	}
	if err := tpl.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.db.CreateTemplate(r.Context(), tpl); err != nil {
		s.logger.Error("create template", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.audit.Record(r.Context(), audit.Entry{
		EntityType: audit.EntityTemplate,
		EntityID:   tpl.ID,
		ChangeType: audit.ChangeCreate,
		FieldName:  "name",
		NewValue:   tpl.Name,
	})

	writeJSON(w, http.StatusCreated, tpl)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}
	tpl, err := s.db.LoadTemplate(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "template not found")
			return
		}
		s.logger.Error("load template", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}
