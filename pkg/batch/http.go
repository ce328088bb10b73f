package batch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/convoforge-ai/platform/pkg/generation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	scheduler *Scheduler
	maxBody   int64
}

func NewHTTPHandler(scheduler *Scheduler, maxBody int64) *HTTPHandler {
	return &HTTPHandler{scheduler: scheduler, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/batches", h.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/batches", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/batches/estimate", h.handleEstimate).Methods(http.MethodPost)
	router.HandleFunc("/batches/active", h.handleActive).Methods(http.MethodGet)
	router.HandleFunc("/batches/{id}", h.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/batches/{id}", h.handleDelete).Methods(http.MethodDelete)
	router.HandleFunc("/batches/{id}/summary", h.handleSummary).Methods(http.MethodGet)
	router.HandleFunc("/batches/{id}/start", h.handleStart).Methods(http.MethodPost)
	router.HandleFunc("/batches/{id}/pause", h.handlePause).Methods(http.MethodPost)
	router.HandleFunc("/batches/{id}/resume", h.handleResume).Methods(http.MethodPost)
	router.HandleFunc("/batches/{id}/cancel", h.handleCancel).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	var req models.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	job, err := h.scheduler.CreateJob(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	jobs, err := h.scheduler.ListJobs(r.Context(), r.URL.Query().Get("status"), r.URL.Query().Get("created_by"), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list batch jobs")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *HTTPHandler) handleActive(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.scheduler.ActiveJobs(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to list active batch jobs")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	if err := h.scheduler.DeleteJob(r.Context(), jobID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemCount int `json:"item_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, generation.Estimate(req.ItemCount))
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.scheduler.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *HTTPHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	summary, err := h.scheduler.Summary(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *HTTPHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.scheduler.Start, StatusProcessing)
}

func (h *HTTPHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.scheduler.Pause, StatusPaused)
}

func (h *HTTPHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.scheduler.Resume, StatusProcessing)
}

func (h *HTTPHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.scheduler.Cancel, StatusCancelled)
}

func (h *HTTPHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, jobID uuid.UUID) error, resulting string) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), jobID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID.String(),
		"status": resulting,
	})
}

func (h *HTTPHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrJobNotFound):
		http.Error(w, "batch job not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Log.WithError(err).Error("batch request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
