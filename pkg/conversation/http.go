package conversation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/conversations", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/conversations/{id}", h.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/conversations/{id}/status", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/conversations/{id}/report", h.handleReport).Methods(http.MethodGet)
	router.HandleFunc("/conversations/{id}/quality-history", h.handleQualityHistory).Methods(http.MethodGet)
	router.HandleFunc("/conversations/{id}/download", h.handleDownload).Methods(http.MethodGet)
	router.HandleFunc("/conversations/{id}/review", h.handleReview).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	convs, err := h.service.ListConversations(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list conversations")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": convs,
		"count":         len(convs),
	})
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	conv, err := h.service.GetConversation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch conversation")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, enrichmentError, err := h.service.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch conversation status")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	payload := map[string]interface{}{
		"conversation_id":   id,
		"enrichment_status": status,
	}
	if enrichmentError != "" {
		payload["enrichment_error"] = enrichmentError
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *HTTPHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conv, err := h.service.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch validation report")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if conv.ValidationReport == nil {
		http.Error(w, "conversation has not been validated yet", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id":   id,
		"enrichment_status": conv.EnrichmentStatus,
		"validation_report": conv.ValidationReport,
	})
}

func (h *HTTPHandler) handleQualityHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rollups, err := h.service.QualityHistory(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch quality history")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	entries := make([]map[string]interface{}, 0, len(rollups))
	for _, rollup := range rollups {
		entries = append(entries, map[string]interface{}{
			"metric":     rollup.Metric,
			"value":      map[string]interface{}(rollup.Value),
			"event_time": rollup.EventTime,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": id,
		"history":         entries,
	})
}

func (h *HTTPHandler) handleDownload(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.EnrichedDownloadURL(r.Context(), mux.Vars(r)["id"], 15*time.Minute)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"download_url": url})
}

func (h *HTTPHandler) handleReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReviewerID string `json:"reviewer_id"`
		Notes      string `json:"notes,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReviewerID == "" {
		http.Error(w, "reviewer_id required", http.StatusBadRequest)
		return
	}
	if err := h.service.SetReview(r.Context(), mux.Vars(r)["id"], req.ReviewerID, req.Notes); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to record review")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
