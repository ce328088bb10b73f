package enrichment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/conversation"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	orchestrator *Orchestrator
	maxBulk      int
}

func NewHTTPHandler(orchestrator *Orchestrator, maxBulk int) *HTTPHandler {
	if maxBulk <= 0 {
		maxBulk = 100
	}
	return &HTTPHandler{orchestrator: orchestrator, maxBulk: maxBulk}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/pipeline/bulk", h.handleBulk).Methods(http.MethodPost)
	router.HandleFunc("/pipeline/{id}/run", h.handleRun).Methods(http.MethodPost)
	router.HandleFunc("/pipeline/{id}/retry", h.handleRetry).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	result, err := h.orchestrator.RunPipeline(r.Context(), id)
	h.writeResult(w, id, result, err)
}

func (h *HTTPHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	result, err := h.orchestrator.RetryPipeline(r.Context(), id)
	h.writeResult(w, id, result, err)
}

func (h *HTTPHandler) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationIDs []string `json:"conversation_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.ConversationIDs) == 0 {
		http.Error(w, "conversation_ids required", http.StatusBadRequest)
		return
	}
	if len(req.ConversationIDs) > h.maxBulk {
		http.Error(w, "too many conversations in one request", http.StatusRequestEntityTooLarge)
		return
	}

	result := h.orchestrator.BulkEnrich(r.Context(), req.ConversationIDs)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *HTTPHandler) writeResult(w http.ResponseWriter, id string, result interface{}, err error) {
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).WithField("conversation_id", id).Error("pipeline run failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
