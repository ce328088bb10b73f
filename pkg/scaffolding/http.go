package scaffolding

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	repo     *Repository
	selector *Selector
}

func NewHTTPHandler(repo *Repository, selector *Selector) *HTTPHandler {
	return &HTTPHandler{repo: repo, selector: selector}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/templates", h.handleListTemplates).Methods(http.MethodGet)
	router.HandleFunc("/templates/select", h.handleSelect).Methods(http.MethodPost)
	router.HandleFunc("/templates/rank", h.handleRank).Methods(http.MethodPost)
	router.HandleFunc("/templates/{id}", h.handleGetTemplate).Methods(http.MethodGet)
	router.HandleFunc("/templates/{id}/compatibility", h.handleCompatibility).Methods(http.MethodGet)
	router.HandleFunc("/personas", h.handleListPersonas).Methods(http.MethodGet)
	router.HandleFunc("/emotional-arcs", h.handleListArcs).Methods(http.MethodGet)
	router.HandleFunc("/topics", h.handleListTopics).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))

	templates, err := h.repo.ListTemplates(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list templates")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *HTTPHandler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}
	template, err := h.repo.Template(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "template not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch template")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"template":     template,
		"recent_usage": h.repo.RecentUsage(r.Context(), id),
	})
}

func (h *HTTPHandler) handleSelect(w http.ResponseWriter, r *http.Request) {
	var criteria models.SelectionCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	templates, err := h.selector.SelectTemplates(r.Context(), criteria)
	if err != nil {
		if criteria.EmotionalArcType == "" {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("template selection failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	})
}

func (h *HTTPHandler) handleRank(w http.ResponseWriter, r *http.Request) {
	var criteria models.SelectionCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ranked, err := h.selector.RankedTemplates(r.Context(), criteria)
	if err != nil {
		if criteria.EmotionalArcType == "" {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("template ranking failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ranked": ranked,
		"count":  len(ranked),
	})
}

func (h *HTTPHandler) handleCompatibility(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}
	result, err := h.selector.ValidateCompatibility(
		r.Context(), id,
		r.URL.Query().Get("persona"),
		r.URL.Query().Get("topic"),
	)
	if err != nil {
		logger.Log.WithError(err).Error("compatibility check failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := h.repo.ListPersonas(r.Context(), parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list personas")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, personas)
}

func (h *HTTPHandler) handleListArcs(w http.ResponseWriter, r *http.Request) {
	arcs, err := h.repo.ListArcs(r.Context(), parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list emotional arcs")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, arcs)
}

func (h *HTTPHandler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.repo.ListTopics(r.Context(), parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list topics")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
