package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"exemplar/internal/domain"
	"exemplar/internal/extract"
	"exemplar/internal/generate"
	"exemplar/internal/platform/applog"
)

const maxK = 50

type handler struct {
	retrieval      Retrieval
	engine         generate.Engine
	refreshTimeout time.Duration
}

func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.retrieval.Status()
	status := http.StatusOK
	if !st.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, st)
}

type contextResponse struct {
	Query    string   `json:"query"`
	K        int      `json:"k"`
	Contexts []string `json:"contexts"`
}

// Context handles GET /v1/context?q=&k=.
func (h *handler) Context(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	k, err := parseK(r.URL.Query().Get("k"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, contextResponse{Query: q, K: k, Contexts: h.retrieval.RetrieveContext(r.Context(), q, k)})
}

// Refresh handles POST /v1/refresh.
func (h *handler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.refreshTimeout)
		defer cancel()
	}
	if err := h.retrieval.Refresh(ctx); err != nil {
		applog.Warn("[API] refresh failed", "error", err)
		writeError(w, refreshStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.retrieval.Status())
}

func (h *handler) Holdout(w http.ResponseWriter, r *http.Request) {
	entries, err := h.retrieval.Holdout()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []domain.HoldoutEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type generateRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type generateResponse struct {
	Reply    string   `json:"reply"`
	JSON     any      `json:"json,omitempty"`
	Contexts []string `json:"contexts"`
}

// Generate handles POST /v1/generate.
func (h *handler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "generation engine not configured")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.K < 0 || req.K > maxK {
		writeError(w, http.StatusBadRequest, "k out of range")
		return
	}

	contexts := h.retrieval.RetrieveContext(r.Context(), req.Query, req.K)
	reply, err := h.engine.Generate(r.Context(), req.Query, contexts)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	resp := generateResponse{Reply: reply, Contexts: contexts}
	if v, ok := extract.Object(reply); ok {
		resp.JSON = v
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseK(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 0 || k > maxK {
		return 0, errors.New("k must be an integer between 0 and 50")
	}
	return k, nil
}

func refreshStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrLoad), errors.Is(err, domain.ErrHoldoutIO):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
