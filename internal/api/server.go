// Package api exposes the scoring engine over a REST surface: the
// presentation layer calls score, watch, refresh, and prefs endpoints and
// renders the results.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/homiewrecker/hawkeye/internal/history"
	"github.com/homiewrecker/hawkeye/internal/logger"
	"github.com/homiewrecker/hawkeye/internal/scout"
	"github.com/homiewrecker/hawkeye/internal/torn"
	"github.com/homiewrecker/hawkeye/internal/watch"
)

// Handler bundles the engine and its collaborators behind HTTP handlers.
type Handler struct {
	Engine  *scout.Engine
	History *history.Store
	Watch   *watch.List
}

type errorResponse struct {
	Ok      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type scoreResponse struct {
	Ok     bool         `json:"ok"`
	Result scout.Result `json:"result"`
}

type rosterRequest struct {
	TargetIDs []string `json:"target_ids"`
}

type rosterResponse struct {
	Ok      bool           `json:"ok"`
	Results []scout.Result `json:"results"`
}

type watchResponse struct {
	Ok       bool   `json:"ok"`
	TargetID string `json:"target_id"`
	Watched  bool   `json:"watched"`
}

type watchlistResponse struct {
	Ok        bool     `json:"ok"`
	TargetIDs []string `json:"target_ids"`
}

type refreshResponse struct {
	Ok      bool `json:"ok"`
	Records int  `json:"records"`
}

type prefsResponse struct {
	Ok    bool         `json:"ok"`
	Prefs scout.Config `json:"prefs"`
}

// RegisterRoutes mounts all API routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", h.handleHealthz)
		r.Route("/targets", func(r chi.Router) {
			r.Get("/{targetID}/score", h.handleScoreTarget)
			r.Post("/score", h.handleScoreRoster)
			r.Post("/{targetID}/watch", h.handleWatchToggle)
		})
		r.Get("/watchlist", h.handleWatchlist)
		r.Post("/history/refresh", h.handleHistoryRefresh)
		r.Get("/prefs", h.handlePrefsGet)
		r.Put("/prefs", h.handlePrefsPut)
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleScoreTarget(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")
	if targetID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "target ID is required")
		return
	}

	result, err := h.Engine.ScoreTarget(r.Context(), targetID)
	if err != nil {
		writeScoringError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{Ok: true, Result: result})
}

func (h *Handler) handleScoreRoster(w http.ResponseWriter, r *http.Request) {
	var req rosterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if len(req.TargetIDs) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "target_ids must not be empty")
		return
	}

	results, err := h.Engine.ScoreRoster(r.Context(), req.TargetIDs)
	if err != nil {
		writeScoringError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterResponse{Ok: true, Results: results})
}

func (h *Handler) handleWatchToggle(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")
	if targetID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "target ID is required")
		return
	}

	watched, err := h.Watch.Toggle(targetID)
	if err != nil {
		logger.Error("Watch toggle failed for %s: %v", targetID, err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to toggle watch")
		return
	}
	writeJSON(w, http.StatusOK, watchResponse{Ok: true, TargetID: targetID, Watched: watched})
}

func (h *Handler) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Watch.All()
	if err != nil {
		logger.Error("Watchlist read failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to read watchlist")
		return
	}
	writeJSON(w, http.StatusOK, watchlistResponse{Ok: true, TargetIDs: ids})
}

func (h *Handler) handleHistoryRefresh(w http.ResponseWriter, r *http.Request) {
	records, err := h.History.Refresh(r.Context(), true)
	if err != nil {
		if errors.Is(err, torn.ErrMissingKey) {
			writeError(w, http.StatusConflict, "missing_api_key", "no Torn API key is configured")
			return
		}
		logger.Error("Forced history refresh failed: %v", err)
		writeError(w, http.StatusBadGateway, "fetch_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Ok: true, Records: len(records)})
}

func (h *Handler) handlePrefsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, prefsResponse{Ok: true, Prefs: h.Engine.Prefs()})
}

func (h *Handler) handlePrefsPut(w http.ResponseWriter, r *http.Request) {
	var prefs scout.Config
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := h.Engine.SetPrefs(prefs); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_prefs", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prefsResponse{Ok: true, Prefs: h.Engine.Prefs()})
}

// writeScoringError maps engine errors to API responses. Only a missing
// credential is user-actionable; everything else is an upstream failure.
func writeScoringError(w http.ResponseWriter, err error) {
	if errors.Is(err, torn.ErrMissingKey) {
		writeError(w, http.StatusConflict, "missing_api_key", "no Torn API key is configured")
		return
	}
	logger.Error("Scoring failed: %v", err)
	writeError(w, http.StatusBadGateway, "scoring_failed", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Ok: false, Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}
