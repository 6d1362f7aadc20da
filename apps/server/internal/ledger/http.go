package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"blackjack-lite/apps/server/internal/auth"
)

type HTTPHandler struct {
	auth   auth.Service
	ledger Service
}

type errorResponse struct {
	Error string `json:"error"`
}

type upsertReplayEpisodeRequest struct {
	Events  []EventItem    `json:"events"`
	Summary map[string]any `json:"summary"`
}

func NewHTTPHandler(authService auth.Service, ledgerService Service) *HTTPHandler {
	return &HTTPHandler{
		auth:   authService,
		ledger: ledgerService,
	}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/episodes/live/recent", h.handleRecent(SourceLive))
	mux.HandleFunc("/api/episodes/replay/recent", h.handleRecent(SourceReplay))
	mux.HandleFunc("/api/episodes/live/", h.handleEpisodes(SourceLive))
	mux.HandleFunc("/api/episodes/replay/", h.handleEpisodes(SourceReplay))
}

func (h *HTTPHandler) handleRecent(source Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		runnerID, ok := h.resolveRunnerID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}

		limit := parseLimit(r.URL.Query().Get("limit"))
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		items, err := h.ledger.ListRecent(ctx, runnerID, source, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "query recent episodes failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
		})
	}
}

func (h *HTTPHandler) handleEpisodes(source Source) http.HandlerFunc {
	prefix := "/api/episodes/" + string(source) + "/"
	return func(w http.ResponseWriter, r *http.Request) {
		runnerID, ok := h.resolveRunnerID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}

		path := strings.TrimPrefix(r.URL.Path, prefix)
		path = strings.TrimSpace(path)
		if path == "" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		parts := strings.Split(path, "/")
		episodeID := strings.TrimSpace(parts[0])
		if episodeID == "" {
			writeError(w, http.StatusBadRequest, "missing episode id")
			return
		}

		if len(parts) == 1 {
			if source == SourceReplay && r.Method == http.MethodPost {
				h.handleUpsertReplayEpisode(w, r, runnerID, episodeID)
				return
			}
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			h.handleGetEpisode(w, r, runnerID, source, episodeID)
			return
		}

		if len(parts) == 2 && parts[1] == "save" {
			switch r.Method {
			case http.MethodPost:
				h.handleSetSaved(w, r, runnerID, source, episodeID, true)
			case http.MethodDelete:
				h.handleSetSaved(w, r, runnerID, source, episodeID, false)
			default:
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			}
			return
		}

		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *HTTPHandler) handleGetEpisode(w http.ResponseWriter, r *http.Request, runnerID uint64, source Source, episodeID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	events, err := h.ledger.GetEpisodeEvents(ctx, runnerID, source, episodeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "episode not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "query episode events failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"episode_id": episodeID,
		"source":     source,
		"events":     events,
	})
}

func (h *HTTPHandler) handleSetSaved(w http.ResponseWriter, r *http.Request, runnerID uint64, source Source, episodeID string, saved bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	err := h.ledger.SetSaved(ctx, runnerID, source, episodeID, saved)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "episode not found")
		case errors.Is(err, ErrSavedLimitReach):
			writeError(w, http.StatusConflict, "saved episode limit reached")
		default:
			writeError(w, http.StatusInternalServerError, "update save state failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"episode_id": episodeID,
		"source":     source,
		"is_saved":   saved,
	})
}

func (h *HTTPHandler) handleUpsertReplayEpisode(w http.ResponseWriter, r *http.Request, runnerID uint64, episodeID string) {
	var req upsertReplayEpisodeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()
	if err := h.ledger.UpsertReplayEpisode(ctx, runnerID, episodeID, req.Events, req.Summary); err != nil {
		writeError(w, http.StatusInternalServerError, "upsert replay episode failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"episode_id": episodeID,
		"source":     SourceReplay,
		"saved":      true,
	})
}

func (h *HTTPHandler) resolveRunnerID(r *http.Request) (uint64, bool) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return 0, false
	}
	runnerID, _, ok := h.auth.ResolveSession(token)
	if !ok {
		return 0, false
	}
	return runnerID, true
}

func parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 20
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 20
	}
	if n > 100 {
		return 100
	}
	return n
}

func bearerToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
