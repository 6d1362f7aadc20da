package suite

import (
	"encoding/json"
	"net/http"
	"strings"

	"blackjack-lite/apps/server/internal/auth"
)

type HTTPHandler struct {
	auth     auth.Service
	registry *Registry
	progress Service
}

func NewHTTPHandler(authService auth.Service, registry *Registry, progress Service) *HTTPHandler {
	return &HTTPHandler{
		auth:     authService,
		registry: registry,
		progress: progress,
	}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/suites", h.handleList)
	mux.HandleFunc("/api/suites/", h.handleSuite)
}

type stageInfo struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	Episodes          int     `json:"episodes"`
	Decks             int     `json:"decks"`
	S17               bool    `json:"s17"`
	DAS               bool    `json:"das"`
	Double11VsAce     bool    `json:"double_11_vs_ace"`
	SeedBase          int64   `json:"seed_base"`
	TargetMeanDeltaEV float64 `json:"target_mean_delta_ev"`
}

type suiteInfo struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Stages []stageInfo `json:"stages"`
}

type stageProgressInfo struct {
	Index          int     `json:"index"`
	EpisodesPlayed int     `json:"episodes_played"`
	DeltaEVTotal   float64 `json:"delta_ev_total"`
	RewardTotal    float64 `json:"reward_total"`
	MeanDeltaEV    float64 `json:"mean_delta_ev"`
	Cleared        bool    `json:"cleared"`
}

type progressResponse struct {
	SuiteID         string              `json:"suite_id"`
	RunnerID        uint64              `json:"runner_id"`
	HighestUnlocked int                 `json:"highest_unlocked"`
	Stages          []stageProgressInfo `json:"stages"`
	UpdatedAtMs     int64               `json:"updated_at_ms"`
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	suites := h.registry.List()
	out := make([]suiteInfo, 0, len(suites))
	for _, s := range suites {
		out = append(out, toSuiteInfo(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) handleSuite(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/suites/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "suite id required")
		return
	}

	s, ok := h.registry.Get(parts[0])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown suite")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, toSuiteInfo(s))
	case len(parts) == 2 && parts[1] == "progress":
		h.handleProgress(w, r, s)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *HTTPHandler) handleProgress(w http.ResponseWriter, r *http.Request, s *Suite) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing session token")
		return
	}
	runnerID, _, ok := h.auth.ResolveSession(token)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid session token")
		return
	}

	progress, err := h.progress.GetProgress(r.Context(), runnerID, s)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}

	resp := progressResponse{
		SuiteID:         progress.SuiteID,
		RunnerID:        progress.RunnerID,
		HighestUnlocked: progress.HighestUnlocked,
		Stages:          make([]stageProgressInfo, 0, len(progress.Stages)),
		UpdatedAtMs:     progress.UpdatedAt.UnixMilli(),
	}
	for _, sp := range progress.Stages {
		resp.Stages = append(resp.Stages, stageProgressInfo{
			Index:          sp.Index,
			EpisodesPlayed: sp.EpisodesPlayed,
			DeltaEVTotal:   sp.DeltaEVTotal,
			RewardTotal:    sp.RewardTotal,
			MeanDeltaEV:    sp.MeanDeltaEV,
			Cleared:        sp.Cleared,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toSuiteInfo(s *Suite) suiteInfo {
	info := suiteInfo{
		ID:     s.ID,
		Name:   s.Name,
		Stages: make([]stageInfo, 0, len(s.Stages)),
	}
	for _, st := range s.Stages {
		info.Stages = append(info.Stages, stageInfo{
			Index:             st.Index,
			Name:              st.Name,
			Episodes:          st.Episodes,
			Decks:             st.Rules.Decks,
			S17:               st.Rules.S17,
			DAS:               st.Rules.DAS,
			Double11VsAce:     st.Rules.Double11VsAce,
			SeedBase:          st.SeedBase,
			TargetMeanDeltaEV: st.TargetMeanDeltaEV,
		})
	}
	return info
}

func bearerToken(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
