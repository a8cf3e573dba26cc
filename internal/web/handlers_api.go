package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/thornhill6305/zui/internal/agent"
	"github.com/thornhill6305/zui/internal/session"
	"github.com/thornhill6305/zui/internal/stream"
)

type apiErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

type agentInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Binary      string `json:"binary"`
}

type spawnRequest struct {
	Workdir string `json:"workdir"`
	Agent   string `json:"agent"`
	Yolo    bool   `json:"yolo"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{Error: message, Code: code})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	providers := s.sessions.Agents().All()
	agents := make([]agentInfo, 0, len(providers))
	for _, p := range providers {
		agents = append(agents, agentInfo{ID: p.ID, DisplayName: p.DisplayName, Binary: p.Binary})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"agents":        agents,
		"default_agent": s.cfg.DefaultAgent,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	switch r.Method {
	case http.MethodGet:
		sessions := s.sessions.List(r.Context(), session.ListOptions{})
		sessions = session.Filter(sessions, r.URL.Query().Get("q"))
		if sessions == nil {
			sessions = []session.Session{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": sessions})
	case http.MethodPost:
		s.handleSpawn(w, r)
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeAPIError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		return
	}

	var req spawnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return
	}
	if req.Workdir == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "workdir is required")
		return
	}
	if req.Agent == "" {
		req.Agent = s.cfg.DefaultAgent
	}

	name, err := s.sessions.Spawn(r.Context(), req.Workdir, req.Agent, req.Yolo)
	if err != nil {
		status, code := spawnErrorStatus(err)
		webLog.Warn("spawn_failed",
			slog.String("workdir", req.Workdir),
			slog.String("agent", req.Agent),
			slog.String("error", err.Error()))
		writeAPIError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "name": name})
}

func spawnErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrUnknownAgent):
		return http.StatusBadRequest, "UNKNOWN_AGENT"
	case errors.Is(err, session.ErrInvalidWorkdir):
		return http.StatusBadRequest, "INVALID_WORKDIR"
	case errors.Is(err, session.ErrNameUnavailable):
		return http.StatusConflict, "NAME_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "MULTIPLEXER_FAILED"
	}
}

func (s *Server) handleSessionByName(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	name := r.PathValue("name")
	if !stream.ValidSessionName(name) {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid session name")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !s.sessions.Exists(r.Context(), name) {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
			return
		}
		var workdir any
		if dir := s.sessions.Workdir(r.Context(), name); dir != "" {
			workdir = dir
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": name, "workdir": workdir})
	case http.MethodDelete:
		if !s.limiter.Allow() {
			writeAPIError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		if !s.sessions.Exists(r.Context(), name) {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
			return
		}
		if !s.sessions.Kill(r.Context(), name) {
			writeAPIError(w, http.StatusInternalServerError, "KILL_FAILED", "failed to kill session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": name})
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}
