package web

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/thornhill6305/zui/internal/stream"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}

	return strings.EqualFold(originURL.Host, r.Host)
}

// handleTerminal upgrades to a WebSocket and bridges it to
// `tmux attach-session` for the session named in the query.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	if !s.limiter.Allow() {
		writeAPIError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(stream.MaxFrameBytes)

	id := uuid.NewString()
	name := r.URL.Query().Get(stream.SessionParam)
	log := bridgeLog.With(slog.String("conn_id", id), slog.String("session", name))

	switch {
	case name == "":
		log.Warn("terminal_rejected", slog.String("reason", "missing session"))
		rejectConn(conn, stream.CloseInvalidTarget, "missing session parameter")
		return
	case !stream.ValidSessionName(name):
		log.Warn("terminal_rejected", slog.String("reason", "invalid session name"))
		rejectConn(conn, stream.CloseInvalidTarget, "invalid session name")
		return
	case !s.sessions.Exists(r.Context(), name):
		log.Info("terminal_rejected", slog.String("reason", "session not found"))
		rejectConn(conn, stream.CloseSessionEnded, "session not found")
		return
	}

	term, err := s.launcher(name, initialCols, initialRows)
	if err != nil {
		log.Error("terminal_attach_failed", slog.String("error", err.Error()))
		rejectConn(conn, stream.CloseAttachFailed, "attach failed")
		return
	}

	s.bridges.Add(1)
	defer s.bridges.Done()

	log.Info("terminal_attached", slog.String("remote", r.RemoteAddr))
	started := time.Now()
	b := newTerminalBridge(id, name, conn, term, s.cfg.GracePeriod)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()
	reason := b.run(ctx)
	log.Info("terminal_detached",
		slog.Int("code", reason.code),
		slog.String("reason", reason.text),
		slog.Duration("duration", time.Since(started)))
}

func rejectConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	_ = conn.Close()
}
