// Package web serves the session API and the WebSocket terminal bridge
// behind `zui serve`.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/thornhill6305/zui/internal/agent"
	"github.com/thornhill6305/zui/internal/logging"
	"github.com/thornhill6305/zui/internal/session"
	"github.com/thornhill6305/zui/internal/stream"
	"github.com/thornhill6305/zui/internal/tmux"
)

var webLog = logging.ForComponent(logging.CompWeb)

// DefaultListenAddr is used when Config.ListenAddr is empty.
const DefaultListenAddr = "127.0.0.1:3030"

// SessionService is the part of session.Manager the server needs.
type SessionService interface {
	List(ctx context.Context, opts session.ListOptions) []session.Session
	Spawn(ctx context.Context, workdir, agentID string, yolo bool) (string, error)
	Kill(ctx context.Context, name string) bool
	Exists(ctx context.Context, name string) bool
	Workdir(ctx context.Context, name string) string
	Agents() *agent.Registry
}

var _ SessionService = (*session.Manager)(nil)

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr   string
	Token        string
	AllowRemote  bool
	DefaultAgent string

	// TokenSource, when set, is consulted on every request instead of Token
	// so an edited config applies without a restart.
	TokenSource func() string

	// GracePeriod is how long a detached terminal gets between SIGTERM and SIGKILL.
	GracePeriod time.Duration

	// RequestRate and RequestBurst limit spawn, kill and terminal handshakes.
	RequestRate  rate.Limit
	RequestBurst int

	Sessions SessionService
	Launcher Launcher
}

// Server wraps an HTTP server for zui web mode.
type Server struct {
	cfg        Config
	httpServer *http.Server
	sessions   SessionService
	launcher   Launcher
	limiter    *rate.Limiter
	baseCtx    context.Context
	cancelBase context.CancelFunc

	bridges sync.WaitGroup
}

// NewServer creates a web server with routes and middleware. Missing
// Sessions and Launcher fall back to the local tmux server.
func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.DefaultAgent == "" {
		cfg.DefaultAgent = agent.FallbackID
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if cfg.RequestRate <= 0 {
		cfg.RequestRate = 10
	}
	if cfg.RequestBurst <= 0 {
		cfg.RequestBurst = 20
	}

	s := &Server{
		cfg:      cfg,
		sessions: cfg.Sessions,
		launcher: cfg.Launcher,
		limiter:  rate.NewLimiter(cfg.RequestRate, cfg.RequestBurst),
	}
	if s.sessions == nil || s.launcher == nil {
		client := tmux.NewClient(nil, tmux.WithSocket(tmux.SocketFromEnv()))
		if s.sessions == nil {
			s.sessions = session.NewManager(client)
		}
		if s.launcher == nil {
			s.launcher = TmuxLauncher(client)
		}
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/agents", s.handleAgents)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/{name}", s.handleSessionByName)
	mux.HandleFunc(stream.TerminalPath, s.handleTerminal)

	handler := withRecover(s.withNetworkFilter(mux))

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          logging.NewStdLogger(logging.CompWeb, slog.LevelWarn),
	}

	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and blocks until shutdown or error.
// Returns nil on graceful shutdown.
func (s *Server) Start() error {
	webLog.Info("web_server_starting",
		slog.String("addr", s.cfg.ListenAddr),
		slog.Bool("token", s.token() != ""),
		slog.Bool("allow_remote", s.cfg.AllowRemote))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes live terminal bridges with
// "going away" and waits for their processes to be reaped.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		// Signal long-lived handlers (WS) to stop promptly.
		s.cancelBase()
	}

	err := s.httpServer.Shutdown(ctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		err = nil
	}
	if err != nil {
		return err
	}

	drained := make(chan struct{})
	go func() {
		s.bridges.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("terminal bridges still closing: %w", ctx.Err())
	}
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				webLog.Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return fmt.Sprintf("web-server(addr=%s, remote=%t)", s.cfg.ListenAddr, s.cfg.AllowRemote)
}
