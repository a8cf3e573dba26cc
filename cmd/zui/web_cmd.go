package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/thornhill6305/zui/internal/config"
	"github.com/thornhill6305/zui/internal/session"
	"github.com/thornhill6305/zui/internal/web"
)

type webFlags struct {
	listenAddr  string
	token       string
	allowRemote bool

	// liveToken reads the token from the config store per request instead
	// of pinning token, so a config edit applies to a running server.
	liveToken bool
}

func (a *app) buildWebServer(flags webFlags) *web.Server {
	cfg := a.store.Get()
	webCfg := web.Config{
		ListenAddr:   flags.listenAddr,
		Token:        flags.token,
		AllowRemote:  flags.allowRemote,
		DefaultAgent: cfg.DefaultAgent,
		GracePeriod:  cfg.GracePeriod(),
		Sessions:     a.manager,
	}
	if flags.liveToken {
		webCfg.TokenSource = func() string { return a.store.Get().Web.Token }
	}
	if a.tmux != nil {
		webCfg.Launcher = web.TmuxLauncher(a.tmux)
	}
	return web.NewServer(webCfg)
}

func (a *app) handleServe(args []string) int {
	cfg := a.store.Get()
	fs := a.newFlagSet("serve", "serve [options]",
		"Run the session API and terminal bridge in the foreground.",
		"zui serve", "zui serve --listen 0.0.0.0:3030 --token s3cret")
	listen := fs.StringP("listen", "l", cfg.WebAddr(), "Listen address (host:port)")
	token := fs.String("token", cfg.Web.Token, "Require this token on API and terminal requests")
	allowRemote := fs.Bool("allow-remote", cfg.Web.AllowRemote, "Accept clients outside private networks")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	server := a.buildWebServer(webFlags{
		listenAddr:  *listen,
		token:       *token,
		allowRemote: *allowRemote,
		liveToken:   !fs.Changed("token"),
	})

	ctx, cancel := commandContext()
	defer cancel()

	err := a.store.Watch(ctx, func(c *config.Config) {
		cliLog.Info("config_reloaded",
			slog.String("path", a.store.Path()),
			slog.String("default_agent", c.DefaultAgent))
	})
	if err != nil {
		cliLog.Debug("config_watch_unavailable", slog.String("error", err.Error()))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	fmt.Fprintf(a.stdout, "zui web server listening on http://%s\n", server.Addr())

	select {
	case err := <-errCh:
		if err != nil {
			return a.fail("web server: %v", err)
		}
		return 0
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.GracePeriod()+5*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return a.fail("shutdown: %v", err)
	}
	return 0
}

// handleWeb manages `zui serve` running detached in the reserved tmux session.
func (a *app) handleWeb(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(a.stderr, "Usage: zui web start|stop|status")
		return 2
	}

	ctx, cancel := commandContext()
	defer cancel()

	switch args[0] {
	case "start":
		return a.webStart(ctx, args[1:])
	case "stop":
		if !a.mux.HasSession(ctx, session.WebSessionName) {
			fmt.Fprintln(a.stdout, "Web server not running")
			return 0
		}
		if err := a.mux.KillSession(ctx, session.WebSessionName); err != nil {
			return a.fail("failed to stop web server: %v", err)
		}
		fmt.Fprintln(a.stdout, "Web server stopped")
		return 0
	case "status":
		if a.mux.HasSession(ctx, session.WebSessionName) {
			fmt.Fprintf(a.stdout, "Web server running on http://%s\n", a.store.Get().WebAddr())
			return 0
		}
		fmt.Fprintln(a.stdout, "Web server not running")
		return 1
	default:
		fmt.Fprintf(a.stderr, "Unknown web command: %s\n", args[0])
		fmt.Fprintln(a.stderr, "Usage: zui web start|stop|status")
		return 2
	}
}

func (a *app) webStart(ctx context.Context, args []string) int {
	cfg := a.store.Get()
	fs := a.newFlagSet("web start", "web start [options]",
		"Start `zui serve` in the background tmux session "+session.WebSessionName+".")
	listen := fs.StringP("listen", "l", "", "Listen address (default from config)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if a.mux.HasSession(ctx, session.WebSessionName) {
		fmt.Fprintln(a.stdout, "Web server already running")
		return 0
	}

	exe, err := a.executable()
	if err != nil {
		return a.fail("locate zui binary: %v", err)
	}
	command := fmt.Sprintf("%s --config %s serve", shellQuote(exe), shellQuote(a.store.Path()))
	addr := cfg.WebAddr()
	if *listen != "" {
		command += " --listen " + shellQuote(*listen)
		addr = *listen
	}

	dir, err := os.UserHomeDir()
	if err != nil {
		dir = "/"
	}
	if err := a.mux.NewSession(ctx, session.WebSessionName, dir, command); err != nil {
		return a.fail("failed to start web server: %v", err)
	}

	select {
	case <-ctx.Done():
		return 1
	case <-time.After(a.settle):
	}

	// serve exits at once when the port is taken, which ends the session.
	if !a.mux.HasSession(ctx, session.WebSessionName) {
		return a.fail("failed to start, %s may be in use", addr)
	}
	fmt.Fprintf(a.stdout, "Web server started on http://%s\n", addr)
	return 0
}
