package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/thornhill6305/zui/internal/config"
	"github.com/thornhill6305/zui/internal/logging"
	"github.com/thornhill6305/zui/internal/session"
	"github.com/thornhill6305/zui/internal/shell"
	"github.com/thornhill6305/zui/internal/tmux"
)

const Version = "0.6.0"

var cliLog = logging.ForComponent(logging.CompCLI)

func init() {
	initColorProfile()
}

var colorProfiles = map[string]termenv.Profile{
	"truecolor": termenv.TrueColor,
	"256":       termenv.ANSI256,
	"16":        termenv.ANSI,
	"none":      termenv.Ascii,
}

// initColorProfile picks the lipgloss colour profile for status tags.
// ZUI_COLOR wins; otherwise termenv decides from stdout and NO_COLOR.
func initColorProfile() {
	if p, ok := colorProfiles[strings.ToLower(os.Getenv("ZUI_COLOR"))]; ok {
		lipgloss.SetColorProfile(p)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches one command line and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	configPath, args := extractConfigFlag(args)

	if len(args) == 0 {
		printHelp(stdout)
		return 0
	}

	// Focus shorthands: `zui 2` and `zui f2`.
	if isIndexArg(args[0]) {
		args = append([]string{"f", args[0]}, args[1:]...)
	} else if len(args[0]) > 1 && args[0][0] == 'f' && isIndexArg(args[0][1:]) {
		args = append([]string{"f", args[0][1:]}, args[1:]...)
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "zui v%s\n", Version)
		return 0
	case "help", "--help", "-h":
		printHelp(stdout)
		return 0
	}

	a := newApp(configPath, stdout, stderr, args[0] == "serve")
	defer logging.Shutdown()

	switch args[0] {
	case "ls", "list":
		return a.handleList(args[1:])
	case "spawn", "new":
		return a.handleSpawn(args[1:])
	case "kill", "rm":
		return a.handleKill(args[1:])
	case "agents":
		return a.handleAgents(args[1:])
	case "f", "focus":
		return a.handleFocus(args[1:])
	case "serve":
		return a.handleServe(args[1:])
	case "web":
		return a.handleWeb(args[1:])
	case "attach":
		return a.handleAttach(args[1:])
	case "config":
		return a.handleConfig(args[1:])
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printHelp(stderr)
		return 2
	}
}

// extractConfigFlag pulls the global --config/-c flag out of args so the
// subcommand flag sets never see it.
func extractConfigFlag(args []string) (string, []string) {
	var path string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "-c":
			if i+1 < len(args) {
				path = args[i+1]
				i++
			}
		case strings.HasPrefix(arg, "--config="):
			path = strings.TrimPrefix(arg, "--config=")
		default:
			rest = append(rest, arg)
		}
	}
	return path, rest
}

// app carries the dependencies shared by every command.
type app struct {
	store   *config.Store
	mux     session.Multiplexer
	tmux    *tmux.Client
	manager *session.Manager

	stdout io.Writer
	stderr io.Writer

	// executable resolves the binary `zui web start` launches.
	executable func() (string, error)

	// settle is how long `zui web start` waits before checking liveness.
	settle time.Duration

	// focus hands the terminal to a session.
	focus func(name string) error
}

func newApp(configPath string, stdout, stderr io.Writer, foreground bool) *app {
	path := config.Locate(configPath)
	cfg, err := config.LoadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v (using defaults)\n", err)
	}
	initLogging(cfg, foreground)

	runner := shell.NewExecRunner(cfg.CommandTimeout())
	client := tmux.NewClient(runner, tmux.WithSocket(cfg.Socket))
	store := config.NewStore(path, cfg)

	a := &app{
		store:      store,
		mux:        client,
		tmux:       client,
		stdout:     stdout,
		stderr:     stderr,
		executable: os.Executable,
		settle:     time.Second,
	}
	a.focus = a.focusTmux
	a.manager = session.NewManager(client,
		session.WithRunner(runner),
		session.WithExcludeSource(storeExclude(store)),
		session.WithArgsOverride(storeOverrides(store)))
	return a
}

// storeExclude reads the exclude list from the live config on every poll.
func storeExclude(store *config.Store) func() []string {
	return func() []string { return store.Get().Exclude }
}

// storeOverrides reads agent arguments from the live config so a reload
// applies to the next spawn.
func storeOverrides(store *config.Store) session.ArgsOverride {
	return func(id string) ([]string, []string, bool) {
		args, ok := store.Get().AgentArgsFor(id)
		if !ok {
			return nil, nil, false
		}
		return args.DefaultArgs, args.YoloArgs, true
	}
}

func initLogging(cfg *config.Config, foreground bool) {
	debug := cfg.Logs.Debug || os.Getenv("ZUI_DEBUG") != ""
	dir := cfg.Logs.Dir
	if dir == "" && debug {
		if d, err := config.Dir(); err == nil {
			dir = filepath.Join(d, "logs")
		}
	}
	if dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	logging.Init(logging.Config{
		Dir:        dir,
		Level:      cfg.Logs.Level,
		Format:     cfg.Logs.Format,
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxBackups: cfg.Logs.MaxBackups,
		MaxAgeDays: cfg.Logs.MaxAgeDays,
		Compress:   cfg.Logs.Compress,
		Stderr:     foreground && debug,
		PprofAddr:  cfg.Logs.Pprof,
		Debug:      debug,
	})

	if dir != "" {
		// SIGUSR1 dumps the in-memory ring buffer next to the log file.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGUSR1)
		go func() {
			for range sigCh {
				dumpPath := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.log", time.Now().Unix()))
				if err := logging.DumpRingBuffer(dumpPath); err != nil {
					cliLog.Warn("ring_buffer_dump_failed", slog.String("error", err.Error()))
					continue
				}
				cliLog.Info("ring_buffer_dumped", slog.String("path", dumpPath))
			}
		}()
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, "zui v%s\n", Version)
	fmt.Fprintln(w, "Manage AI coding agents running in tmux")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: zui [--config <file>] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  ls, list [query]         List sessions (fuzzy filter by name)")
	fmt.Fprintln(w, "  spawn <dir>              Start an agent in a new session")
	fmt.Fprintln(w, "  kill <name|#>            Kill a session")
	fmt.Fprintln(w, "  f, focus <#>             Switch to a session (also: zui 2, zui f2)")
	fmt.Fprintln(w, "  agents                   List supported agents")
	fmt.Fprintln(w, "  serve                    Run the web server in the foreground")
	fmt.Fprintln(w, "  web start|stop|status    Manage the background web server")
	fmt.Fprintln(w, "  attach <name|#>          Stream a session through the web server")
	fmt.Fprintln(w, "  config path|show|init    Inspect or create the config file")
	fmt.Fprintln(w, "  version                  Show version")
	fmt.Fprintln(w, "  help                     Show this help")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  ZUI_COLOR    truecolor, 256, 16 or none")
	fmt.Fprintln(w, "  ZUI_DEBUG    enable debug logging")
}
