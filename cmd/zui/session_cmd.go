package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/thornhill6305/zui/internal/agent"
	"github.com/thornhill6305/zui/internal/session"
)

// commandContext is cancelled by Ctrl-C or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newFlagSet builds a subcommand flag set that reports errors instead of
// exiting, with usage written to stderr.
func (a *app) newFlagSet(name, usage, summary string, examples ...string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage: zui %s\n\n%s\n", usage, summary)
		if fs.HasFlags() {
			fmt.Fprintln(a.stderr)
			fmt.Fprintln(a.stderr, "Options:")
			fs.PrintDefaults()
		}
		if len(examples) > 0 {
			fmt.Fprintln(a.stderr)
			fmt.Fprintln(a.stderr, "Examples:")
			for _, ex := range examples {
				fmt.Fprintf(a.stderr, "  %s\n", ex)
			}
		}
	}
	return fs
}

// parseFlags returns the exit code to use when parsing stops the command.
func parseFlags(fs *pflag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func (a *app) fail(format string, args ...any) int {
	fmt.Fprintf(a.stderr, "Error: "+format+"\n", args...)
	return 1
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (a *app) handleList(args []string) int {
	fs := a.newFlagSet("ls", "ls [query] [options]",
		"List agent sessions, optionally fuzzy-filtered by name.",
		"zui ls", "zui ls api", "zui ls --json")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	ctx, cancel := commandContext()
	defer cancel()

	all := a.manager.List(ctx, session.ListOptions{})
	matches := session.Filter(all, strings.Join(fs.Args(), " "))

	if *jsonOutput {
		if matches == nil {
			matches = []session.Session{}
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(matches); err != nil {
			return a.fail("%v", err)
		}
		return 0
	}

	if len(matches) == 0 {
		fmt.Fprintln(a.stdout, errNoSessions.Error())
		return 0
	}

	// Rows keep their unfiltered position so `zui f N` stays valid.
	position := make(map[string]int, len(all))
	for i, s := range all {
		position[s.Name] = i
	}
	colored := isTerminal(a.stdout)
	fmt.Fprintln(a.stdout, listHeader)
	fmt.Fprintln(a.stdout, strings.Repeat("─", 78))
	for _, s := range matches {
		fmt.Fprintln(a.stdout, formatSessionLine(position[s.Name], s, colored))
	}
	return 0
}

func (a *app) handleSpawn(args []string) int {
	cfg := a.store.Get()
	fs := a.newFlagSet("spawn", "spawn <dir> [options]",
		"Start an agent in a new detached tmux session named after the directory and git branch.",
		"zui spawn ~/src/api", "zui spawn . --agent codex", "zui spawn . --yolo")
	agentID := fs.StringP("agent", "a", cfg.DefaultAgent, "Agent to run")
	yolo := fs.BoolP("yolo", "y", false, "Use the agent's unattended argument set")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	dir := "."
	switch fs.NArg() {
	case 0:
	case 1:
		dir = fs.Arg(0)
	default:
		fs.Usage()
		return 2
	}

	ctx, cancel := commandContext()
	defer cancel()

	name, err := a.manager.Spawn(ctx, dir, *agentID, *yolo)
	if err != nil {
		if errors.Is(err, agent.ErrUnknownAgent) {
			return a.fail("%v (try `zui agents`)", err)
		}
		return a.fail("%v", err)
	}
	fmt.Fprintf(a.stdout, "Spawned %s\n", name)
	return 0
}

func (a *app) handleKill(args []string) int {
	fs := a.newFlagSet("kill", "kill <name|#>", "Kill an agent session.", "zui kill api-main", "zui kill 2")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	ctx, cancel := commandContext()
	defer cancel()

	name, err := resolveTarget(fs.Arg(0), a.manager.List(ctx, session.ListOptions{}))
	if err != nil {
		return a.fail("%v", err)
	}
	if !a.manager.Exists(ctx, name) {
		return a.fail("session not found: %s", name)
	}
	if !a.manager.Kill(ctx, name) {
		return a.fail("failed to kill %s", name)
	}
	fmt.Fprintf(a.stdout, "Killed %s\n", name)
	return 0
}

func (a *app) handleAgents(args []string) int {
	fs := a.newFlagSet("agents", "agents [options]", "List the agents zui can spawn.")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	defaultID := a.store.Get().DefaultAgent
	providers := a.manager.Agents().All()

	if *jsonOutput {
		type agentJSON struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Binary  string `json:"binary"`
			Default bool   `json:"default"`
		}
		out := make([]agentJSON, 0, len(providers))
		for _, p := range providers {
			out = append(out, agentJSON{ID: p.ID, Name: p.DisplayName, Binary: p.Binary, Default: p.ID == defaultID})
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return a.fail("%v", err)
		}
		return 0
	}

	for _, p := range providers {
		marker := " "
		if p.ID == defaultID {
			marker = "*"
		}
		fmt.Fprintf(a.stdout, "%s %s %s %s\n", marker, padRight(p.ID, 10), padRight(p.DisplayName, 14), p.Binary)
	}
	return 0
}

func (a *app) handleFocus(args []string) int {
	fs := a.newFlagSet("f", "f <number>", "Switch the terminal to a session from `zui ls`.", "zui f 2", "zui 2")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	ctx, cancel := commandContext()
	defer cancel()

	sessions := a.manager.List(ctx, session.ListOptions{})
	i, err := parseIndex(fs.Arg(0), len(sessions))
	if err != nil {
		fmt.Fprintln(a.stderr, err.Error())
		return 1
	}
	if err := a.focus(sessions[i].Name); err != nil {
		return a.fail("%v", err)
	}
	return 0
}

// focusTmux hands the terminal to tmux and returns when the client detaches.
func (a *app) focusTmux(name string) error {
	cmd := a.tmux.FocusCommand(name)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
