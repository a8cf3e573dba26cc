// Package tmux adapts the tmux control CLI to the small surface zui needs:
// listing, creating, killing and inspecting sessions, capturing pane text,
// and tagging sessions with metadata that outlives the zui process.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/thornhill6305/zui/internal/logging"
	"github.com/thornhill6305/zui/internal/shell"
)

var tmuxLog = logging.ForComponent(logging.CompTmux)

// ErrDuplicateSession is returned by NewSession when the name is already taken.
var ErrDuplicateSession = errors.New("duplicate session")

// listFormat is the -F format used by ListSessions.
const listFormat = "#{session_name}|#{session_created}|#{session_activity}"

// SessionInfo is one row of list-sessions output.
type SessionInfo struct {
	Name       string
	Created    time.Time
	LastActive time.Time
}

// Client issues tmux commands through a shell.Runner.
type Client struct {
	runner shell.Runner
	socket string
	binary string
}

// Option configures a Client.
type Option func(*Client)

// WithSocket targets the tmux server listening on the given socket path (-S).
func WithSocket(path string) Option {
	return func(c *Client) { c.socket = path }
}

// WithBinary overrides the tmux executable name.
func WithBinary(name string) Option {
	return func(c *Client) { c.binary = name }
}

// NewClient returns a Client. A nil runner uses shell.ExecRunner with the default timeout.
func NewClient(runner shell.Runner, opts ...Option) *Client {
	if runner == nil {
		runner = shell.NewExecRunner(shell.DefaultTimeout)
	}
	c := &Client{runner: runner, binary: "tmux"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Socket returns the configured socket path, if any.
func (c *Client) Socket() string { return c.socket }

// Binary returns the tmux executable name.
func (c *Client) Binary() string { return c.binary }

func (c *Client) args(args ...string) []string {
	if c.socket == "" {
		return args
	}
	return append([]string{"-S", c.socket}, args...)
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	return c.runner.Run(ctx, c.binary, c.args(args...)...)
}

// ListSessions returns all sessions in server order. A missing server is
// reported as an empty list; malformed rows are skipped.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	out, err := c.run(ctx, "list-sessions", "-F", listFormat)
	if err != nil {
		if isNoServer(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return parseSessionList(string(out)), nil
}

func parseSessionList(out string) []SessionInfo {
	var sessions []SessionInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// Session names cannot contain '|' but may contain ':' or '.'.
		parts := strings.Split(line, "|")
		if len(parts) != 3 || parts[0] == "" {
			tmuxLog.Debug("list_sessions_skip_row", slog.String("row", line))
			continue
		}
		created, err1 := strconv.ParseInt(parts[1], 10, 64)
		activity, err2 := strconv.ParseInt(parts[2], 10, 64)
		if err1 != nil || err2 != nil {
			tmuxLog.Debug("list_sessions_skip_row", slog.String("row", line))
			continue
		}
		sessions = append(sessions, SessionInfo{
			Name:       parts[0],
			Created:    time.Unix(created, 0),
			LastActive: time.Unix(activity, 0),
		})
	}
	return sessions
}

func isNoServer(err error) bool {
	var cmdErr *shell.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	msg := cmdErr.Stderr
	return strings.Contains(msg, "no server running") ||
		strings.Contains(msg, "no sessions") ||
		strings.Contains(msg, "error connecting to")
}

// HasSession reports whether a session with exactly this name exists.
func (c *Client) HasSession(ctx context.Context, name string) bool {
	// "=" forces an exact match instead of tmux's prefix matching.
	return shell.OK(ctx, c.runner, c.binary, c.args("has-session", "-t", "="+name)...)
}

// NewSession creates a detached session running command in dir.
func (c *Client) NewSession(ctx context.Context, name, dir, command string) error {
	args := []string{"new-session", "-d", "-s", name, "-c", dir}
	if command != "" {
		args = append(args, command)
	}
	if _, err := c.run(ctx, args...); err != nil {
		var cmdErr *shell.CommandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Stderr, "duplicate session") {
			return fmt.Errorf("%s: %w", name, ErrDuplicateSession)
		}
		return fmt.Errorf("new session %s: %w", name, err)
	}
	return nil
}

// KillSession terminates the named session.
func (c *Client) KillSession(ctx context.Context, name string) error {
	if _, err := c.run(ctx, "kill-session", "-t", "="+name); err != nil {
		return fmt.Errorf("kill session %s: %w", name, err)
	}
	return nil
}

// CapturePane returns the last n lines of the session's active pane,
// ANSI sequences removed.
func (c *Client) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	if lines <= 0 {
		lines = 50
	}
	out, err := c.run(ctx, "capture-pane", "-p", "-J", "-t", "="+name+":", "-S", "-"+strconv.Itoa(lines))
	if err != nil {
		return "", fmt.Errorf("capture pane %s: %w", name, err)
	}
	return StripANSI(string(out)), nil
}

// SetOption sets a session-scoped option. User options must start with '@'.
func (c *Client) SetOption(ctx context.Context, name, key, value string) error {
	if _, err := c.run(ctx, "set-option", "-t", "="+name, key, value); err != nil {
		return fmt.Errorf("set option %s on %s: %w", key, name, err)
	}
	return nil
}

// Option returns a session-scoped option value, or "" when unset.
func (c *Client) Option(ctx context.Context, name, key string) string {
	out, err := c.run(ctx, "show-options", "-v", "-q", "-t", "="+name, key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// CurrentPath returns the working directory of the session's active pane.
func (c *Client) CurrentPath(ctx context.Context, name string) string {
	out, err := c.run(ctx, "display-message", "-p", "-t", "="+name+":", "#{pane_current_path}")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// OwnSession returns the name of the session the current process runs in,
// or "" outside tmux.
func (c *Client) OwnSession(ctx context.Context) string {
	if os.Getenv("TMUX") == "" {
		return ""
	}
	args := []string{"display-message", "-p"}
	if pane := os.Getenv("TMUX_PANE"); pane != "" {
		args = append(args, "-t", pane)
	}
	args = append(args, "#{session_name}")
	out, err := c.run(ctx, args...)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
