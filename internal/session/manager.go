package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/thornhill6305/zui/internal/agent"
	"github.com/thornhill6305/zui/internal/git"
	"github.com/thornhill6305/zui/internal/logging"
	"github.com/thornhill6305/zui/internal/shell"
	"github.com/thornhill6305/zui/internal/tmux"
)

var sessionLog = logging.ForComponent(logging.CompSession)

const (
	defaultCaptureLines = 50
	defaultProbeLimit   = 8
	maxNameAttempts     = 100
)

// ArgsOverride returns configured argument sets for an agent id, if any.
type ArgsOverride func(agentID string) (defaultArgs, yoloArgs []string, ok bool)

// Manager orchestrates session discovery, creation and teardown. It holds no
// mutable session state and is safe for concurrent use.
type Manager struct {
	mux       Multiplexer
	agents    *agent.Registry
	runner    shell.Runner
	overrides ArgsOverride
	exclude   []string
	excludeFn func() []string

	captureLines int
	probeLimit   int
	now          func() time.Time

	lists singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry replaces the built-in agent registry.
func WithRegistry(r *agent.Registry) Option {
	return func(m *Manager) { m.agents = r }
}

// WithRunner sets the runner used for git branch lookups.
func WithRunner(r shell.Runner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithArgsOverride consults fn for per-agent argument sets at spawn time.
func WithArgsOverride(fn ArgsOverride) Option {
	return func(m *Manager) { m.overrides = fn }
}

// WithExclude hides additional names from every List call.
func WithExclude(names ...string) Option {
	return func(m *Manager) { m.exclude = append(m.exclude, names...) }
}

// WithExcludeSource consults fn on every List for names to hide, so a
// reloaded exclude list applies to the next poll.
func WithExcludeSource(fn func() []string) Option {
	return func(m *Manager) { m.excludeFn = fn }
}

// WithCaptureLines sets how many pane lines are captured per session.
func WithCaptureLines(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.captureLines = n
		}
	}
}

// WithProbeLimit bounds concurrent per-session probes during List.
func WithProbeLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.probeLimit = n
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a manager over mux.
func NewManager(mux Multiplexer, opts ...Option) *Manager {
	m := &Manager{
		mux:          mux,
		agents:       agent.Default(),
		runner:       shell.NewExecRunner(shell.DefaultTimeout),
		captureLines: defaultCaptureLines,
		probeLimit:   defaultProbeLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Agents exposes the registry used for spawn and classification.
func (m *Manager) Agents() *agent.Registry { return m.agents }

// List returns live sessions in tmux order. tmux failures degrade to an
// empty list. Identical concurrent calls share one round of tmux probes;
// that round is detached from any single caller's cancellation and bounded
// by the runner's per-command timeout. A caller whose ctx ends first gets
// an empty list.
func (m *Manager) List(ctx context.Context, opts ListOptions) []Session {
	key := listKey(opts)
	ch := m.lists.DoChan(key, func() (any, error) {
		return m.list(context.WithoutCancel(ctx), opts), nil
	})
	select {
	case res := <-ch:
		return append([]Session(nil), res.Val.([]Session)...)
	case <-ctx.Done():
		return nil
	}
}

func listKey(opts ListOptions) string {
	names := append([]string(nil), opts.Exclude...)
	sort.Strings(names)
	return fmt.Sprintf("%t|%s", opts.SkipOwnSession, strings.Join(names, ","))
}

func (m *Manager) list(ctx context.Context, opts ListOptions) []Session {
	infos, err := m.mux.ListSessions(ctx)
	if err != nil {
		sessionLog.Warn("list_sessions_failed", slog.String("error", err.Error()))
		return nil
	}

	hidden := map[string]bool{ManagerSessionName: true, WebSessionName: true}
	for _, n := range m.exclude {
		hidden[n] = true
	}
	if m.excludeFn != nil {
		for _, n := range m.excludeFn() {
			hidden[n] = true
		}
	}
	for _, n := range opts.Exclude {
		hidden[n] = true
	}
	if opts.SkipOwnSession {
		if own := m.mux.OwnSession(ctx); own != "" {
			hidden[own] = true
		}
	}

	visible := make([]tmux.SessionInfo, 0, len(infos))
	for _, info := range infos {
		if !hidden[info.Name] {
			visible = append(visible, info)
		}
	}

	now := m.now()
	out := make([]Session, len(visible))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.probeLimit)
	for i, info := range visible {
		g.Go(func() error {
			out[i] = m.probe(gctx, info, now)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// probe fills in the derived fields of one session.
func (m *Manager) probe(ctx context.Context, info tmux.SessionInfo, now time.Time) Session {
	agentID := m.mux.Option(ctx, info.Name, AgentTagKey)
	if agentID == "" {
		agentID = agent.FallbackID
	}
	provider := m.agents.Resolve(agentID)

	text, err := m.mux.CapturePane(ctx, info.Name, m.captureLines)
	if err != nil {
		logging.Aggregate(logging.CompSession, "capture_failed",
			slog.String("session", info.Name),
			slog.String("error", err.Error()))
		text = ""
	}

	status := agent.StatusWorking
	if provider != nil {
		status = provider.DetectStatus(text)
	}

	return Session{
		Name:           info.Name,
		CreatedAt:      info.Created,
		LastActivityAt: info.LastActive,
		Running:        FormatDuration(now.Sub(info.Created)),
		Idle:           FormatIdle(now.Sub(info.LastActive)),
		Status:         status,
		AgentID:        agentID,
		Preview:        Preview(text),
	}
}

// Spawn starts agentID in workdir inside a new detached session and returns
// its name. Name collisions are resolved with -2, -3, ... suffixes.
func (m *Manager) Spawn(ctx context.Context, workdir, agentID string, yolo bool) (string, error) {
	provider, err := m.agents.Lookup(agentID)
	if err != nil {
		return "", err
	}

	dir, err := filepath.Abs(workdir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidWorkdir, workdir)
	}
	if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrInvalidWorkdir, workdir)
	}

	args := provider.Args(yolo)
	if m.overrides != nil {
		if def, y, ok := m.overrides(provider.ID); ok {
			if yolo {
				args = append([]string(nil), y...)
			} else {
				args = append([]string(nil), def...)
			}
		}
	}
	command := provider.BuildCommand(args)

	base := DeriveName(dir, git.CurrentBranch(ctx, m.runner, dir))

	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		name := candidateName(base, attempt)
		if m.mux.HasSession(ctx, name) {
			continue
		}
		err := m.mux.NewSession(ctx, name, dir, command)
		if errors.Is(err, tmux.ErrDuplicateSession) {
			// Lost a race with another creator; try the next suffix.
			continue
		}
		if err != nil {
			sessionLog.Error("session_spawn_failed",
				slog.String("name", name),
				slog.String("agent", provider.ID),
				slog.String("error", err.Error()))
			return "", fmt.Errorf("%w: %w", ErrMultiplexer, err)
		}

		if err := m.mux.SetOption(ctx, name, AgentTagKey, provider.ID); err != nil {
			sessionLog.Warn("session_tag_failed",
				slog.String("name", name),
				slog.String("error", err.Error()))
		}
		sessionLog.Info("session_spawned",
			slog.String("name", name),
			slog.String("agent", provider.ID),
			slog.String("workdir", dir),
			slog.Bool("yolo", yolo))
		return name, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNameUnavailable, base)
}

// Kill terminates name and reports whether tmux accepted the request.
func (m *Manager) Kill(ctx context.Context, name string) bool {
	if err := m.mux.KillSession(ctx, name); err != nil {
		sessionLog.Debug("session_kill_failed", slog.String("name", name), slog.String("error", err.Error()))
		return false
	}
	sessionLog.Info("session_killed", slog.String("name", name))
	return true
}

// Exists reports whether a session named name is live.
func (m *Manager) Exists(ctx context.Context, name string) bool {
	return m.mux.HasSession(ctx, name)
}

// Workdir returns the session's current pane directory, or "" when the
// session is gone or the directory no longer exists on disk.
func (m *Manager) Workdir(ctx context.Context, name string) string {
	path := m.mux.CurrentPath(ctx, name)
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return ""
	}
	return path
}
