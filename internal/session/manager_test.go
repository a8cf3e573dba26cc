package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thornhill6305/zui/internal/agent"
	"github.com/thornhill6305/zui/internal/shell"
	"github.com/thornhill6305/zui/internal/tmux"
)

var _ Multiplexer = (*tmux.MockClient)(nil)

var testNow = time.Unix(1_700_000_000, 0)

func newTestManager(t *testing.T, mux Multiplexer, branch string, opts ...Option) *Manager {
	t.Helper()
	runner := shell.NewFakeRunner()
	if branch != "" {
		runner.On("git -C", branch+"\n", nil)
	}
	base := []Option{WithRunner(runner), WithClock(func() time.Time { return testNow })}
	return NewManager(mux, append(base, opts...)...)
}

func TestListDerivesFields(t *testing.T) {
	mux := tmux.NewMockClient()
	mux.AddSession("api-main", "/src/api", "building\n✻ Worked for 3s\n\n", testNow.Add(-125*time.Second), testNow.Add(-45*time.Second))
	mux.AddSession("web-dev", "/src/web", "", testNow.Add(-3661*time.Second), testNow.Add(-600*time.Second))
	require.NoError(t, mux.SetOption(context.Background(), "web-dev", AgentTagKey, "codex"))
	mux.SetPane("web-dev", "Generating code...")

	m := newTestManager(t, mux, "")
	sessions := m.List(context.Background(), ListOptions{})
	require.Len(t, sessions, 2)

	api := sessions[0]
	assert.Equal(t, "api-main", api.Name)
	assert.Equal(t, "2m 5s", api.Running)
	assert.Equal(t, "45s ago", api.Idle)
	assert.Equal(t, agent.StatusIdle, api.Status)
	assert.Equal(t, "claude", api.AgentID, "untagged sessions fall back to claude")
	assert.Equal(t, "✻ Worked for 3s", api.Preview)

	web := sessions[1]
	assert.Equal(t, "1h 1m", web.Running)
	assert.Equal(t, "10m ago", web.Idle)
	assert.Equal(t, "codex", web.AgentID)
	assert.Equal(t, agent.StatusWorking, web.Status)
	assert.Equal(t, "Generating code...", web.Preview)
}

func TestListFiltersReservedExcludedAndOwn(t *testing.T) {
	mux := tmux.NewMockClient()
	for _, name := range []string{"zui-manager", "a", "zui-web", "b", "c", "d"} {
		mux.AddSession(name, "/tmp", "", testNow, testNow)
	}
	mux.SetOwnSession("c")

	m := newTestManager(t, mux, "", WithExclude("d"))

	names := func(ss []Session) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.Name)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b", "c"}, names(m.List(context.Background(), ListOptions{})))
	assert.Equal(t, []string{"b"}, names(m.List(context.Background(), ListOptions{Exclude: []string{"a"}, SkipOwnSession: true})))
}

func TestListPreservesOrderUnderConcurrency(t *testing.T) {
	mux := tmux.NewMockClient()
	var want []string
	for i := 0; i < 40; i++ {
		name := "s" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		want = append(want, name)
		mux.AddSession(name, "/tmp", "", testNow, testNow)
	}
	m := newTestManager(t, mux, "", WithProbeLimit(4))

	got := m.List(context.Background(), ListOptions{})
	require.Len(t, got, len(want))
	for i, s := range got {
		assert.Equal(t, want[i], s.Name)
	}
}

func TestListConsultsExcludeSourceEachCall(t *testing.T) {
	mux := tmux.NewMockClient()
	mux.AddSession("a", "/tmp", "", testNow, testNow)
	mux.AddSession("b", "/tmp", "", testNow, testNow)

	var hidden []string
	m := newTestManager(t, mux, "", WithExcludeSource(func() []string { return hidden }))
	require.Len(t, m.List(context.Background(), ListOptions{}), 2)

	hidden = []string{"a"}
	got := m.List(context.Background(), ListOptions{})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)
}

func TestListDegradesToEmptyOnTmuxFailure(t *testing.T) {
	mux := tmux.NewMockClient()
	mux.SetListError(errors.New("no server"))
	m := newTestManager(t, mux, "")
	assert.Empty(t, m.List(context.Background(), ListOptions{}))
}

func TestListConcurrentCallersGetIndependentSlices(t *testing.T) {
	mux := tmux.NewMockClient()
	mux.AddSession("a", "/tmp", "x", testNow, testNow)
	m := newTestManager(t, mux, "")

	var wg sync.WaitGroup
	results := make([][]Session, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.List(context.Background(), ListOptions{})
		}()
	}
	wg.Wait()

	results[0][0].Name = "mutated"
	for _, r := range results[1:] {
		require.Len(t, r, 1)
		assert.Equal(t, "a", r[0].Name)
	}
}

// gatedMux holds ListSessions until release is closed or the call's ctx ends.
type gatedMux struct {
	*tmux.MockClient
	entered chan struct{}
	release chan struct{}
}

func (g *gatedMux) ListSessions(ctx context.Context) ([]tmux.SessionInfo, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.MockClient.ListSessions(ctx)
}

func TestListSharedRoundSurvivesFirstCallerCancel(t *testing.T) {
	mock := tmux.NewMockClient()
	mock.AddSession("a", "/tmp", "x", testNow, testNow)
	mux := &gatedMux{MockClient: mock, entered: make(chan struct{}, 2), release: make(chan struct{})}
	m := newTestManager(t, mux, "")

	ctxA, cancelA := context.WithCancel(context.Background())
	resA := make(chan []Session, 1)
	go func() { resA <- m.List(ctxA, ListOptions{}) }()
	<-mux.entered

	resB := make(chan []Session, 1)
	go func() { resB <- m.List(context.Background(), ListOptions{}) }()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case got := <-resA:
		assert.Empty(t, got, "cancelled caller returns early")
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(mux.release)
	select {
	case got := <-resB:
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].Name)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}
}

func TestSpawnCollisionSuffixes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "api")
	require.NoError(t, os.Mkdir(dir, 0o755))

	mux := tmux.NewMockClient()
	m := newTestManager(t, mux, "feature/login")

	var names []string
	for i := 0; i < 3; i++ {
		name, err := m.Spawn(context.Background(), dir, "claude", false)
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.Equal(t, []string{"api-feature-login", "api-feature-login-2", "api-feature-login-3"}, names)
	assert.Equal(t, "claude", mux.Option(context.Background(), "api-feature-login-2", AgentTagKey))
	assert.Equal(t, "claude", mux.Command("api-feature-login"))
}

func TestSpawnRetriesAfterDuplicateRace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "api")
	require.NoError(t, os.Mkdir(dir, 0o755))

	mux := tmux.NewMockClient()
	mux.RaceOnCreate("api")
	m := newTestManager(t, mux, "")

	name, err := m.Spawn(context.Background(), dir, "codex", true)
	require.NoError(t, err)
	assert.Equal(t, "api-2", name)
	assert.Equal(t, "codex --yolo", mux.Command("api-2"))
	assert.Equal(t, "codex", mux.Option(context.Background(), "api-2", AgentTagKey))
}

func TestSpawnYoloAndOverrides(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "svc")
	require.NoError(t, os.Mkdir(dir, 0o755))

	mux := tmux.NewMockClient()
	m := newTestManager(t, mux, "", WithArgsOverride(func(id string) ([]string, []string, bool) {
		if id == "claude" {
			return []string{"--model", "opus"}, []string{"--dangerously-skip-permissions", "--verbose"}, true
		}
		return nil, nil, false
	}))

	name, err := m.Spawn(context.Background(), dir, "claude", false)
	require.NoError(t, err)
	assert.Equal(t, "claude --model opus", mux.Command(name))

	name, err = m.Spawn(context.Background(), dir, "claude", true)
	require.NoError(t, err)
	assert.Equal(t, "claude --dangerously-skip-permissions --verbose", mux.Command(name))

	name, err = m.Spawn(context.Background(), dir, "codex", false)
	require.NoError(t, err)
	assert.Equal(t, "codex", mux.Command(name))
}

func TestSpawnErrors(t *testing.T) {
	dir := t.TempDir()
	mux := tmux.NewMockClient()
	m := newTestManager(t, mux, "")

	_, err := m.Spawn(context.Background(), dir, "gemini", false)
	assert.ErrorIs(t, err, agent.ErrUnknownAgent)

	_, err = m.Spawn(context.Background(), filepath.Join(dir, "missing"), "claude", false)
	assert.ErrorIs(t, err, ErrInvalidWorkdir)

	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = m.Spawn(context.Background(), file, "claude", false)
	assert.ErrorIs(t, err, ErrInvalidWorkdir)

	boom := errors.New("server exited unexpectedly")
	mux.SetCreateError(boom)
	_, err = m.Spawn(context.Background(), dir, "claude", false)
	assert.ErrorIs(t, err, ErrMultiplexer)
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, mux.Created())
}

func TestSpawnNameExhausted(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "x")
	require.NoError(t, os.Mkdir(dir, 0o755))

	mux := tmux.NewMockClient()
	for i := 1; i <= maxNameAttempts; i++ {
		mux.AddSession(candidateName("x", i), dir, "", testNow, testNow)
	}
	m := newTestManager(t, mux, "")

	_, err := m.Spawn(context.Background(), dir, "claude", false)
	assert.ErrorIs(t, err, ErrNameUnavailable)
}

func TestKillExistsWorkdir(t *testing.T) {
	dir := t.TempDir()
	mux := tmux.NewMockClient()
	mux.AddSession("a", dir, "", testNow, testNow)
	mux.AddSession("stale", dir, "", testNow, testNow)
	mux.SetPath("stale", filepath.Join(dir, "deleted"))
	m := newTestManager(t, mux, "")
	ctx := context.Background()

	assert.True(t, m.Exists(ctx, "a"))
	assert.Equal(t, dir, m.Workdir(ctx, "a"))
	assert.Equal(t, "", m.Workdir(ctx, "stale"), "paths that vanished from disk are not reported")
	assert.Equal(t, "", m.Workdir(ctx, "nope"))

	assert.True(t, m.Kill(ctx, "a"))
	assert.False(t, m.Exists(ctx, "a"))
	assert.False(t, m.Kill(ctx, "a"))
}
