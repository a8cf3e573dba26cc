package tmux

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockClient is an in-memory stand-in for Client used by tests in other
// packages. It keeps sessions in creation order.
type MockClient struct {
	mu          sync.Mutex
	sessions    map[string]*mockSession
	order       []string
	own         string
	listErr     error
	createErr   error
	killErr     error
	raceOnce    map[string]bool
	created     []string
	clock       func() time.Time
	captureCall int
}

type mockSession struct {
	dir     string
	command string
	pane    string
	options map[string]string
	path    string
	created time.Time
	active  time.Time
}

// NewMockClient returns an empty mock tmux server.
func NewMockClient() *MockClient {
	return &MockClient{
		sessions: make(map[string]*mockSession),
		raceOnce: make(map[string]bool),
		clock:    time.Now,
	}
}

// AddSession registers a pre-existing session.
func (m *MockClient) AddSession(name, dir, pane string, created, active time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[name] = &mockSession{dir: dir, path: dir, pane: pane, options: map[string]string{}, created: created, active: active}
	m.order = append(m.order, name)
}

// SetPane replaces the captured pane text for name.
func (m *MockClient) SetPane(name, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[name]; ok {
		s.pane = text
	}
}

// SetPath overrides the pane_current_path reported for name.
func (m *MockClient) SetPath(name, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[name]; ok {
		s.path = path
	}
}

// SetOwnSession sets the name reported by OwnSession.
func (m *MockClient) SetOwnSession(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.own = name
}

// SetListError makes ListSessions fail.
func (m *MockClient) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// SetCreateError makes NewSession fail.
func (m *MockClient) SetCreateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// SetKillError makes KillSession fail.
func (m *MockClient) SetKillError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killErr = err
}

// RaceOnCreate makes the next NewSession for name report a duplicate, as if
// another process created it between HasSession and NewSession.
func (m *MockClient) RaceOnCreate(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raceOnce[name] = true
}

// Command returns the command a session was created with.
func (m *MockClient) Command(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[name]; ok {
		return s.command
	}
	return ""
}

// Created lists names passed to successful NewSession calls.
func (m *MockClient) Created() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.created...)
}

// CaptureCalls counts CapturePane invocations.
func (m *MockClient) CaptureCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captureCall
}

// Names returns live session names sorted alphabetically.
func (m *MockClient) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := append([]string(nil), m.order...)
	sort.Strings(names)
	return names
}

func (m *MockClient) ListSessions(_ context.Context) ([]SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]SessionInfo, 0, len(m.order))
	for _, name := range m.order {
		s := m.sessions[name]
		out = append(out, SessionInfo{Name: name, Created: s.created, LastActive: s.active})
	}
	return out, nil
}

func (m *MockClient) HasSession(_ context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[name]
	return ok
}

func (m *MockClient) NewSession(_ context.Context, name, dir, command string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if m.raceOnce[name] {
		delete(m.raceOnce, name)
		return fmt.Errorf("%s: %w", name, ErrDuplicateSession)
	}
	if _, ok := m.sessions[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrDuplicateSession)
	}
	now := m.clock()
	m.sessions[name] = &mockSession{dir: dir, path: dir, command: command, options: map[string]string{}, created: now, active: now}
	m.order = append(m.order, name)
	m.created = append(m.created, name)
	return nil
}

func (m *MockClient) KillSession(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.killErr != nil {
		return m.killErr
	}
	if _, ok := m.sessions[name]; !ok {
		return fmt.Errorf("kill session %s: can't find session", name)
	}
	delete(m.sessions, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockClient) CapturePane(_ context.Context, name string, _ int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureCall++
	s, ok := m.sessions[name]
	if !ok {
		return "", fmt.Errorf("capture pane %s: can't find session", name)
	}
	return s.pane, nil
}

func (m *MockClient) SetOption(_ context.Context, name, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	if !ok {
		return fmt.Errorf("set option %s on %s: no such session", key, name)
	}
	s.options[key] = value
	return nil
}

func (m *MockClient) Option(_ context.Context, name, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[name]; ok {
		return s.options[key]
	}
	return ""
}

func (m *MockClient) CurrentPath(_ context.Context, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[name]; ok {
		return s.path
	}
	return ""
}

func (m *MockClient) OwnSession(_ context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.own
}
