package web

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thornhill6305/zui/internal/session"
	"github.com/thornhill6305/zui/internal/shell"
	"github.com/thornhill6305/zui/internal/tmux"
)

// fakeTerminal stands in for a PTY running tmux attach. Output written with
// emit is what the bridge reads; input and control calls are recorded.
type fakeTerminal struct {
	outR *io.PipeReader
	outW *io.PipeWriter

	// ignoreTerm makes the process survive SIGTERM.
	ignoreTerm bool

	mu      sync.Mutex
	resizes [][2]uint16
	signals []syscall.Signal

	input    chan string
	done     chan struct{}
	exitOnce sync.Once
	closes   atomic.Int32
}

func newFakeTerminal() *fakeTerminal {
	r, w := io.Pipe()
	return &fakeTerminal{outR: r, outW: w, input: make(chan string, 64), done: make(chan struct{})}
}

func (f *fakeTerminal) Read(p []byte) (int, error) { return f.outR.Read(p) }

func (f *fakeTerminal) Write(p []byte) (int, error) {
	select {
	case <-f.done:
		return 0, errors.New("process exited")
	default:
	}
	f.input <- string(p)
	return len(p), nil
}

func (f *fakeTerminal) Resize(cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, [2]uint16{cols, rows})
	return nil
}

func (f *fakeTerminal) Signal(sig syscall.Signal) error {
	f.mu.Lock()
	f.signals = append(f.signals, sig)
	ignore := f.ignoreTerm && sig == syscall.SIGTERM
	f.mu.Unlock()
	if !ignore {
		f.exit()
	}
	return nil
}

func (f *fakeTerminal) Done() <-chan struct{} { return f.done }

func (f *fakeTerminal) Close() error {
	f.closes.Add(1)
	_ = f.outW.Close()
	return nil
}

// exit simulates the attach process ending.
func (f *fakeTerminal) exit() {
	f.exitOnce.Do(func() {
		_ = f.outW.Close()
		close(f.done)
	})
}

func (f *fakeTerminal) emit(s string) {
	_, _ = f.outW.Write([]byte(s))
}

func (f *fakeTerminal) recordedSignals() []syscall.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]syscall.Signal(nil), f.signals...)
}

func (f *fakeTerminal) recordedResizes() [][2]uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]uint16(nil), f.resizes...)
}

type harness struct {
	srv       *Server
	ts        *httptest.Server
	mux       *tmux.MockClient
	terms     chan *fakeTerminal
	launchErr error
	prepare   func(*fakeTerminal)
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{mux: tmux.NewMockClient(), terms: make(chan *fakeTerminal, 8)}
	cfg.Sessions = session.NewManager(h.mux, session.WithRunner(shell.NewFakeRunner()))
	cfg.Launcher = func(name string, cols, rows uint16) (Terminal, error) {
		if h.launchErr != nil {
			return nil, h.launchErr
		}
		ft := newFakeTerminal()
		if h.prepare != nil {
			h.prepare(ft)
		}
		h.terms <- ft
		return ft, nil
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	h.srv = NewServer(cfg)
	h.ts = httptest.NewServer(h.srv.Handler())
	t.Cleanup(h.ts.Close)
	return h
}

func wsURL(baseURL, path string) string {
	if strings.HasPrefix(baseURL, "https://") {
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + path
	}
	return "ws://" + strings.TrimPrefix(baseURL, "http://") + path
}

func (h *harness) dial(t *testing.T, sessionName string, extra url.Values) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	if sessionName != "" {
		q.Set("session", sessionName)
	}
	path := "/terminal"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return websocket.DefaultDialer.Dial(wsURL(h.ts.URL, path), nil)
}

func (h *harness) terminal(t *testing.T) *fakeTerminal {
	t.Helper()
	select {
	case ft := <-h.terms:
		return ft
	case <-time.After(5 * time.Second):
		t.Fatal("terminal was never launched")
		return nil
	}
}

// readClose reads until the server closes and returns the close code.
func readClose(t *testing.T, conn *websocket.Conn) (int, string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return ce.Code, ce.Text
		}
		t.Fatalf("expected close frame, got %v", err)
		return 0, ""
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
