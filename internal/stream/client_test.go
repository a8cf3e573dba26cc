package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	kind int
	data string
}

// bridgeStub accepts stream connections and lets each test decide what the
// n-th connection does.
type bridgeStub struct {
	*httptest.Server
	handshakes atomic.Int32
	frames     chan received
	closes     chan int
}

func newBridgeStub(t *testing.T, handle func(n int32, conn *websocket.Conn, s *bridgeStub)) *bridgeStub {
	t.Helper()
	s := &bridgeStub{frames: make(chan received, 64), closes: make(chan int, 8)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(s.handshakes.Add(1), conn, s)
	}))
	t.Cleanup(s.Close)
	return s
}

// pump records inbound frames until the connection closes.
func (s *bridgeStub) pump(conn *websocket.Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			s.closes <- code
			return
		}
		s.frames <- received{kind: kind, data: string(data)}
	}
}

func closeWith(conn *websocket.Conn, code int) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, "bye"))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *bridgeStub) url(t *testing.T) string {
	t.Helper()
	u, err := TerminalURL(s.URL, "api")
	require.NoError(t, err)
	return u
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) snapshot() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func (l *stateLog) has(s State) bool {
	for _, got := range l.snapshot() {
		if got == s {
			return true
		}
	}
	return false
}

func waitDone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
	}
}

func TestClientReceivesDataAndStopsOnSessionEnd(t *testing.T) {
	stub := newBridgeStub(t, func(_ int32, conn *websocket.Conn, _ *bridgeStub) {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("hello"))
		closeWith(conn, CloseSessionEnded)
	})

	var got atomic.Value
	states := &stateLog{}
	c := NewClient(stub.url(t), Options{
		Floor:         10 * time.Millisecond,
		OnData:        func(p []byte) { got.Store(string(p)) },
		OnStateChange: states.record,
	})
	c.Connect()
	waitDone(t, c)

	assert.Equal(t, "hello", got.Load())
	assert.Equal(t, int32(1), stub.handshakes.Load(), "a clean end must not reconnect")
	assert.NoError(t, c.Err())
	assert.Equal(t, Disconnected, c.State())
	assert.Equal(t, []State{Connecting, Connected, Disconnected}, states.snapshot())
}

func TestClientReconnectsAfterAbnormalClose(t *testing.T) {
	stub := newBridgeStub(t, func(n int32, conn *websocket.Conn, _ *bridgeStub) {
		if n < 3 {
			closeWith(conn, CloseAttachFailed)
			return
		}
		closeWith(conn, CloseSessionEnded)
	})

	states := &stateLog{}
	c := NewClient(stub.url(t), Options{Floor: 5 * time.Millisecond, Ceiling: 20 * time.Millisecond, OnStateChange: states.record})
	c.Connect()
	waitDone(t, c)

	assert.Equal(t, int32(3), stub.handshakes.Load())
	assert.True(t, states.has(Reconnecting))
	assert.NoError(t, c.Err())
}

func TestClientReconnectsAfterDialFailure(t *testing.T) {
	var attempts atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		closeWith(conn, CloseSessionEnded)
	}))
	defer srv.Close()

	u, err := TerminalURL(srv.URL, "api")
	require.NoError(t, err)
	c := NewClient(u, Options{Floor: 5 * time.Millisecond, Ceiling: 20 * time.Millisecond})
	c.Connect()
	waitDone(t, c)

	assert.Equal(t, int32(3), attempts.Load())
	assert.NoError(t, c.Err())
}

func TestClientStopsOnTerminalCloseCodes(t *testing.T) {
	for code, want := range map[int]error{
		CloseInvalidTarget: ErrInvalidTarget,
		CloseMessageTooBig: ErrMessageTooBig,
	} {
		stub := newBridgeStub(t, func(_ int32, conn *websocket.Conn, _ *bridgeStub) {
			closeWith(conn, code)
		})
		c := NewClient(stub.url(t), Options{Floor: 5 * time.Millisecond})
		c.Connect()
		waitDone(t, c)

		assert.ErrorIs(t, c.Err(), want)
		assert.Equal(t, int32(1), stub.handshakes.Load())
		assert.Equal(t, Disconnected, c.State())
	}
}

func TestClientFlushesLatestPendingResize(t *testing.T) {
	stub := newBridgeStub(t, func(_ int32, conn *websocket.Conn, s *bridgeStub) {
		s.pump(conn)
	})

	c := NewClient(stub.url(t), Options{})
	assert.False(t, c.SendResize(80, 24))
	assert.False(t, c.SendResize(100, 30))
	c.Connect()
	defer c.Disconnect()

	select {
	case f := <-stub.frames:
		assert.Equal(t, websocket.TextMessage, f.kind)
		assert.JSONEq(t, `{"type":"resize","cols":100,"rows":30}`, f.data)
	case <-time.After(5 * time.Second):
		t.Fatal("pending resize was not flushed")
	}

	select {
	case f := <-stub.frames:
		t.Fatalf("unexpected extra frame %q", f.data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientPendingResizePrecedesResizeOnConnect(t *testing.T) {
	stub := newBridgeStub(t, func(_ int32, conn *websocket.Conn, s *bridgeStub) {
		s.pump(conn)
	})

	var c *Client
	c = NewClient(stub.url(t), Options{
		OnStateChange: func(s State) {
			if s == Connected {
				assert.True(t, c.SendResize(120, 40))
			}
		},
	})
	assert.False(t, c.SendResize(80, 24))
	c.Connect()
	defer c.Disconnect()

	var got []string
	for len(got) < 2 {
		select {
		case f := <-stub.frames:
			got = append(got, f.data)
		case <-time.After(5 * time.Second):
			t.Fatalf("got %d resize frames, want 2", len(got))
		}
	}
	assert.JSONEq(t, `{"type":"resize","cols":80,"rows":24}`, got[0])
	assert.JSONEq(t, `{"type":"resize","cols":120,"rows":40}`, got[1], "latest resize is sent last")
}

func TestClientSendAndResizeWhileConnected(t *testing.T) {
	stub := newBridgeStub(t, func(_ int32, conn *websocket.Conn, s *bridgeStub) {
		s.pump(conn)
	})

	c := NewClient(stub.url(t), Options{})
	assert.False(t, c.Send([]byte("early")), "input is not queued while disconnected")
	c.Connect()
	defer c.Disconnect()
	require.Eventually(t, func() bool { return c.State() == Connected }, 5*time.Second, 5*time.Millisecond)

	require.True(t, c.Send([]byte("ls -la\r")))
	require.True(t, c.SendResize(132, 43))

	f := <-stub.frames
	assert.Equal(t, received{kind: websocket.BinaryMessage, data: "ls -la\r"}, f)
	f = <-stub.frames
	assert.Equal(t, websocket.TextMessage, f.kind)
	assert.True(t, strings.Contains(f.data, `"cols":132`))
}

func TestClientDisconnectIsSynchronousAndFinal(t *testing.T) {
	stub := newBridgeStub(t, func(_ int32, conn *websocket.Conn, s *bridgeStub) {
		s.pump(conn)
	})

	states := &stateLog{}
	c := NewClient(stub.url(t), Options{Floor: 5 * time.Millisecond, OnStateChange: states.record})
	c.Connect()
	require.Eventually(t, func() bool { return c.State() == Connected }, 5*time.Second, 5*time.Millisecond)

	c.Disconnect()
	assert.Equal(t, Disconnected, c.State())
	waitDone(t, c)

	select {
	case code := <-stub.closes:
		assert.Contains(t, []int{CloseGoingAway, websocket.CloseAbnormalClosure}, code)
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the close")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), stub.handshakes.Load(), "no reconnect after Disconnect")
	assert.Equal(t, Disconnected, states.snapshot()[len(states.snapshot())-1])
}

func TestEnqueueDropsAboveBufferedLimit(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/terminal?session=x", Options{MaxBuffered: 10})
	out := &outbox{frames: make(chan frame, 1), done: make(chan struct{})}

	out.buffered.Store(11)
	assert.False(t, c.enqueue(out, websocket.BinaryMessage, []byte("a")))
	assert.Equal(t, int64(1), c.Dropped())
	assert.Empty(t, out.frames)

	out.buffered.Store(10)
	assert.True(t, c.enqueue(out, websocket.BinaryMessage, []byte("a")))
	assert.Equal(t, int64(11), out.buffered.Load())

	// Queue full: dropped and the counter is rolled back.
	out.buffered.Store(0)
	assert.False(t, c.enqueue(out, websocket.BinaryMessage, []byte("b")))
	assert.Equal(t, int64(0), out.buffered.Load())
	assert.Equal(t, int64(2), c.Dropped())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "reconnecting", Reconnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}
