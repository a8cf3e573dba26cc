package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/thornhill6305/zui/internal/logging"
)

var streamLog = logging.ForComponent(logging.CompStream)

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Defaults for Options.
const (
	DefaultFloor       = time.Second
	DefaultCeiling     = 30 * time.Second
	DefaultFactor      = 1.5
	DefaultMaxBuffered = 1 << 20

	writeWait = 10 * time.Second
	outboxLen = 1024
)

// Options configures a Client. Zero values take the defaults above.
type Options struct {
	Floor       time.Duration
	Ceiling     time.Duration
	Factor      float64
	MaxBuffered int64

	Dialer *websocket.Dialer
	Header http.Header

	// OnData receives every server frame. It runs on the read goroutine.
	OnData func([]byte)
	// OnStateChange is called after each transition, in order. It must not
	// call Disconnect.
	OnStateChange func(State)

	// Rand supplies jitter in [0, 1).
	Rand func() float64
}

type frame struct {
	kind int
	data []byte
}

// outbox is the per-connection send queue. buffered counts bytes accepted
// but not yet written to the socket.
type outbox struct {
	frames   chan frame
	done     chan struct{}
	buffered atomic.Int64
}

type size struct{ cols, rows int }

// Client keeps a terminal stream open to one session, reconnecting with
// backoff until the session ends, the target is rejected or Disconnect is
// called.
type Client struct {
	url  string
	opts Options

	// cbMu orders state transitions and their callbacks.
	cbMu sync.Mutex

	mu            sync.Mutex
	state         State
	conn          *websocket.Conn
	out           *outbox
	pendingResize *size
	intentional   bool
	running       bool
	cancel        context.CancelFunc
	done          chan struct{}
	err           error

	dropped     atomic.Int64
	dropWarning *rate.Limiter
}

// NewClient returns a disconnected client for url, usually built with
// TerminalURL.
func NewClient(url string, opts Options) *Client {
	if opts.Floor <= 0 {
		opts.Floor = DefaultFloor
	}
	if opts.Ceiling <= 0 {
		opts.Ceiling = DefaultCeiling
	}
	if opts.Factor <= 1 {
		opts.Factor = DefaultFactor
	}
	if opts.MaxBuffered <= 0 {
		opts.MaxBuffered = DefaultMaxBuffered
	}
	if opts.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = 10 * time.Second
		opts.Dialer = &d
	}
	done := make(chan struct{})
	close(done)
	return &Client{
		url:         url,
		opts:        opts,
		done:        done,
		dropWarning: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err reports why the client stopped on its own: ErrInvalidTarget or
// ErrMessageTooBig. It is nil while running, after a clean session end and
// after Disconnect.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed once the connection loop has exited.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Dropped counts frames discarded by backpressure or while disconnected.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

// Connect starts the connection loop. It is a no-op while one is running;
// after Disconnect it waits for the previous loop to exit first.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.running && c.intentional {
		done := c.done
		c.mu.Unlock()
		<-done
		c.mu.Lock()
	}
	if c.running {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.intentional = false
	c.err = nil
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(ctx, done)
}

// Disconnect closes the stream and stops reconnecting. The client is
// Disconnected when Disconnect returns.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(CloseGoingAway, "client disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
	c.setState(Disconnected, true)
}

// Send queues terminal input. It reports false when the client is not
// connected or the frame was dropped because too much output is pending.
func (c *Client) Send(p []byte) bool {
	c.mu.Lock()
	out, state := c.out, c.state
	c.mu.Unlock()
	if state != Connected || out == nil {
		c.dropped.Add(1)
		return false
	}
	return c.enqueue(out, websocket.BinaryMessage, p)
}

// SendResize sends a resize envelope while connected. Otherwise the request
// is kept, replacing any earlier one, and sent on the next connect.
func (c *Client) SendResize(cols, rows int) bool {
	if cols <= 0 || rows <= 0 {
		return false
	}
	c.mu.Lock()
	if c.state != Connected || c.out == nil {
		c.pendingResize = &size{cols: cols, rows: rows}
		c.mu.Unlock()
		return false
	}
	out := c.out
	c.mu.Unlock()
	return c.enqueue(out, websocket.TextMessage, EncodeResize(cols, rows))
}

func (c *Client) enqueue(out *outbox, kind int, p []byte) bool {
	if pending := out.buffered.Load(); pending > c.opts.MaxBuffered {
		c.drop(len(p), pending)
		return false
	}
	data := append([]byte(nil), p...)
	out.buffered.Add(int64(len(data)))
	select {
	case out.frames <- frame{kind: kind, data: data}:
		return true
	default:
		out.buffered.Add(-int64(len(data)))
		c.drop(len(p), out.buffered.Load())
		return false
	}
}

func (c *Client) drop(n int, pending int64) {
	c.dropped.Add(1)
	logging.Aggregate(logging.CompStream, "send_dropped", slog.Int("bytes", n))
	if c.dropWarning.Allow() {
		streamLog.Warn("send_backpressure",
			slog.Int64("buffered", pending),
			slog.Int64("limit", c.opts.MaxBuffered))
	}
}

// setState records s and notifies OnStateChange. Once Disconnect has been
// requested only the final Disconnected transition is accepted.
func (c *Client) setState(s State, final bool) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	c.mu.Lock()
	if (c.intentional && !final) || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		c.setState(Disconnected, true)
		close(done)
	}()

	backoff := NewBackoff(c.opts.Floor, c.opts.Ceiling, c.opts.Factor, c.opts.Rand)
	for {
		c.setState(Connecting, false)
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, c.opts.Header)
		if err == nil {
			backoff.Reset()
			code := c.serve(ctx, conn)
			if c.stopAfterClose(ctx, code) {
				return
			}
		} else {
			if ctx.Err() != nil {
				return
			}
			streamLog.Debug("stream_dial_failed", slog.String("error", err.Error()))
		}

		delay := backoff.Next()
		c.setState(Reconnecting, false)
		streamLog.Debug("stream_reconnect_scheduled", slog.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// stopAfterClose decides whether a close ends the loop for good.
func (c *Client) stopAfterClose(ctx context.Context, code int) bool {
	if ctx.Err() != nil {
		return true
	}
	if code == CloseSessionEnded {
		streamLog.Info("stream_session_ended")
		return true
	}
	if err := closeErr(code); err != nil {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		streamLog.Warn("stream_rejected", slog.Int("code", code), slog.String("error", err.Error()))
		return true
	}
	streamLog.Debug("stream_closed", slog.Int("code", code))
	return false
}

// serve runs one connection until it closes and returns the close code,
// or CloseAbnormalClosure when none was received.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) int {
	out := &outbox{frames: make(chan frame, outboxLen), done: make(chan struct{})}

	// Queue the pending resize and publish Connected under one lock so a
	// concurrent SendResize is always ordered after it.
	c.cbMu.Lock()
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		c.cbMu.Unlock()
		_ = conn.Close()
		return CloseGoingAway
	}
	c.conn = conn
	c.out = out
	if pending := c.pendingResize; pending != nil {
		c.pendingResize = nil
		c.enqueue(out, websocket.TextMessage, EncodeResize(pending.cols, pending.rows))
	}
	changed := c.state != Connected
	c.state = Connected
	c.mu.Unlock()
	if changed && c.opts.OnStateChange != nil {
		c.opts.OnStateChange(Connected)
	}
	c.cbMu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeLoop(conn, out)
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	code := c.readLoop(conn)

	c.mu.Lock()
	c.conn = nil
	c.out = nil
	c.mu.Unlock()
	close(out.done)
	_ = conn.Close()
	wg.Wait()
	return code
}

func (c *Client) readLoop(conn *websocket.Conn) int {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ce.Code
			}
			return websocket.CloseAbnormalClosure
		}
		if c.opts.OnData != nil && len(data) > 0 {
			c.opts.OnData(data)
		}
	}
}

func writeLoop(conn *websocket.Conn, out *outbox) {
	for {
		select {
		case <-out.done:
			return
		case f := <-out.frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(f.kind, f.data)
			out.buffered.Add(-int64(len(f.data)))
			if err != nil {
				streamLog.Debug("stream_write_failed", slog.String("error", err.Error()))
				_ = conn.Close()
				return
			}
		}
	}
}
