package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/thornhill6305/zui/internal/logging"
	"github.com/thornhill6305/zui/internal/stream"
)

var bridgeLog = logging.ForComponent(logging.CompBridge)

const (
	defaultGracePeriod = 5 * time.Second
	initialCols        = 80
	initialRows        = 24

	writeWait    = 10 * time.Second
	closeWait    = time.Second
	drainWait    = 200 * time.Millisecond
	readChunkLen = 32 * 1024
)

// closeError carries the WebSocket close code a relay path ended with.
type closeError struct {
	code int
	text string
	err  error
}

func (e *closeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s (%d): %v", e.text, e.code, e.err)
	}
	return fmt.Sprintf("%s (%d)", e.text, e.code)
}

func (e *closeError) Unwrap() error { return e.err }

// terminalBridge relays one WebSocket connection to one PTY.
//
// PTY output is appended to pending without blocking and written out by a
// separate goroutine, so a stalled socket never stops the PTY from being
// drained. Teardown runs once, whichever path ends first.
type terminalBridge struct {
	id      string
	session string
	conn    *websocket.Conn
	term    Terminal
	grace   time.Duration
	log     *slog.Logger

	// writeMu serialises data frames; it is held while pending is taken so
	// frames leave in the order they were read.
	writeMu sync.Mutex

	outMu   sync.Mutex
	pending []byte
	ready   chan struct{}

	pumpDone  chan struct{}
	closeOnce sync.Once
	reason    *closeError
}

func newTerminalBridge(id, session string, conn *websocket.Conn, term Terminal, grace time.Duration) *terminalBridge {
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	return &terminalBridge{
		id:       id,
		session:  session,
		conn:     conn,
		term:     term,
		grace:    grace,
		log:      bridgeLog.With(slog.String("conn_id", id), slog.String("session", session)),
		ready:    make(chan struct{}, 1),
		pumpDone: make(chan struct{}),
	}
}

// run blocks until the connection is closed and the PTY process is gone.
// The first relay path to end decides the close code.
func (b *terminalBridge) run(ctx context.Context) *closeError {
	var first atomic.Pointer[closeError]
	relay := func(fn func() error) func() error {
		return func() error {
			err := fn()
			var ce *closeError
			if errors.As(err, &ce) {
				first.CompareAndSwap(nil, ce)
			}
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(relay(b.pumpOutput))
	g.Go(relay(func() error { return b.writeOutput(gctx) }))
	g.Go(relay(b.readInput))
	g.Go(relay(func() error { return b.watchExit(gctx) }))
	g.Go(func() error {
		<-gctx.Done()
		reason := first.Load()
		if reason == nil {
			reason = &closeError{code: stream.CloseGoingAway, text: "server shutting down", err: ctx.Err()}
		}
		b.close(reason)
		return nil
	})
	_ = g.Wait()
	return b.reason
}

func (b *terminalBridge) pumpOutput() error {
	defer close(b.pumpDone)
	buf := make([]byte, readChunkLen)
	for {
		n, err := b.term.Read(buf)
		if n > 0 {
			b.outMu.Lock()
			b.pending = append(b.pending, buf[:n]...)
			b.outMu.Unlock()
			select {
			case b.ready <- struct{}{}:
			default:
			}
		}
		if err != nil {
			return &closeError{code: stream.CloseSessionEnded, text: "session ended", err: err}
		}
	}
}

func (b *terminalBridge) writeOutput(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.ready:
			if err := b.flush(); err != nil {
				return &closeError{code: stream.CloseAttachFailed, text: "output relay failed", err: err}
			}
		}
	}
}

// flush writes everything pending as one binary frame.
func (b *terminalBridge) flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.outMu.Lock()
	data := b.pending
	b.pending = nil
	b.outMu.Unlock()
	if len(data) == 0 {
		return nil
	}
	_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return b.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (b *terminalBridge) readInput() error {
	for {
		_, payload, err := b.conn.ReadMessage()
		if err != nil {
			return inputError(err)
		}
		if cols, rows, ok := stream.ParseResize(payload); ok {
			if err := b.term.Resize(cols, rows); err != nil {
				b.log.Warn("terminal_resize_failed", slog.String("error", err.Error()))
			}
			continue
		}
		if len(payload) == 0 {
			continue
		}
		if _, err := b.term.Write(payload); err != nil {
			return &closeError{code: stream.CloseAttachFailed, text: "input relay failed", err: err}
		}
	}
}

func inputError(err error) *closeError {
	if errors.Is(err, websocket.ErrReadLimit) {
		return &closeError{code: stream.CloseMessageTooBig, text: "message too big", err: err}
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &closeError{code: stream.CloseGoingAway, text: "client closed", err: err}
	}
	return &closeError{code: stream.CloseGoingAway, text: "connection lost", err: err}
}

// watchExit ends the bridge when the attach process exits, after giving the
// reader a moment to pick up its final output.
func (b *terminalBridge) watchExit(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-b.term.Done():
	}
	select {
	case <-b.pumpDone:
	case <-time.After(drainWait):
	}
	return &closeError{code: stream.CloseSessionEnded, text: "session ended"}
}

// close sends the close frame, terminates the PTY process and releases the
// PTY. Safe to call more than once.
func (b *terminalBridge) close(reason *closeError) {
	b.closeOnce.Do(func() {
		b.reason = reason
		if reason.code == stream.CloseSessionEnded {
			if err := b.flush(); err != nil {
				b.log.Debug("terminal_final_flush_failed", slog.String("error", err.Error()))
			}
		}
		msg := websocket.FormatCloseMessage(reason.code, reason.text)
		_ = b.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		_ = b.conn.Close()

		b.terminate()
		_ = b.term.Close()
	})
}

// terminate sends SIGTERM and escalates to SIGKILL after the grace period.
func (b *terminalBridge) terminate() {
	select {
	case <-b.term.Done():
		return
	default:
	}

	if err := b.term.Signal(syscall.SIGTERM); err != nil {
		b.log.Debug("terminal_sigterm_failed", slog.String("error", err.Error()))
	}
	timer := time.NewTimer(b.grace)
	defer timer.Stop()
	select {
	case <-b.term.Done():
		return
	case <-timer.C:
	}

	b.log.Warn("terminal_kill_after_grace", slog.Duration("grace", b.grace))
	if err := b.term.Signal(syscall.SIGKILL); err != nil {
		b.log.Error("terminal_sigkill_failed", slog.String("error", err.Error()))
	}
	select {
	case <-b.term.Done():
	case <-time.After(b.grace):
		b.log.Error("terminal_not_reaped")
	}
}
