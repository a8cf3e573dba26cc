// Package stream holds the terminal streaming wire protocol and the
// reconnecting client that speaks it.
//
// After the WebSocket upgrade, server-to-client frames carry raw PTY bytes.
// Client-to-server frames are either a resize envelope
// {"type":"resize","cols":N,"rows":N} or raw keystrokes written verbatim.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/gorilla/websocket"
)

// TerminalPath is the HTTP path of the streaming endpoint and SessionParam
// the query parameter naming the target session.
const (
	TerminalPath = "/terminal"
	SessionParam = "session"
)

// MaxFrameBytes caps a single inbound frame on the server.
const MaxFrameBytes = 1 << 20

// Close codes used by the bridge.
const (
	CloseSessionEnded  = websocket.CloseNormalClosure     // attach process exited or session missing
	CloseGoingAway     = websocket.CloseGoingAway         // client disconnect or server shutdown
	CloseInvalidTarget = websocket.ClosePolicyViolation   // missing or malformed session parameter
	CloseMessageTooBig = websocket.CloseMessageTooBig     // inbound frame above MaxFrameBytes
	CloseAttachFailed  = websocket.CloseInternalServerErr // PTY or attach process failure
)

var (
	// ErrInvalidTarget means the server rejected the session name.
	ErrInvalidTarget = errors.New("invalid stream target")
	// ErrMessageTooBig means the server closed the stream over an oversized frame.
	ErrMessageTooBig = errors.New("stream frame too large")
)

var sessionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidSessionName reports whether name may be passed to tmux attach.
// Parent-directory sequences are refused even though each dot is allowed.
func ValidSessionName(name string) bool {
	return sessionNamePattern.MatchString(name) && !strings.Contains(name, "..")
}

// ResizeMessage is the only control envelope.
type ResizeMessage struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

const resizeType = "resize"

// EncodeResize returns the wire form of a resize request.
func EncodeResize(cols, rows int) []byte {
	data, _ := json.Marshal(ResizeMessage{Type: resizeType, Cols: cols, Rows: rows})
	return data
}

// ParseResize recognises a resize envelope, which must start with '{'.
// Anything else, including JSON with another type, non-positive dimensions
// or leading whitespace, is terminal input.
func ParseResize(payload []byte) (cols, rows uint16, ok bool) {
	if len(payload) == 0 || payload[0] != '{' {
		return 0, 0, false
	}
	var msg ResizeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return 0, 0, false
	}
	if msg.Type != resizeType || msg.Cols <= 0 || msg.Rows <= 0 ||
		msg.Cols > math.MaxUint16 || msg.Rows > math.MaxUint16 {
		return 0, 0, false
	}
	return uint16(msg.Cols), uint16(msg.Rows), true
}

// TerminalURL builds the streaming URL for session from a server base URL.
// http and https bases are mapped to ws and wss; existing query parameters
// such as token are kept.
func TerminalURL(base, session string) (string, error) {
	if !ValidSessionName(session) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, session)
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", base)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = TerminalPath
	}
	q := u.Query()
	q.Set(SessionParam, session)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// closeErr maps a terminal close code to the error reported by Client.Err.
func closeErr(code int) error {
	switch code {
	case CloseInvalidTarget:
		return ErrInvalidTarget
	case CloseMessageTooBig:
		return ErrMessageTooBig
	}
	return nil
}
