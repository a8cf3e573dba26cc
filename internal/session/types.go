// Package session discovers, spawns, classifies and kills agent sessions.
// The tmux server is the only source of truth: nothing is cached between
// calls, so sessions killed or created outside zui show up on the next List.
package session

import (
	"errors"
	"time"

	"github.com/thornhill6305/zui/internal/agent"
)

// Reserved session names never shown in listings.
const (
	ManagerSessionName = "zui-manager"
	WebSessionName     = "zui-web"
)

// AgentTagKey is the tmux user option holding the provider id of a session.
const AgentTagKey = "@zui_agent"

// NoOutputPreview is shown when a pane has no meaningful text.
const NoOutputPreview = "(no output)"

var (
	// ErrInvalidWorkdir is returned by Spawn when workdir is not an existing directory.
	ErrInvalidWorkdir = errors.New("working directory does not exist")
	// ErrNameUnavailable is returned when every collision suffix is taken.
	ErrNameUnavailable = errors.New("session name already running")
	// ErrMultiplexer wraps tmux failures surfaced from Spawn.
	ErrMultiplexer = errors.New("tmux session creation failed")
)

// Session is one live agent session as observed by a single List call.
type Session struct {
	Name           string       `json:"name"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	Running        string       `json:"running"`
	Idle           string       `json:"idle"`
	Status         agent.Status `json:"status"`
	AgentID        string       `json:"agent"`
	Preview        string       `json:"preview"`
}

// ListOptions filters List results.
type ListOptions struct {
	// Exclude hides these names in addition to the reserved set.
	Exclude []string
	// SkipOwnSession hides the tmux session the caller is running in.
	SkipOwnSession bool
}
