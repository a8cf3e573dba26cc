package session

import (
	"context"

	"github.com/thornhill6305/zui/internal/tmux"
)

// Multiplexer is the slice of the tmux control surface the manager uses.
// *tmux.Client satisfies it.
type Multiplexer interface {
	ListSessions(ctx context.Context) ([]tmux.SessionInfo, error)
	HasSession(ctx context.Context, name string) bool
	NewSession(ctx context.Context, name, dir, command string) error
	KillSession(ctx context.Context, name string) error
	CapturePane(ctx context.Context, name string, lines int) (string, error)
	SetOption(ctx context.Context, name, key, value string) error
	Option(ctx context.Context, name, key string) string
	CurrentPath(ctx context.Context, name string) string
	OwnSession(ctx context.Context) string
}

var _ Multiplexer = (*tmux.Client)(nil)
