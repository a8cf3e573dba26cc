package tmux

import (
	"os"
	"os/exec"
	"strings"
)

// AttachCommand builds the attach-session command for name. The command must
// run inside a real PTY; tmux refuses to attach otherwise. TMUX is stripped
// from the child environment so the attach works even when zui itself runs
// inside a tmux session.
func (c *Client) AttachCommand(name string) *exec.Cmd {
	cmd := exec.Command(c.binary, c.args("attach-session", "-t", "="+name)...)
	cmd.Env = append(environWithout(os.Environ(), "TMUX", "TMUX_PANE", "TERM"), "TERM=xterm-256color")
	return cmd
}

// SocketFromEnv returns the server socket path from $TMUX, if set.
func SocketFromEnv() string {
	raw := strings.TrimSpace(os.Getenv("TMUX"))
	if raw == "" {
		return ""
	}
	socket, _, _ := strings.Cut(raw, ",")
	return strings.TrimSpace(socket)
}

func environWithout(env []string, keys ...string) []string {
	filtered := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		drop := false
		for _, k := range keys {
			if name == k {
				drop = true
				break
			}
		}
		if !drop {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

// FocusCommand hands the calling terminal to name: switch-client when the
// caller already sits inside tmux, attach-session otherwise. Unlike
// AttachCommand the caller's environment is kept as is.
func (c *Client) FocusCommand(name string) *exec.Cmd {
	verb := "attach-session"
	if os.Getenv("TMUX") != "" {
		verb = "switch-client"
	}
	return exec.Command(c.binary, c.args(verb, "-t", "="+name)...)
}
