// Package agent describes the coding agents zui can run: how to invoke them
// and how to read their state from terminal text. Providers are plain data
// plus pure functions, registered once and never mutated.
package agent

import (
	"strings"
)

// Provider is the static descriptor of one supported agent CLI.
type Provider struct {
	ID          string
	DisplayName string
	Binary      string
	DefaultArgs []string
	YoloArgs    []string

	// Window is how many trailing pane lines Classify looks at.
	Window int

	// Classify maps the trailing window of pane lines (oldest first) to a status.
	Classify func(lines []string) Status
}

// BuildCommand returns the shell invocation for args: the bare binary when
// args is empty, otherwise binary and args joined by single spaces.
func (p *Provider) BuildCommand(args []string) string {
	if len(args) == 0 {
		return p.Binary
	}
	return p.Binary + " " + strings.Join(args, " ")
}

// Args returns a copy of the default or yolo argument set.
func (p *Provider) Args(yolo bool) []string {
	src := p.DefaultArgs
	if yolo {
		src = p.YoloArgs
	}
	return append([]string(nil), src...)
}

// DetectStatus classifies raw pane text using the provider's window.
func (p *Provider) DetectStatus(text string) Status {
	lines := LastLines(text, p.Window)
	if p.Classify == nil {
		return DefaultHeuristic.Classify(lines)
	}
	return p.Classify(lines)
}

// LastLines splits text into lines, drops trailing blank lines and returns
// at most the last n. n <= 0 returns all lines.
func LastLines(text string, n int) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
