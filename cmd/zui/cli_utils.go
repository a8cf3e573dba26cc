package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/thornhill6305/zui/internal/agent"
	"github.com/thornhill6305/zui/internal/session"
)

const (
	nameColumn    = 30
	statusColumn  = 7
	runningColumn = 7
	previewColumn = 40
)

const listHeader = "  #  Session                        Status  Running  Preview"

var errNoSessions = errors.New("No sessions running")

var statusStyles = map[agent.Status]lipgloss.Style{
	agent.StatusWorking: lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
	agent.StatusWaiting: lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Bold(true),
	agent.StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true),
	agent.StatusIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")),
}

func isIndexArg(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseIndex converts a 1-based user index into a 0-based slice index.
func parseIndex(arg string, count int) (int, error) {
	if arg == "" {
		return 0, errors.New("Usage: zui f <number>")
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("Invalid index: %s", arg)
	}
	if count == 0 {
		return 0, errNoSessions
	}
	if n < 1 || n > count {
		return 0, fmt.Errorf("Index %d out of range (1-%d)", n, count)
	}
	return n - 1, nil
}

// resolveTarget maps a "#" index or a session name onto a session name.
func resolveTarget(arg string, sessions []session.Session) (string, error) {
	if isIndexArg(arg) {
		i, err := parseIndex(arg, len(sessions))
		if err != nil {
			return "", err
		}
		return sessions[i].Name, nil
	}
	return arg, nil
}

// formatSessionLine renders one `zui ls` row. index is 0-based.
func formatSessionLine(index int, s session.Session, colored bool) string {
	status := padRight(s.Status.Tag(), statusColumn)
	if colored {
		if style, ok := statusStyles[s.Status]; ok {
			status = style.Render(status)
		}
	}
	return fmt.Sprintf("%3d  %s %s %s  %s",
		index+1,
		padRight(runewidth.Truncate(s.Name, nameColumn, ""), nameColumn),
		status,
		padLeft(s.Running, runningColumn),
		runewidth.Truncate(s.Preview, previewColumn, ""))
}

func padRight(s string, width int) string {
	if pad := width - runewidth.StringWidth(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}

func padLeft(s string, width int) string {
	if pad := width - runewidth.StringWidth(s); pad > 0 {
		return strings.Repeat(" ", pad) + s
	}
	return s
}

// shellQuote wraps s in single quotes for the sh -c that tmux runs.
func shellQuote(s string) string {
	if s != "" && strings.Trim(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_./:-=") == "" {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
