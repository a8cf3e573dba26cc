package agent

import (
	"regexp"
	"strings"
)

// Claude runs Claude Code.
var Claude = &Provider{
	ID:          "claude",
	DisplayName: "Claude Code",
	Binary:      "claude",
	YoloArgs:    []string{"--dangerously-skip-permissions"},
	Window:      10,
	Classify:    classifyClaude,
}

var (
	claudeWaiting = []string{"? ", "allow", "approve", "y/n", "(y)", "press enter", "continue?", "proceed?"}
	claudeErrors  = []string{"error:", "failed", "exception", "traceback"}
	claudeBusy    = []string{"esc to interrupt", "ctrl+c to interrupt"}

	// Spinner glyph followed by an ellipsis: "✶ Reticulating… (12s)".
	claudeSpinnerActive = regexp.MustCompile(`^[✳✽✶✻✢·⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏]\s*\S.*(…|\.\.\.)`)

	// Numbered choices under a permission question: "❯ 1. Yes", "2. No".
	claudeMenuOption = regexp.MustCompile(`^(❯\s*)?\d+\.\s`)
)

// claudeDoneGlyph prefixes completed-action summaries ("✻ Worked for 1m 3s").
// It is shared with the spinner set, so it only means IDLE without an ellipsis.
const claudeDoneGlyph = "✻"

// classifyClaude scans from the newest line backwards, skipping chrome and
// menu options; the first marker match wins. A prompt only counts on the
// newest line. Plain output ends the scan as WORKING, unless the input box
// is drawn below it: then older lines are still searched for a spinner
// (tips sit between the two) and the screen is IDLE when none is found.
func classifyClaude(lines []string) Status {
	inputBox := false
	newest := true
	for i := len(lines) - 1; i >= 0; i-- {
		raw := strings.TrimSpace(lines[i])
		line := TrimBoxChrome(raw)
		switch {
		case claudeMenuOption.MatchString(line):
			continue
		case isClaudeInputBox(raw, line):
			inputBox = true
			continue
		case IsChrome(line):
			continue
		}
		lower := strings.ToLower(line)

		switch {
		case containsAny(lower, claudeWaiting):
			return StatusWaiting
		case containsAny(lower, claudeErrors):
			return StatusError
		case claudeSpinnerActive.MatchString(line), containsAny(lower, claudeBusy):
			return StatusWorking
		case strings.HasPrefix(line, claudeDoneGlyph):
			return StatusIdle
		case newest && isClaudePrompt(line, lower):
			return StatusIdle
		}
		newest = false
		if !inputBox {
			return StatusWorking
		}
	}
	if inputBox {
		return StatusIdle
	}
	return StatusWorking
}

// isClaudeInputBox matches the input box whether empty or holding a draft.
// A bare "> text" outside a box is an echoed prompt, not the input box.
func isClaudeInputBox(raw, line string) bool {
	if isEmptyInputBox(line) {
		return true
	}
	return strings.HasPrefix(raw, "│") &&
		(strings.HasPrefix(line, "> ") || strings.HasPrefix(line, "❯ "))
}

func isClaudePrompt(line, lower string) bool {
	if endsWithPrompt(line) || strings.HasPrefix(line, "> ") {
		return true
	}
	return strings.Contains(lower, "claude") && strings.Contains(line, ">")
}
