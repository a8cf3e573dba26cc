package agent

import "strings"

// Heuristic is the default classification shape: prompt markers anywhere in
// the window mean WAITING, then failure markers mean ERROR, then a trailing
// prompt on the last line means IDLE, otherwise WORKING. Markers are matched
// case-insensitively as substrings.
type Heuristic struct {
	Waiting []string
	Errors  []string
	// Idle reports whether the last meaningful line is an idle prompt.
	Idle func(line string) bool
}

// DefaultHeuristic is used by providers that do not set Classify.
var DefaultHeuristic = Heuristic{
	Waiting: []string{"(y/n)", "y/n", "allow", "approve", "press enter", "continue?", "proceed?"},
	Errors:  []string{"error:", "exception", "traceback", "panic", "failed"},
	Idle:    endsWithPrompt,
}

// Classify implements the priority order described on Heuristic.
func (h Heuristic) Classify(lines []string) Status {
	last := ""
	var lowered []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		last = trimmed
		lowered = append(lowered, strings.ToLower(trimmed))
	}

	for _, l := range lowered {
		if containsAny(l, h.Waiting) {
			return StatusWaiting
		}
	}
	for _, l := range lowered {
		if containsAny(l, h.Errors) {
			return StatusError
		}
	}
	if last != "" && h.Idle != nil && h.Idle(last) {
		return StatusIdle
	}
	return StatusWorking
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func endsWithPrompt(line string) bool {
	return strings.HasSuffix(line, ">") || strings.HasSuffix(line, "$")
}
