package agent

import "strings"

// Codex runs the OpenAI Codex CLI.
var Codex = &Provider{
	ID:          "codex",
	DisplayName: "Codex CLI",
	Binary:      "codex",
	YoloArgs:    []string{"--yolo"},
	Window:      5,
	Classify: Heuristic{
		Waiting: []string{"approve?", "allow", "y/n", "press enter", "[allow]", "[deny]", "approve this"},
		Errors:  []string{"error:", "failed", "error", "panic"},
		Idle: func(line string) bool {
			return strings.Contains(line, "❯") || strings.Contains(line, ">")
		},
	}.Classify,
}
