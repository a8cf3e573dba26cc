package session

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/thornhill6305/zui/internal/git"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// DeriveName builds a session name from a working directory basename and a
// git branch: "<dir>-<branch>", or "<dir>" without a branch. Every character
// outside [a-zA-Z0-9_-] becomes a dash.
func DeriveName(workdir, branch string) string {
	dir := filepath.Base(strings.TrimRight(workdir, string(filepath.Separator)))
	if dir == "." || dir == string(filepath.Separator) || dir == "" {
		dir = "session"
	}
	name := dir
	if b := git.SanitizeBranchName(branch); b != "" {
		name += "-" + b
	}
	return unsafeNameChars.ReplaceAllString(name, "-")
}

// candidateName returns base for attempt 1 and base-N for attempt N >= 2.
func candidateName(base string, attempt int) string {
	if attempt <= 1 {
		return base
	}
	return base + "-" + strconv.Itoa(attempt)
}
