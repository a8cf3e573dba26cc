// Package git resolves branch information for session naming. Git is only
// ever invoked as an external command.
package git

import (
	"context"
	"strings"

	"github.com/thornhill6305/zui/internal/shell"
)

// CurrentBranch returns the checked-out branch for dir. Detached HEADs,
// non-repositories and git failures all yield "".
func CurrentBranch(ctx context.Context, r shell.Runner, dir string) string {
	return shell.Output(ctx, r, "git", "-C", dir, "branch", "--show-current")
}

// SanitizeBranchName flattens a branch name into a single path segment:
// slashes and characters git forbids in ref names become dashes.
func SanitizeBranchName(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		" ", "-",
		"..", "-",
		"~", "-",
		"^", "-",
		":", "-",
		"?", "-",
		"*", "-",
		"[", "-",
		"\\", "-",
		"@{", "-",
	)
	sanitized := replacer.Replace(strings.TrimSpace(name))
	sanitized = strings.TrimLeft(sanitized, ".")
	for strings.HasSuffix(sanitized, ".lock") {
		sanitized = strings.TrimSuffix(sanitized, ".lock")
	}
	return sanitized
}
