package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/thornhill6305/zui/internal/agent"
)

// PreviewWidth is the display width previews are truncated to.
const PreviewWidth = 80

// FormatDuration renders whole seconds as "45s", "2m 5s" or "1h 1m".
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}

// FormatIdle renders time since last activity as "12s ago" or "7m ago".
func FormatIdle(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs < 60 {
		return fmt.Sprintf("%ds ago", secs)
	}
	return fmt.Sprintf("%dm ago", secs/60)
}

// Preview returns the last line of pane text that is neither blank nor
// agent chrome (box borders, footers, an empty input box), truncated to
// PreviewWidth display cells, or NoOutputPreview.
func Preview(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := agent.TrimBoxChrome(lines[i])
		if agent.IsChrome(line) {
			continue
		}
		return runewidth.Truncate(line, PreviewWidth, "")
	}
	return NoOutputPreview
}
