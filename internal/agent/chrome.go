package agent

import "strings"

// TrimBoxChrome trims whitespace and the borders of box-drawn panels, so
// "│ > fix bug │" becomes "> fix bug".
func TrimBoxChrome(line string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "│┃╭╮╰╯"))
}

// IsChrome reports whether a line already passed through TrimBoxChrome is
// interface furniture rather than output: blank, a horizontal rule, the
// shortcuts footer, the mode footer or an empty input box.
func IsChrome(line string) bool {
	if isEmptyInputBox(line) {
		return true
	}
	return strings.HasPrefix(line, "? for shortcuts") ||
		strings.HasPrefix(line, "⏵⏵") ||
		strings.Trim(line, "─━═ ") == ""
}

func isEmptyInputBox(line string) bool {
	return line == ">" || line == "❯"
}
