package tmux

import "strings"

// StripANSI removes CSI, OSC and two-byte escape sequences in a single pass.
// 8-bit C1 introducers are left alone since 0x9b is also a UTF-8 continuation byte.
// capture-pane -p does not emit escapes unless -e is passed, but agents
// occasionally leak raw sequences into the pane text.
func StripANSI(s string) string {
	if strings.IndexByte(s, '\x1b') < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch {
		case s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '[':
			i = skipCSI(s, i+2)
		case s[i] == '\x1b' && i+1 < len(s) && s[i+1] == ']':
			i = skipOSC(s, i+2)
		case s[i] == '\x1b' && i+1 < len(s):
			i += 2
		case s[i] == '\x1b':
			i++
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// skipCSI returns the index just past the final byte of a CSI sequence.
func skipCSI(s string, i int) int {
	for ; i < len(s); i++ {
		if c := s[i]; c >= 0x40 && c <= 0x7e {
			return i + 1
		}
	}
	return i
}

// skipOSC returns the index just past a BEL or ST terminator.
func skipOSC(s string, i int) int {
	for ; i < len(s); i++ {
		if s[i] == '\x07' {
			return i + 1
		}
		if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '\\' {
			return i + 2
		}
	}
	return i
}
