package session

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

type sessionNames []Session

func (s sessionNames) String(i int) string { return s[i].Name }
func (s sessionNames) Len() int            { return len(s) }

// Filter fuzzy-matches query against session names and returns the matches
// best first. An empty query returns sessions unchanged.
func Filter(sessions []Session, query string) []Session {
	query = strings.TrimSpace(query)
	if query == "" {
		return sessions
	}
	matches := fuzzy.FindFrom(query, sessionNames(sessions))
	out := make([]Session, 0, len(matches))
	for _, m := range matches {
		out = append(out, sessions[m.Index])
	}
	return out
}
