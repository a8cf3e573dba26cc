package logging

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"strings"
)

// NewStdLogger returns a *log.Logger that forwards each line to the
// component logger at level. Used for net/http's ErrorLog, which only
// accepts the standard library logger.
func NewStdLogger(component string, level slog.Level) *log.Logger {
	return log.New(&lineWriter{logger: ForComponent(component), level: level}, "", 0)
}

type lineWriter struct {
	logger *slog.Logger
	level  slog.Level
}

func (w *lineWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(p, []byte("\n")) {
		msg := strings.TrimSpace(string(line))
		if msg == "" {
			continue
		}
		// net/http prefixes its messages with "http: ".
		msg = strings.TrimPrefix(msg, "http: ")
		w.logger.Log(context.Background(), w.level, "stdlib_log", slog.String("line", msg))
	}
	return len(p), nil
}
