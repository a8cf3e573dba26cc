package main

import (
	"reflect"
	"strings"
	"testing"

	"github.com/thornhill6305/zui/internal/agent"
	"github.com/thornhill6305/zui/internal/session"
)

func TestParseIndex(t *testing.T) {
	tests := []struct {
		arg     string
		count   int
		want    int
		wantErr string
	}{
		{"1", 3, 0, ""},
		{"3", 3, 2, ""},
		{"", 3, 0, "Usage: zui f <number>"},
		{"abc", 3, 0, "Invalid index: abc"},
		{"1", 0, 0, "No sessions running"},
		{"0", 3, 0, "Index 0 out of range (1-3)"},
		{"4", 3, 0, "Index 4 out of range (1-3)"},
	}
	for _, tt := range tests {
		got, err := parseIndex(tt.arg, tt.count)
		if tt.wantErr != "" {
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("parseIndex(%q, %d) error = %v, want %q", tt.arg, tt.count, err, tt.wantErr)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("parseIndex(%q, %d) = %d, %v; want %d", tt.arg, tt.count, got, err, tt.want)
		}
	}
}

func TestResolveTarget(t *testing.T) {
	sessions := []session.Session{{Name: "api-main"}, {Name: "web-dev"}}

	if got, err := resolveTarget("2", sessions); err != nil || got != "web-dev" {
		t.Errorf("resolveTarget(2) = %q, %v", got, err)
	}
	if got, err := resolveTarget("docs", sessions); err != nil || got != "docs" {
		t.Errorf("resolveTarget(docs) = %q, %v", got, err)
	}
	if _, err := resolveTarget("9", sessions); err == nil {
		t.Error("resolveTarget(9) should fail")
	}
}

func TestFormatSessionLine(t *testing.T) {
	s := session.Session{
		Name:    "api-main",
		Status:  agent.StatusIdle,
		Running: "2m 5s",
		Preview: "✻ Worked for 3s",
	}
	want := "  1  api-main" + strings.Repeat(" ", 23) + "[IDLE]" + strings.Repeat(" ", 4) + "2m 5s" + "  " + "✻ Worked for 3s"
	if got := formatSessionLine(0, s, false); got != want {
		t.Errorf("formatSessionLine:\n got %q\nwant %q", got, want)
	}

	// Columns line up with the header.
	if strings.Index(listHeader, "Status") != strings.Index(want, "[IDLE]") {
		t.Errorf("status column misaligned with header")
	}
}

func TestFormatSessionLineTruncates(t *testing.T) {
	s := session.Session{
		Name:    strings.Repeat("n", 40),
		Status:  agent.StatusWorking,
		Running: "1h 1m",
		Preview: strings.Repeat("p", 60),
	}
	line := formatSessionLine(11, s, false)
	if !strings.HasPrefix(line, " 12  "+strings.Repeat("n", 30)+" [WORK]") {
		t.Errorf("name not truncated to 30 cells: %q", line)
	}
	if !strings.HasSuffix(line, "  "+strings.Repeat("p", 40)) || strings.Contains(line, strings.Repeat("p", 41)) {
		t.Errorf("preview not truncated to 40 cells: %q", line)
	}
}

func TestExtractConfigFlag(t *testing.T) {
	tests := []struct {
		args     []string
		wantPath string
		wantRest []string
	}{
		{[]string{"ls"}, "", []string{"ls"}},
		{[]string{"--config", "/tmp/z.toml", "ls", "api"}, "/tmp/z.toml", []string{"ls", "api"}},
		{[]string{"-c", "/tmp/z.toml", "serve"}, "/tmp/z.toml", []string{"serve"}},
		{[]string{"spawn", ".", "--config=/tmp/z.toml"}, "/tmp/z.toml", []string{"spawn", "."}},
	}
	for _, tt := range tests {
		path, rest := extractConfigFlag(tt.args)
		if path != tt.wantPath || !reflect.DeepEqual(rest, tt.wantRest) {
			t.Errorf("extractConfigFlag(%v) = %q, %v; want %q, %v", tt.args, path, rest, tt.wantPath, tt.wantRest)
		}
	}
}

func TestShellQuote(t *testing.T) {
	tests := map[string]string{
		"/usr/local/bin/zui":   "/usr/local/bin/zui",
		"/home/me/My Apps/zui": "'/home/me/My Apps/zui'",
		"it's":                 `'it'\''s'`,
		"":                     "''",
		"127.0.0.1:3030":       "127.0.0.1:3030",
	}
	for in, want := range tests {
		if got := shellQuote(in); got != want {
			t.Errorf("shellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsIndexArg(t *testing.T) {
	for _, s := range []string{"1", "42"} {
		if !isIndexArg(s) {
			t.Errorf("isIndexArg(%q) = false", s)
		}
	}
	for _, s := range []string{"", "f2", "api", "-1"} {
		if isIndexArg(s) {
			t.Errorf("isIndexArg(%q) = true", s)
		}
	}
}
