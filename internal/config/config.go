// Package config loads and saves ~/.config/zui/config.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/thornhill6305/zui/internal/agent"
)

// FileName is the config file name inside the zui config directory.
const FileName = "config.toml"

// ErrInvalidSocket is returned by Validate for socket paths that could be
// misread by tmux's argument parser.
var ErrInvalidSocket = errors.New("invalid socket path")

var socketPattern = regexp.MustCompile(`^[a-zA-Z0-9_./-]+$`)

// Config is the on-disk configuration.
type Config struct {
	// Socket is the tmux server socket (-S). Empty uses tmux's default server.
	Socket string `toml:"socket"`

	// RefreshInterval is the dashboard poll period in seconds.
	RefreshInterval int `toml:"refresh_interval"`

	DefaultAgent string `toml:"default_agent"`

	// Exclude hides additional session names from listings.
	Exclude []string `toml:"exclude,omitempty"`

	Agents map[string]AgentArgs `toml:"agents"`

	// Claude is the pre-[agents] layout, read for migration only.
	Claude *AgentArgs `toml:"claude,omitempty"`

	Web      WebConfig     `toml:"web"`
	Logs     LogConfig     `toml:"logs"`
	Timeouts TimeoutConfig `toml:"timeouts"`
}

// AgentArgs overrides a provider's argument sets.
type AgentArgs struct {
	DefaultArgs []string `toml:"default_args"`
	YoloArgs    []string `toml:"yolo_args"`
}

// WebConfig controls `zui serve`.
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// Token, when set, must accompany API and terminal requests.
	Token string `toml:"token,omitempty"`
	// AllowRemote disables the private-network filter.
	AllowRemote bool `toml:"allow_remote"`
}

// LogConfig maps onto logging.Config.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Dir        string `toml:"dir,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
	Debug      bool   `toml:"debug"`
	Pprof      string `toml:"pprof,omitempty"`
}

// TimeoutConfig bounds external calls and PTY teardown.
type TimeoutConfig struct {
	CommandSecs int `toml:"command_secs"`
	GraceSecs   int `toml:"grace_secs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	agents := make(map[string]AgentArgs)
	for _, p := range agent.All() {
		agents[p.ID] = AgentArgs{DefaultArgs: p.Args(false), YoloArgs: p.Args(true)}
	}
	return &Config{
		RefreshInterval: 2,
		DefaultAgent:    agent.FallbackID,
		Agents:          agents,
		Web:             WebConfig{Host: "127.0.0.1", Port: 3030},
		Logs:            LogConfig{Level: "info", Format: "json", MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 10},
		Timeouts:        TimeoutConfig{CommandSecs: 5, GraceSecs: 5},
	}
}

// Dir returns ~/.config/zui.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "zui"), nil
}

// SearchPaths lists candidate config files in priority order.
func SearchPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".config", "zui", FileName),
		filepath.Join(home, ".zui.toml"),
	}
}

// Locate returns explicit when set, otherwise the first existing search
// path, otherwise the primary search path (where Save would create it).
func Locate(explicit string) string {
	if explicit != "" {
		return explicit
	}
	paths := SearchPaths()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) > 0 {
		return paths[0]
	}
	return FileName
}

// LoadFile reads path over the defaults. A missing file yields the
// defaults; a malformed one yields the defaults and the parse error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Default(), fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML bytes over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var raw Config
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if meta.IsDefined("socket") {
		cfg.Socket = raw.Socket
	}
	if meta.IsDefined("refresh_interval") {
		cfg.RefreshInterval = raw.RefreshInterval
	}
	if meta.IsDefined("default_agent") {
		cfg.DefaultAgent = raw.DefaultAgent
	}
	cfg.Exclude = raw.Exclude

	for id, args := range raw.Agents {
		merged := cfg.Agents[id]
		if meta.IsDefined("agents", id, "default_args") {
			merged.DefaultArgs = args.DefaultArgs
		}
		if meta.IsDefined("agents", id, "yolo_args") {
			merged.YoloArgs = args.YoloArgs
		}
		cfg.Agents[id] = merged
	}
	if raw.Claude != nil && !meta.IsDefined("agents") {
		merged := cfg.Agents[agent.Claude.ID]
		if meta.IsDefined("claude", "default_args") {
			merged.DefaultArgs = raw.Claude.DefaultArgs
		}
		if meta.IsDefined("claude", "yolo_args") {
			merged.YoloArgs = raw.Claude.YoloArgs
		}
		cfg.Agents[agent.Claude.ID] = merged
	}

	overlayWeb(&cfg.Web, raw.Web, meta)
	overlayLogs(&cfg.Logs, raw.Logs, meta)
	if meta.IsDefined("timeouts", "command_secs") {
		cfg.Timeouts.CommandSecs = raw.Timeouts.CommandSecs
	}
	if meta.IsDefined("timeouts", "grace_secs") {
		cfg.Timeouts.GraceSecs = raw.Timeouts.GraceSecs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayWeb(dst *WebConfig, src WebConfig, meta toml.MetaData) {
	if meta.IsDefined("web", "host") {
		dst.Host = src.Host
	}
	if meta.IsDefined("web", "port") {
		dst.Port = src.Port
	}
	if meta.IsDefined("web", "token") {
		dst.Token = src.Token
	}
	if meta.IsDefined("web", "allow_remote") {
		dst.AllowRemote = src.AllowRemote
	}
}

func overlayLogs(dst *LogConfig, src LogConfig, meta toml.MetaData) {
	if meta.IsDefined("logs", "level") {
		dst.Level = src.Level
	}
	if meta.IsDefined("logs", "format") {
		dst.Format = src.Format
	}
	if meta.IsDefined("logs", "dir") {
		dst.Dir = expandHome(src.Dir)
	}
	if meta.IsDefined("logs", "max_size_mb") {
		dst.MaxSizeMB = src.MaxSizeMB
	}
	if meta.IsDefined("logs", "max_backups") {
		dst.MaxBackups = src.MaxBackups
	}
	if meta.IsDefined("logs", "max_age_days") {
		dst.MaxAgeDays = src.MaxAgeDays
	}
	if meta.IsDefined("logs", "compress") {
		dst.Compress = src.Compress
	}
	if meta.IsDefined("logs", "debug") {
		dst.Debug = src.Debug
	}
	if meta.IsDefined("logs", "pprof") {
		dst.Pprof = src.Pprof
	}
}

// Validate rejects values that would be unsafe to pass on or cannot work.
func (c *Config) Validate() error {
	if c.Socket != "" && !socketPattern.MatchString(c.Socket) {
		return fmt.Errorf("%w: %q", ErrInvalidSocket, c.Socket)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive, got %d", c.RefreshInterval)
	}
	if c.DefaultAgent == "" {
		return errors.New("default_agent must not be empty")
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port out of range: %d", c.Web.Port)
	}
	if c.Timeouts.CommandSecs <= 0 || c.Timeouts.GraceSecs <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

// AgentArgsFor returns the configured argument sets for id.
func (c *Config) AgentArgsFor(id string) (AgentArgs, bool) {
	args, ok := c.Agents[id]
	return args, ok
}

// CommandTimeout is Timeouts.CommandSecs as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Timeouts.CommandSecs) * time.Second
}

// GracePeriod is Timeouts.GraceSecs as a duration.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.Timeouts.GraceSecs) * time.Second
}

// WebAddr is host:port for the web server.
func (c *Config) WebAddr() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// Save writes cfg to path atomically: temp file, fsync, rename.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	out := *cfg
	out.Claude = nil

	var buf bytes.Buffer
	buf.WriteString("# zui configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(out); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize config: %w", err)
	}
	return nil
}

func expandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
