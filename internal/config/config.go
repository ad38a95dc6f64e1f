package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	CacheDir   string `toml:"cache_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
	SocketPath string `toml:"socket_path"`
}

// Vault describes the host document store that relative score paths resolve
// against. Platform is one of auto, desktop, or mobile; mobile hosts cannot
// download images or open files externally.
type Vault struct {
	Root     string `toml:"root"`
	Platform string `toml:"platform"`
}

// Render contains the host-wide render settings every score block inherits.
type Render struct {
	Scale            int            `toml:"scale"`
	AdjustPageHeight bool           `toml:"adjust_page_height"`
	AdjustPageWidth  bool           `toml:"adjust_page_width"`
	Breaks           string         `toml:"breaks"`
	PageWidth        int            `toml:"page_width"`
	Font             string         `toml:"font"`
	Options          map[string]any `toml:"options"`
}

// Engine configures the engraving engine binary.
type Engine struct {
	Binary         string `toml:"binary"`
	ResourcePath   string `toml:"resource_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Fetch configures remote score retrieval.
type Fetch struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent"`
}

// Playback configures highlight reconciliation.
type Playback struct {
	HighlightIntervalMS int     `toml:"highlight_interval_ms"`
	LookaheadMS         float64 `toml:"lookahead_ms"`
}

// Sessions configures session registry retention.
type Sessions struct {
	RetentionHours int `toml:"retention_hours"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for stave.
//
// Configuration sections by subsystem:
//   - Paths: state, log and cache directories, API bind address, IPC socket
//   - Vault: host document store root and platform class
//   - Render: host-wide engraving options
//   - Engine: engraving engine binary
//   - Fetch: remote score retrieval
//   - Playback: highlight throttle and lookahead
//   - Sessions: registry retention
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Vault         Vault         `toml:"vault"`
	Render        Render        `toml:"render"`
	Engine        Engine        `toml:"engine"`
	Fetch         Fetch         `toml:"fetch"`
	Playback      Playback      `toml:"playback"`
	Sessions      Sessions      `toml:"sessions"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/stave/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stave.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The vault root is not created: a missing vault only fails individual fetches.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SessionDBPath returns the SQLite database backing the session registry.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.Paths.StateDir, "sessions.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "staved.lock")
}

// PIDPath returns the file the daemon records its process id in.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "staved.pid")
}

// IsMobile reports whether the host is a mobile platform.
func (c *Config) IsMobile() bool {
	switch c.Vault.Platform {
	case PlatformMobile:
		return true
	case PlatformDesktop:
		return false
	default:
		return runtime.GOOS == "android" || runtime.GOOS == "ios"
	}
}

// HostOptions returns the host-wide render settings keyed by engine option
// name. Entries from the free-form [render.options] table are included but
// never override the named settings.
func (c *Config) HostOptions() map[string]any {
	out := make(map[string]any, len(c.Render.Options)+6)
	for key, value := range c.Render.Options {
		if n, ok := value.(int64); ok {
			value = float64(n)
		}
		out[key] = value
	}
	out["scale"] = float64(c.Render.Scale)
	out["adjustPageHeight"] = c.Render.AdjustPageHeight
	out["adjustPageWidth"] = c.Render.AdjustPageWidth
	out["breaks"] = c.Render.Breaks
	out["pageWidth"] = float64(c.Render.PageWidth)
	out["font"] = c.Render.Font
	return out
}

// HighlightInterval returns the highlight throttle window.
func (c *Config) HighlightInterval() time.Duration {
	return time.Duration(c.Playback.HighlightIntervalMS) * time.Millisecond
}

// SessionRetention returns how long idle sessions survive a daemon restart.
func (c *Config) SessionRetention() time.Duration {
	return time.Duration(c.Sessions.RetentionHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
