package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"stave/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("STAVE_API_TOKEN", "")
	t.Setenv("STAVE_VAULT", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "stave")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Vault.Root != filepath.Join(tempHome, "notes") {
		t.Fatalf("unexpected vault root: %q", cfg.Vault.Root)
	}
	if cfg.Paths.SocketPath != filepath.Join(wantState, "stave.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Render.Scale != 100 || cfg.Render.Font != "Leland" || cfg.Render.Breaks != "auto" {
		t.Fatalf("unexpected render defaults: %+v", cfg.Render)
	}
	if cfg.HighlightInterval().Milliseconds() != 50 {
		t.Fatalf("unexpected highlight interval: %v", cfg.HighlightInterval())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.CacheDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "stave.toml")

	contents := `
[vault]
root = "` + filepath.ToSlash(filepath.Join(tempDir, "vault")) + `"
platform = "Mobile"

[render]
scale = 60
font = "bravura"

[render.options]
spacingStaff = 12
header = "none"

[playback]
highlight_interval_ms = 80
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Render.Scale != 60 {
		t.Fatalf("expected scale 60, got %d", cfg.Render.Scale)
	}
	if cfg.Render.Font != "Bravura" {
		t.Fatalf("expected canonical font name, got %q", cfg.Render.Font)
	}
	if !cfg.IsMobile() {
		t.Fatal("expected mobile platform")
	}
	if cfg.Playback.HighlightIntervalMS != 80 {
		t.Fatalf("expected highlight interval 80, got %d", cfg.Playback.HighlightIntervalMS)
	}

	host := cfg.HostOptions()
	if host["scale"] != float64(60) {
		t.Fatalf("expected host scale 60, got %#v", host["scale"])
	}
	if host["spacingStaff"] != float64(12) {
		t.Fatalf("expected extra integer option as float64, got %#v", host["spacingStaff"])
	}
	if host["header"] != "none" {
		t.Fatalf("expected passthrough option, got %#v", host["header"])
	}
	if host["adjustPageHeight"] != true {
		t.Fatalf("expected adjustPageHeight default true, got %#v", host["adjustPageHeight"])
	}
}

func TestNamedRenderSettingsWinOverExtraOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Render.Options = map[string]any{"scale": int64(10)}
	if got := cfg.HostOptions()["scale"]; got != float64(100) {
		t.Fatalf("expected named scale to win, got %#v", got)
	}
}

func TestEnvTokenFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STAVE_API_TOKEN", " secret ")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected token from env, got %q", cfg.Paths.APIToken)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[render]") {
		t.Fatalf("sample config missing render section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Render.Font != "Leland" {
		t.Fatalf("unexpected sample font %q", cfg.Render.Font)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"scale too large", func(c *config.Config) { c.Render.Scale = 151 }},
		{"page width too small", func(c *config.Config) { c.Render.PageWidth = 50 }},
		{"unknown breaks", func(c *config.Config) { c.Render.Breaks = "sometimes" }},
		{"unknown font", func(c *config.Config) { c.Render.Font = "Comic" }},
		{"unknown platform", func(c *config.Config) { c.Vault.Platform = "watch" }},
		{"zero engine timeout", func(c *config.Config) { c.Engine.TimeoutSeconds = 0 }},
		{"negative lookahead", func(c *config.Config) { c.Playback.LookaheadMS = -1 }},
		{"nested option", func(c *config.Config) { c.Render.Options = map[string]any{"x": []any{1}} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
