package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeVault(); err != nil {
		return err
	}
	if err := c.normalizeEngine(); err != nil {
		return err
	}
	c.normalizeRender()
	c.normalizeFetch()
	c.normalizePlayback()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.StateDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("STAVE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeVault() error {
	if value, ok := os.LookupEnv("STAVE_VAULT"); ok && strings.TrimSpace(value) != "" && strings.TrimSpace(c.Vault.Root) == "" {
		c.Vault.Root = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Vault.Root) == "" {
		c.Vault.Root = defaultVaultRoot
	}
	var err error
	if c.Vault.Root, err = expandPath(c.Vault.Root); err != nil {
		return fmt.Errorf("vault.root: %w", err)
	}
	c.Vault.Platform = strings.ToLower(strings.TrimSpace(c.Vault.Platform))
	if c.Vault.Platform == "" {
		c.Vault.Platform = defaultPlatform
	}
	return nil
}

func (c *Config) normalizeEngine() error {
	c.Engine.Binary = strings.TrimSpace(c.Engine.Binary)
	if c.Engine.Binary == "" {
		c.Engine.Binary = defaultEngineBinary
	}
	if strings.TrimSpace(c.Engine.ResourcePath) != "" {
		var err error
		if c.Engine.ResourcePath, err = expandPath(strings.TrimSpace(c.Engine.ResourcePath)); err != nil {
			return fmt.Errorf("engine.resource_path: %w", err)
		}
	}
	if c.Engine.TimeoutSeconds <= 0 {
		c.Engine.TimeoutSeconds = defaultEngineTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeRender() {
	c.Render.Breaks = strings.ToLower(strings.TrimSpace(c.Render.Breaks))
	if c.Render.Breaks == "" {
		c.Render.Breaks = defaultRenderBreaks
	}
	c.Render.Font = strings.TrimSpace(c.Render.Font)
	if c.Render.Font == "" {
		c.Render.Font = defaultRenderFont
	}
	for _, font := range validFonts {
		if strings.EqualFold(font, c.Render.Font) {
			c.Render.Font = font
		}
	}
}

func (c *Config) normalizeFetch() {
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultFetchTimeoutSeconds
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultFetchUserAgent
	}
}

func (c *Config) normalizePlayback() {
	if c.Playback.HighlightIntervalMS <= 0 {
		c.Playback.HighlightIntervalMS = defaultHighlightIntervalMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
