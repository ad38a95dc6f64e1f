package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateVault(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	if c.Sessions.RetentionHours < 0 {
		return errors.New("sessions.retention_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateVault() error {
	switch c.Vault.Platform {
	case PlatformAuto, PlatformDesktop, PlatformMobile:
		return nil
	default:
		return fmt.Errorf("vault.platform must be one of auto, desktop, mobile (got %q)", c.Vault.Platform)
	}
}

func (c *Config) validateRender() error {
	if c.Render.Scale < 1 || c.Render.Scale > 150 {
		return errors.New("render.scale must be between 1 and 150")
	}
	if c.Render.PageWidth < 100 || c.Render.PageWidth > 8800 {
		return errors.New("render.page_width must be between 100 and 8800")
	}
	if !slices.Contains(validBreaks, c.Render.Breaks) {
		return fmt.Errorf("render.breaks must be one of %s", strings.Join(validBreaks, ", "))
	}
	if !slices.Contains(validFonts, c.Render.Font) {
		return fmt.Errorf("render.font must be one of %s", strings.Join(validFonts, ", "))
	}
	for key, value := range c.Render.Options {
		switch value.(type) {
		case bool, string, int64, float64:
		default:
			return fmt.Errorf("render.options.%s must be a boolean, number, or string", key)
		}
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"engine.timeout_seconds":        c.Engine.TimeoutSeconds,
		"fetch.timeout_seconds":         c.Fetch.TimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validatePlayback() error {
	if c.Playback.HighlightIntervalMS <= 0 {
		return errors.New("playback.highlight_interval_ms must be positive")
	}
	if c.Playback.LookaheadMS < 0 {
		return errors.New("playback.lookahead_ms must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
