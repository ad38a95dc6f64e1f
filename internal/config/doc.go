// Package config loads, normalizes, and validates stave configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// STAVE_API_TOKEN and STAVE_VAULT. The Config type centralizes every knob the
// daemon and CLI need, including the host-wide render settings that every
// score block inherits before its own overrides are applied.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
