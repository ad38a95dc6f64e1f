// Package logging assembles structured slog loggers and formatting helpers used
// across stave services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so render and playback code can
// tag log lines with session IDs, mount points, and request IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
