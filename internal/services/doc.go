// Package services defines shared utilities consumed by the rendering and
// playback components and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, mount points, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so every entry point can
//     classify a failure (fetch, selection, audio, platform) at its boundary.
//   - A thin Executor abstraction that makes external binaries (the engraver,
//     the platform file opener) testable.
package services
