// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates sessions, mount points, playback status, and
// notices into transport-friendly DTOs that the CLI and other consumers can
// render without coupling to internal types.
//
// # Key Types
//
// Session: a registered rendering session joined with its mounted container
// (page count, playing flag).
//
// MountPoint: the visible state of one mount point, either a score container
// or an error message.
//
// DaemonStatus: daemon runtime information, engine counters, playback state,
// and dependency availability.
//
// # Converters
//
// FromSession, FromMountPoint, FromPlayback, FromNotices, and
// FromDependencies map internal values to DTOs. StatusCode maps error markers
// to HTTP status codes.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers. Timestamps use
// RFC3339 with milliseconds. Rendered SVG is only included in mount payloads
// when the caller asks for it, since pages can be large.
package api
