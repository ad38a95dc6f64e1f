// Package session persists rendering sessions in SQLite.
//
// A session is one displayed score: its source path, effective options,
// optional measure range, current page, and the mount point showing it. The
// registry hands out time-ordered UUIDv7 identifiers. Sessions are evicted
// when their mount point is unmounted or their first activation fails, and
// Prune drops sessions untouched for longer than the configured retention.
package session
