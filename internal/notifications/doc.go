// Package notifications delivers user-facing notices raised by toolbar
// actions and playback failures.
//
// Every notice lands in an in-memory Feed that the daemon exposes to document
// viewers and the CLI. When an ntfy topic is configured the same notice is
// also pushed there. Callers depend only on the small Service interface.
package notifications
