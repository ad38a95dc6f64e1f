// Package daemon coordinates the long-running stave process.
//
// It wires configuration, the session registry, the engine adapter, the
// render pipeline, the playback synchronizer, and the toolbar into a single
// lifecycle with flock-based locking to prevent multiple instances. The
// daemon exposes every user-facing operation as a method so the HTTP API and
// the IPC server share one implementation, and it owns the notice feed those
// operations report into.
//
// Keep orchestration logic here: rendering and playback rules live in their
// respective packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
