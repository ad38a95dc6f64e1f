// Package preflight provides readiness checks for the engraver and the
// filesystem paths stave depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failed check.
//   - The CLI "stave status" command prints the results next to the daemon
//     status when the daemon is not reachable.
package preflight
