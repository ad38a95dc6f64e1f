// Package render turns block text into a mounted score.
//
// Pipeline.Render parses the block, fetches the score, registers a session,
// activates the shared engine, renders page 1, restores the host defaults,
// and mounts the container. A failed fetch or activation mounts a visible
// error instead and leaves no session behind. RenderDocument does the same
// for every score block of a Markdown note, fetching the blocks in parallel
// and activating them one at a time.
package render
