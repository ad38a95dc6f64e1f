// Package view is the document surface scores are mounted into.
//
// A Document holds named mount points, one per embedded block. Each mount
// point shows either a score container (SVG plus toolbar) or an error
// message. Mount points carry a generation counter: a render takes a Ticket
// when it starts and its result is only committed if no newer render began
// on the same mount point in the meantime.
//
// Highlighting marks note elements with the "playing" class; the marks are
// applied to the SVG when the mount point is rendered as HTML.
package view
