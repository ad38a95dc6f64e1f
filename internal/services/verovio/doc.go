// Package verovio drives the Verovio command-line engraver as an
// engine.Toolkit.
//
// Each stateful toolkit call maps onto files in a private work directory:
// LoadData writes the input file, option changes rewrite the flag set, and
// render calls run the binary with the matching output type (svg, mei, midi,
// timemap). Rendered pages and the timemap are cached until the next load or
// option change.
//
// The CLI cannot apply a measure selection to loaded data, so Select always
// reports a rejection. Blocks that ask for a measure range surface a
// selection error instead of silently rendering the whole score.
package verovio
