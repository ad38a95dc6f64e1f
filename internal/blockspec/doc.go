// Package blockspec parses the text of an embedded score block into the score
// path, per-block option overrides, and an optional measure range.
//
// Block text looks like:
//
//	scores/etude.mei
//	scale: 40
//	adjustPageHeight: true
//	measureRange: 5-12
//
// The first line names the score; every later line is a key: value pair.
// Malformed lines are ignored. Option values are coerced to bool, float64, or
// string, and Merge layers engine defaults, host settings, and block overrides.
package blockspec
