// Package markdown finds embedded score blocks in a Markdown note.
//
// A score block is a fenced code block whose info string is "verovio":
//
//	```verovio
//	scores/etude.mei
//	scale: 40
//	```
package markdown

import "strings"

// Language is the info string that marks a score block.
const Language = "verovio"

// Block is one fenced score block. Line is the 1-based line of the opening
// fence.
type Block struct {
	Index  int
	Line   int
	Source string
}

// Blocks returns the score blocks of text in document order. An unclosed
// fence runs to the end of the note.
func Blocks(text string) []Block {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var (
		blocks  []Block
		inFence bool
		capture bool
		marker  byte
		width   int
		start   int
		body    []string
	)
	for i, line := range lines {
		trimmed, indent := trimIndent(line)
		if !inFence {
			if indent > 3 {
				continue
			}
			ch, n := fenceRun(trimmed)
			if n < 3 {
				continue
			}
			info := strings.TrimSpace(trimmed[n:])
			if ch == '`' && strings.Contains(info, "`") {
				continue
			}
			inFence = true
			marker, width = ch, n
			lang, _, _ := strings.Cut(info, " ")
			capture = lang == Language
			start = i + 1
			body = body[:0]
			continue
		}
		if indent <= 3 {
			if ch, n := fenceRun(trimmed); ch == marker && n >= width && strings.TrimSpace(trimmed[n:]) == "" {
				if capture {
					blocks = append(blocks, Block{Index: len(blocks), Line: start, Source: strings.Join(body, "\n")})
				}
				inFence = false
				continue
			}
		}
		if capture {
			body = append(body, line)
		}
	}
	if inFence && capture {
		blocks = append(blocks, Block{Index: len(blocks), Line: start, Source: strings.Join(body, "\n")})
	}
	return blocks
}

func trimIndent(line string) (string, int) {
	n := 0
	for n < len(line) && line[n] == ' ' {
		n++
	}
	return line[n:], n
}

// fenceRun returns the fence character and run length at the start of line.
func fenceRun(line string) (byte, int) {
	if line == "" || (line[0] != '`' && line[0] != '~') {
		return 0, 0
	}
	ch := line[0]
	n := 0
	for n < len(line) && line[n] == ch {
		n++
	}
	return ch, n
}
