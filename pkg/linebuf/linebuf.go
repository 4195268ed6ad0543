// Package linebuf reassembles complete lines from a stream of
// arbitrarily sized chunks. See doc.go for the format guarantees.
package linebuf

import "strings"

// Line is one logical line recovered from the stream. HadNewline records
// whether the terminating '\n' was actually present in the source; the
// final line of a stream may end without one.
type Line struct {
	Text       string
	HadNewline bool
}

// Splitter buffers the unterminated tail between Feed calls. The pending
// buffer never contains a '\n': it holds exactly the bytes received after
// the last emitted line. The zero value is ready to use.
type Splitter struct {
	pending string
}

// Feed appends chunk to the pending buffer and returns every complete
// line now available, in order. A chunk may carry zero, one, or many
// delimiters. Cutting happens only at '\n' bytes, so multi-byte UTF-8
// sequences split across chunk boundaries are never corrupted.
func (s *Splitter) Feed(chunk string) []Line {
	if chunk == "" {
		return nil
	}
	s.pending += chunk

	var lines []Line
	for {
		idx := strings.IndexByte(s.pending, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, Line{Text: s.pending[:idx], HadNewline: true})
		s.pending = s.pending[idx+1:]
	}
	return lines
}

// Flush returns the trailing unterminated line, if any. Call it exactly
// once, after the source is exhausted.
func (s *Splitter) Flush() (Line, bool) {
	if s.pending == "" {
		return Line{}, false
	}
	line := Line{Text: s.pending, HadNewline: false}
	s.pending = ""
	return line, true
}

// Pending reports whether an unterminated tail is currently buffered.
func (s *Splitter) Pending() bool {
	return s.pending != ""
}

// Join reverses the split: it concatenates lines, re-adding '\n' where
// HadNewline is set, reconstructing the original stream byte for byte.
func Join(lines []Line) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line.Text)
		if line.HadNewline {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
