// Package linebuf reassembles complete lines from a stream of
// arbitrarily sized chunks.
//
// # Overview
//
// Goals:
//
//  1. Turn an unbounded sequence of chunks into a sequence of lines
//  2. Never lose or duplicate bytes across chunk boundaries
//  3. Preserve whether the trailing '\n' was actually present
//  4. Stream: memory grows with the longest single line, not the stream
//
// # Behavior
//
// Each Feed call appends its chunk to an internal pending buffer and
// emits every line for which the terminating '\n' has arrived. The byte
// after the last emitted '\n' up to the end of the chunk stays buffered
// until a later Feed delivers the rest of the line, or Flush is called.
//
// A chunk boundary can fall anywhere: in the middle of a line, in the
// middle of a multi-byte UTF-8 sequence, or exactly on a delimiter. The
// splitter only ever cuts at '\n' bytes, which cannot occur inside a
// UTF-8 continuation, so text is never corrupted.
//
// # Reconstruction
//
// For any chunking of an input, concatenating the emitted lines and
// re-adding '\n' wherever HadNewline is true reproduces the input
// exactly. Join implements this.
package linebuf
