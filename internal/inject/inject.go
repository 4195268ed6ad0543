// Package inject inserts synthetic team-assignment commands into the
// outgoing command stream so the controller never has to know that teams
// were supplied out of band.
package inject

import (
	"encoding/json"
	"fmt"
	"strings"

	"battlepipe/pkg/linebuf"
)

// StartMarker begins a new battle session inside one engine process.
const StartMarker = ">start"

// playerPrefix introduces a per-slot player command, e.g.
// `>player p1 {"name":"Alice","team":"..."}`.
const playerPrefix = ">player "

// Slots is the closed set of player slots, in injection order.
var Slots = []string{"p1", "p2", "p3", "p4"}

// Coordinator watches the controller's command stream for session-start
// markers and player commands, and emits one synthetic team assignment
// per supplied slot per session. All state is owned by the writer
// pipeline; no locking is needed.
type Coordinator struct {
	teams    map[string]string // slot -> packed team payload
	injected map[string]bool   // slot -> already injected this session
	due      bool              // armed by a start marker, cleared on drain
}

// New creates a Coordinator for the given slot -> packed-team mapping.
// Slots absent from the map are controller-owned and never injected for.
func New(teams map[string]string) *Coordinator {
	return &Coordinator{
		teams:    teams,
		injected: make(map[string]bool),
	}
}

// FeedChunk processes every line recovered from one delivered chunk and
// returns the lines to write downstream: the input lines unchanged and
// in order, followed by any synthetic commands that became due.
//
// Injection deliberately happens once per chunk rather than immediately
// after the marker line: the marker and the controller's own player
// commands commonly arrive in the same chunk, and draining the whole
// chunk first ensures an explicit controller assignment for a slot is
// seen before the coordinator decides that slot still needs a team.
func (c *Coordinator) FeedChunk(lines []linebuf.Line) []linebuf.Line {
	out := lines
	for _, line := range lines {
		c.observe(line.Text)
	}
	for _, cmd := range c.drain() {
		out = append(out, linebuf.Line{Text: cmd, HadNewline: true})
	}
	return out
}

// Finish performs the final due-check once the controller stream is
// exhausted. Call it before closing the engine's write side.
func (c *Coordinator) Finish() []linebuf.Line {
	var out []linebuf.Line
	for _, cmd := range c.drain() {
		out = append(out, linebuf.Line{Text: cmd, HadNewline: true})
	}
	return out
}

// observe updates injection state from one controller line. The line
// itself is always forwarded by the caller; observe never consumes it.
func (c *Coordinator) observe(text string) {
	if strings.HasPrefix(text, StartMarker) {
		// A new session: re-arm every slot that has a supplied team.
		// One long-lived engine process may host sequential battles.
		for slot := range c.teams {
			c.injected[slot] = false
		}
		c.due = true
		return
	}

	if rest, ok := strings.CutPrefix(text, playerPrefix); ok {
		slot, _, found := strings.Cut(rest, " ")
		if !found {
			return
		}
		if _, supplied := c.teams[slot]; supplied {
			// The controller took manual responsibility for this slot;
			// defer to it for the rest of the session.
			c.injected[slot] = true
		}
	}
}

// drain returns the synthetic commands due now, in slot order, and
// clears the due flag.
func (c *Coordinator) drain() []string {
	if !c.due {
		return nil
	}
	c.due = false

	var cmds []string
	for _, slot := range Slots {
		packed, supplied := c.teams[slot]
		if !supplied || c.injected[slot] {
			continue
		}
		cmds = append(cmds, Command(slot, packed))
		c.injected[slot] = true
	}
	return cmds
}

// Command builds the synthetic player command assigning a packed team to
// a slot. The payload is JSON so the packed text survives any characters
// the engine's command parser treats specially.
func Command(slot, packed string) string {
	payload, err := json.Marshal(struct {
		Name string `json:"name"`
		Team string `json:"team"`
	}{Name: slot, Team: packed})
	if err != nil {
		// Marshalling two strings cannot fail.
		panic(err)
	}
	return fmt.Sprintf("%s%s %s", playerPrefix, slot, payload)
}
