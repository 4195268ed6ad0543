// Package annotate converts the engine's terse pipe-delimited protocol
// lines into structured, timestamped records in a single forward pass.
//
// The engine restates almost nothing: a timestamp line applies to every
// following line until the next one, and the current turn number is only
// announced when it changes. The Annotator carries that context forward
// so downstream consumers never have to parse the line grammar.
package annotate

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"battlepipe/pkg/linebuf"
)

// timestampPrefix announces wall-clock seconds since the Unix epoch,
// e.g. `|t:|1690000000`.
const timestampPrefix = "|t:|"

// turnToken is the second pipe-delimited field of a turn announcement,
// e.g. `|turn|5`.
const turnToken = "turn"

// playerPattern matches the first player-slot token on a line. Slot
// mentions like `p1a: Pikachu` still identify the owning player.
var playerPattern = regexp.MustCompile(`p[1-4]`)

// Event is one annotated protocol line. Turn is nil until the engine has
// announced a turn; Player is empty for lines that name no slot.
type Event struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Turn      *int      `json:"turn,omitempty"`
	Player    string    `json:"player,omitempty"`
}

// Annotator derives context from the event stream with O(1) memory. One
// Annotator is scoped to one engine process; carried state never resets.
type Annotator struct {
	split linebuf.Splitter

	turn    int
	turnSet bool
	stamp   time.Time
	stamped bool

	now func() time.Time
}

// New returns an Annotator using the real clock.
func New() *Annotator {
	return &Annotator{now: time.Now}
}

// Feed splits one received chunk into lines and returns one Event per
// non-empty line, in order.
func (a *Annotator) Feed(chunk string) []Event {
	var events []Event
	for _, line := range a.split.Feed(chunk) {
		if ev, ok := a.annotate(line.Text); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Flush annotates the unterminated tail, if any. Call once at stream end.
func (a *Annotator) Flush() []Event {
	line, ok := a.split.Flush()
	if !ok {
		return nil
	}
	ev, ok := a.annotate(line.Text)
	if !ok {
		return nil
	}
	return []Event{ev}
}

// annotate produces the record for one raw line. Empty lines and the
// bare `|` chunk separator produce nothing.
func (a *Annotator) annotate(raw string) (Event, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || line == "|" {
		return Event{}, false
	}

	// Timestamp extraction is independent of the other grammars and is
	// always attempted first, so the record below already reflects it.
	if rest, ok := strings.CutPrefix(line, timestampPrefix); ok {
		if idx := strings.IndexByte(rest, '|'); idx >= 0 {
			rest = rest[:idx]
		}
		if secs, err := strconv.ParseInt(rest, 10, 64); err == nil {
			a.stamp = time.Unix(secs, 0).UTC()
			a.stamped = true
		}
		// An unparseable value is not an update, and not an error.
	}

	if fields := strings.Split(line, "|"); len(fields) >= 3 && fields[1] == turnToken {
		if n, err := strconv.Atoi(fields[2]); err == nil {
			a.turn = n
			a.turnSet = true
		}
	}

	ev := Event{
		Message:   line,
		Timestamp: a.now(),
		Player:    playerPattern.FindString(line),
	}
	if a.stamped {
		ev.Timestamp = a.stamp
	}
	if a.turnSet {
		turn := a.turn
		ev.Turn = &turn
	}
	return ev, true
}
