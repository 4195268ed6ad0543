package spectate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"

	"battlepipe/internal/annotate"
)

// maxChatLines caps how much chat the report retains.
const maxChatLines = 50

// Report accumulates a battle summary from the event stream. Chat lines
// are engine-relayed user text and therefore untrusted; HTML output is
// sanitized before serving.
type Report struct {
	mu      sync.Mutex
	players map[string]string // slot -> display name
	turn    int
	winner  string
	chat    []string
	events  int
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{players: make(map[string]string)}
}

// Observe updates the summary from one annotated event.
func (r *Report) Observe(ev annotate.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events++
	if ev.Turn != nil && *ev.Turn > r.turn {
		r.turn = *ev.Turn
	}

	fields := strings.Split(ev.Message, "|")
	if len(fields) < 2 {
		return
	}
	switch fields[1] {
	case "player":
		if len(fields) >= 4 && fields[3] != "" {
			r.players[fields[2]] = fields[3]
		}
	case "win":
		if len(fields) >= 3 {
			r.winner = fields[2]
		}
	case "c", "chat":
		if len(fields) >= 4 && len(r.chat) < maxChatLines {
			r.chat = append(r.chat, fmt.Sprintf("%s: %s", fields[2], strings.Join(fields[3:], "|")))
		}
	}
}

// Markdown renders the current summary.
func (r *Report) Markdown() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.WriteString("# Battle report\n\n")

	if len(r.players) > 0 {
		b.WriteString("## Players\n\n")
		for _, slot := range []string{"p1", "p2", "p3", "p4"} {
			if name, ok := r.players[slot]; ok {
				fmt.Fprintf(&b, "- **%s**: %s\n", slot, name)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Progress\n\n- Events: %d\n- Turn: %d\n", r.events, r.turn)
	if r.winner != "" {
		fmt.Fprintf(&b, "- Winner: **%s**\n", r.winner)
	}

	if len(r.chat) > 0 {
		b.WriteString("\n## Chat\n\n")
		for _, line := range r.chat {
			fmt.Fprintf(&b, "> %s\n", line)
		}
	}
	return b.String()
}

// HTML renders the summary as sanitized HTML.
func (r *Report) HTML() string {
	unsafe := blackfriday.Run(
		[]byte(r.Markdown()),
		blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.AutoHeadingIDs),
	)
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3")
	return string(policy.SanitizeBytes(unsafe))
}
