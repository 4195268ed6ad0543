package inject

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"battlepipe/pkg/linebuf"
)

func terminated(texts ...string) []linebuf.Line {
	var lines []linebuf.Line
	for _, t := range texts {
		lines = append(lines, linebuf.Line{Text: t, HadNewline: true})
	}
	return lines
}

func texts(lines []linebuf.Line) []string {
	var out []string
	for _, l := range lines {
		out = append(out, l.Text)
	}
	return out
}

func TestFeedChunk_InjectsExactlyOncePerSlot(t *testing.T) {
	c := New(map[string]string{"p1": "PACKED1", "p2": "PACKED2"})

	out := c.FeedChunk(terminated(
		`>start {"formatid":"gen9ou"}`,
		`>forcewin`,
	))

	got := texts(out)
	require.Len(t, got, 4)
	// Controller lines first, unchanged and in order.
	require.Equal(t, `>start {"formatid":"gen9ou"}`, got[0])
	require.Equal(t, `>forcewin`, got[1])
	// Synthetic commands after the whole chunk, in slot order.
	require.Equal(t, Command("p1", "PACKED1"), got[2])
	require.Equal(t, Command("p2", "PACKED2"), got[3])

	// Later chunks of the same session inject nothing more.
	out = c.FeedChunk(terminated(`>p1 move 1`, `>p2 move 2`))
	require.Len(t, out, 2)
	require.Empty(t, c.Finish())
}

func TestFeedChunk_DefersToExplicitPlayerCommand(t *testing.T) {
	c := New(map[string]string{"p1": "PACKED1", "p2": "PACKED2"})

	out := c.FeedChunk(terminated(
		`>start {"formatid":"gen9ou"}`,
		`>player p1 {"name":"Alice","team":"CUSTOM"}`,
	))

	got := texts(out)
	require.Len(t, got, 3)
	// p1 was explicitly assigned by the controller; only p2 is injected.
	require.Equal(t, Command("p2", "PACKED2"), got[2])
	for _, line := range got[:2] {
		require.NotContains(t, line, "PACKED1")
	}
}

func TestFeedChunk_UnsuppliedSlotIsControllerOwned(t *testing.T) {
	c := New(map[string]string{"p2": "PACKED2"})

	out := c.FeedChunk(terminated(`>start`))
	got := texts(out)
	require.Len(t, got, 2)
	require.Equal(t, Command("p2", "PACKED2"), got[1])

	// Nothing is ever emitted for p1.
	for _, line := range got {
		require.False(t, strings.HasPrefix(line, ">player p1"))
	}
}

func TestFeedChunk_MarkerInLaterChunkThanPlayerCommand(t *testing.T) {
	c := New(map[string]string{"p1": "PACKED1"})

	// Start marker alone in its chunk: injection fires at chunk end.
	out := c.FeedChunk(terminated(`>start`))
	require.Equal(t, []string{`>start`, Command("p1", "PACKED1")}, texts(out))
}

func TestFeedChunk_MultiSessionReArm(t *testing.T) {
	c := New(map[string]string{"p1": "PACKED1", "p2": "PACKED2"})

	first := texts(c.FeedChunk(terminated(`>start`)))
	require.Len(t, first, 3)

	// A second start marker in the same process re-arms both slots.
	second := texts(c.FeedChunk(terminated(`>start`)))
	require.Len(t, second, 3)
	require.Equal(t, Command("p1", "PACKED1"), second[1])
	require.Equal(t, Command("p2", "PACKED2"), second[2])
}

func TestFeedChunk_ReArmClearsEarlierDeference(t *testing.T) {
	c := New(map[string]string{"p1": "PACKED1"})

	// Session one: controller overrides p1, no injection.
	out := c.FeedChunk(terminated(`>start`, `>player p1 {"team":"CUSTOM"}`))
	require.Len(t, out, 2)

	// Session two: the override does not carry over; p1 is injected.
	out = c.FeedChunk(terminated(`>start`))
	require.Equal(t, []string{`>start`, Command("p1", "PACKED1")}, texts(out))
}

func TestFinish_DueCheckAtStreamEnd(t *testing.T) {
	c := New(map[string]string{"p1": "PACKED1"})

	// The marker arrives as the unterminated tail of the stream; the
	// caller passes it through FeedChunk-less observation via a final
	// chunk, then Finish emits what is still due.
	out := c.FeedChunk([]linebuf.Line{{Text: `>start`, HadNewline: false}})
	// FeedChunk already ran the due-check for this chunk.
	require.Len(t, out, 2)
	require.Empty(t, c.Finish())
}

func TestFeedChunk_NoTeamsIsPurePassthrough(t *testing.T) {
	c := New(nil)

	lines := terminated(`>start`, `>player p1 {"team":"CUSTOM"}`, `>p1 move 1`)
	out := c.FeedChunk(lines)
	require.Equal(t, texts(lines), texts(out))
	require.Empty(t, c.Finish())
}

func TestCommand_EscapesPackedPayload(t *testing.T) {
	cmd := Command("p1", `Pika|pikachu|lightball|static|volttackle|"quirky"`)
	require.True(t, strings.HasPrefix(cmd, `>player p1 {`))
	require.Contains(t, cmd, `\"quirky\"`)
	require.Contains(t, cmd, `"name":"p1"`)
}
