package debrief

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(titles ...string) Session {
	s := Session{ID: "s-1", ChannelID: "chan-1", State: StateAwaitingResponse}
	for _, title := range titles {
		s.Items = append(s.Items, Item{RecordID: "rec-" + title, Title: title, Resolution: ResolutionPending})
	}
	return s
}

func TestAdvance_FreeTextClarifiesAndMovesOn(t *testing.T) {
	out := Advance(newSession("gym thing", "other thing"), "book a gym session friday")

	require.NotNil(t, out.Resolved)
	assert.Equal(t, ResolutionClarified, out.Resolved.Resolution)
	assert.Equal(t, "book a gym session friday", out.Resolved.ResponseText)
	assert.Equal(t, StateAwaitingResponse, out.Session.State)
	assert.Equal(t, 1, out.Session.ItemIndex)
	assert.Contains(t, out.Prompt, "Item 2 of 2")
	assert.Nil(t, out.Summary)
}

func TestAdvance_SkipDismisses(t *testing.T) {
	out := Advance(newSession("gym thing", "other thing"), "skip")

	require.NotNil(t, out.Resolved)
	assert.Equal(t, ResolutionSkipped, out.Resolved.Resolution)
	assert.Empty(t, out.Resolved.ResponseText)
	assert.Equal(t, 1, out.Session.ItemIndex)
}

func TestAdvance_DoneEndsEarlyWithSummary(t *testing.T) {
	s := newSession("a", "b", "c")
	out := Advance(s, "make it a task")
	out = Advance(out.Session, "skip")

	out = Advance(out.Session, "done")
	assert.Equal(t, StateEnded, out.Session.State)
	require.NotNil(t, out.Summary)
	assert.Equal(t, Summary{Clarified: 1, Skipped: 1, Remaining: 1}, *out.Summary)
	assert.Nil(t, out.Resolved)
}

func TestAdvance_LastItemEndsSession(t *testing.T) {
	out := Advance(newSession("only item"), "skip")

	assert.Equal(t, StateEnded, out.Session.State)
	require.NotNil(t, out.Summary)
	assert.Equal(t, Summary{Skipped: 1}, *out.Summary)
	assert.Contains(t, out.Prompt, "0 clarified, 1 skipped, 0 remaining")
}

func TestAdvance_EndedSessionStaysEnded(t *testing.T) {
	s := newSession("only item")
	out := Advance(s, "skip")
	require.Equal(t, StateEnded, out.Session.State)

	again := Advance(out.Session, "anything")
	assert.Equal(t, StateEnded, again.Session.State)
	assert.Nil(t, again.Resolved)
	require.NotNil(t, again.Summary)
}

func TestAdvance_SkipIsCaseInsensitive(t *testing.T) {
	out := Advance(newSession("a", "b"), "  SKIP ")
	require.NotNil(t, out.Resolved)
	assert.Equal(t, ResolutionSkipped, out.Resolved.Resolution)
}
