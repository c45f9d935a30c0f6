// Package debrief walks a human through the review backlog, one flagged
// item at a time. The state machine itself is pure; persistence and side
// effects live in the Manager so a lost conversation can resume without
// corrupting already-resolved items.
package debrief

import (
	"fmt"
	"strings"
	"time"
)

// State of a debrief session.
type State string

const (
	// StateReviewing means an item is being presented and its prompt has
	// not reached the user yet.
	StateReviewing        State = "reviewing"
	StateAwaitingResponse State = "awaiting_response"
	StateEnded            State = "ended"
)

// Item resolutions.
const (
	ResolutionPending   = "pending"
	ResolutionClarified = "clarified"
	ResolutionSkipped   = "skipped"
)

// Item is one flagged record under review.
type Item struct {
	RecordID     string `json:"record_id"`
	Title        string `json:"title"`
	Resolution   string `json:"resolution"`
	ResponseText string `json:"response_text,omitempty"`
}

// Session is one debrief conversation.
type Session struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channel_id"`
	State     State      `json:"state"`
	ItemIndex int        `json:"item_index"`
	Items     []Item     `json:"items"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Summary is emitted when a session ends.
type Summary struct {
	Clarified int `json:"clarified"`
	Skipped   int `json:"skipped"`
	Remaining int `json:"remaining"`
}

// Outcome is the result of advancing a session by one input.
type Outcome struct {
	Session  Session
	Resolved *Item    // item this input resolved, if any
	Prompt   string   // next message for the user
	Summary  *Summary // set only when the session ended
}

// Advance applies one user input to a session and returns the next state.
// Pure: no clock, no storage, no side effects. "skip" dismisses the current
// item, "done" ends the session early, anything else clarifies the item
// into a task from the reply text.
func Advance(s Session, input string) Outcome {
	if s.State == StateEnded || s.ItemIndex >= len(s.Items) {
		sum := summarize(s)
		s.State = StateEnded
		return Outcome{Session: s, Prompt: summaryPrompt(sum), Summary: &sum}
	}

	trimmed := strings.TrimSpace(input)
	switch strings.ToLower(trimmed) {
	case "done":
		sum := summarize(s)
		s.State = StateEnded
		return Outcome{Session: s, Prompt: summaryPrompt(sum), Summary: &sum}
	case "skip":
		item := s.Items[s.ItemIndex]
		item.Resolution = ResolutionSkipped
		s.Items[s.ItemIndex] = item
		return advancePast(s, item)
	default:
		item := s.Items[s.ItemIndex]
		item.Resolution = ResolutionClarified
		item.ResponseText = trimmed
		s.Items[s.ItemIndex] = item
		return advancePast(s, item)
	}
}

func advancePast(s Session, resolved Item) Outcome {
	s.ItemIndex++
	if s.ItemIndex >= len(s.Items) {
		sum := summarize(s)
		s.State = StateEnded
		return Outcome{Session: s, Resolved: &resolved, Prompt: summaryPrompt(sum), Summary: &sum}
	}
	s.State = StateAwaitingResponse
	return Outcome{Session: s, Resolved: &resolved, Prompt: ItemPrompt(s)}
}

// ItemPrompt presents the current item.
func ItemPrompt(s Session) string {
	return fmt.Sprintf("Item %d of %d: %q. Reply with details to make it a task, 'skip' to dismiss, or 'done' to stop.",
		s.ItemIndex+1, len(s.Items), s.Items[s.ItemIndex].Title)
}

func summarize(s Session) Summary {
	var sum Summary
	for _, item := range s.Items {
		switch item.Resolution {
		case ResolutionClarified:
			sum.Clarified++
		case ResolutionSkipped:
			sum.Skipped++
		default:
			sum.Remaining++
		}
	}
	return sum
}

func summaryPrompt(sum Summary) string {
	return fmt.Sprintf("Debrief finished: %d clarified, %d skipped, %d remaining.",
		sum.Clarified, sum.Skipped, sum.Remaining)
}
