// Package capture defines the raw input event of the intake pipeline and
// the idempotency keys that guard external side effects.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Source distinguishes how a capture arrived.
type Source string

const (
	SourceText  Source = "text"
	SourceVoice Source = "voice"
)

// Capture is one raw user input event. It is immutable once created and
// owned by the pipeline until terminally routed.
type Capture struct {
	ChannelID  string    `json:"channel_id"`
	MessageID  string    `json:"message_id"`
	Text       string    `json:"text"`
	Source     Source    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`

	// TranscriptionConfidence is set only for voice-derived captures.
	TranscriptionConfidence *float64 `json:"transcription_confidence,omitempty"`
}

// voiceKeySuffix keeps the voice-derived key for a message distinct from
// the text-path key for the same message id.
const voiceKeySuffix = "voice"

// Key derives the deterministic idempotency key for this capture.
func (c Capture) Key() string {
	if c.Source == SourceVoice {
		return IdempotencyKey(c.ChannelID, c.MessageID, voiceKeySuffix)
	}
	return IdempotencyKey(c.ChannelID, c.MessageID)
}

// IdempotencyKey builds a stable key from channel and message identifiers,
// with an optional suffix for secondary actions on the same message.
func IdempotencyKey(channelID, messageID string, suffix ...string) string {
	parts := append([]string{channelID, messageID}, suffix...)
	return strings.Join(parts, ":")
}

// Validate checks that the capture carries enough identity to be keyed.
func (c Capture) Validate() error {
	if strings.TrimSpace(c.ChannelID) == "" {
		return fmt.Errorf("channel_id is required")
	}
	if strings.TrimSpace(c.MessageID) == "" {
		return fmt.Errorf("message_id is required")
	}
	return nil
}

// ErrTranscription marks a failed speech-to-text conversion.
var ErrTranscription = errors.New("transcription failed")

// Transcription is the result of converting audio to text.
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0-1
	Language   string  `json:"language,omitempty"`
}

// Transcriber converts audio bytes to text. Implementations wrap an external
// speech-to-text service; failures must wrap ErrTranscription.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (Transcription, error)
}
