package extraction

import (
	"context"
	"errors"
)

// ErrProviderFailed wraps any intent provider failure so callers can fall
// back to the deterministic classifier.
var ErrProviderFailed = errors.New("intent provider failed")

// IntentGuess is a refined intent classification with its own confidence.
type IntentGuess struct {
	Intent     Intent `json:"intent"`
	Title      string `json:"title,omitempty"`
	Confidence int    `json:"confidence"` // 0-100
}

// IntentProvider refines an intent guess, typically via an LLM. A provider
// may fail; callers must fall back to Extractor.Classify.
type IntentProvider interface {
	// Guess returns a structured intent guess for the text.
	Guess(ctx context.Context, text string) (IntentGuess, error)

	// Available returns true if the provider is configured and ready.
	Available() bool
}

// validIntent reports whether the provider returned a known intent type.
func validIntent(intent Intent) bool {
	switch intent {
	case IntentTask, IntentIdea, IntentNote, IntentPerson, IntentPlace, IntentProject:
		return true
	}
	return false
}
