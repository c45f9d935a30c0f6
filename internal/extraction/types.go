// Package extraction turns raw capture text into a structured intent guess:
// intent type, title, people, places, and resolved dates. It is a pure
// lexical layer with no knowledge of confidence policy; an optional
// LLM-backed provider can refine the intent guess and falls back to the
// heuristics on failure.
package extraction

import (
	"fmt"
	"time"
)

// Intent classifies what a capture is about.
type Intent string

const (
	IntentTask    Intent = "task"
	IntentIdea    Intent = "idea"
	IntentNote    Intent = "note"
	IntentPerson  Intent = "person"
	IntentPlace   Intent = "place"
	IntentProject Intent = "project"
)

// Person is a person mention found in capture text.
type Person struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"` // 0-100
	Span       string `json:"span"`       // supporting text
}

// Place is a location mention found in capture text.
type Place struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"` // 0-100
	Span       string `json:"span"`
}

// Date is a resolved temporal expression from capture text.
type Date struct {
	Resolved   time.Time `json:"resolved"`
	Text       string    `json:"text"` // originating substring
	Timezone   string    `json:"timezone"`
	IsRelative bool      `json:"is_relative"`
	Confidence int       `json:"confidence"` // 0-100
}

// Entities is the full extraction result for one capture. Slices are always
// non-nil; produced once per capture and never mutated afterward.
type Entities struct {
	People []Person `json:"people"`
	Places []Place  `json:"places"`
	Dates  []Date   `json:"dates"`
}

// HasPeople reports whether any person was extracted.
func (e Entities) HasPeople() bool { return len(e.People) > 0 }

// HasPlaces reports whether any place was extracted.
func (e Entities) HasPlaces() bool { return len(e.Places) > 0 }

// HasDates reports whether any date was extracted.
func (e Entities) HasDates() bool { return len(e.Dates) > 0 }

// Config holds extractor settings.
type Config struct {
	// Timezone used to resolve relative dates, e.g. "Europe/Berlin".
	// Empty means the system local zone.
	Timezone string `koanf:"timezone"`
	// MaxTitleLen bounds generated titles before the ellipsis marker.
	MaxTitleLen int `koanf:"max_title_len"`
}

// DefaultConfig returns a default extraction configuration.
func DefaultConfig() Config {
	return Config{
		Timezone:    "",
		MaxTitleLen: 60,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	if c.MaxTitleLen < 10 {
		return fmt.Errorf("max_title_len must be at least 10, got %d", c.MaxTitleLen)
	}
	return nil
}
