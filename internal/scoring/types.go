// Package scoring turns capture text plus extracted entities into a 0-100
// confidence score with an auditable breakdown of named terms.
package scoring

import (
	"fmt"

	"github.com/fyrsmithlabs/intaked/internal/extraction"
)

// Term is one named additive or subtractive contribution to a score.
type Term struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Breakdown is the full scoring result for one capture. Total is always the
// clamped sum of the terms; the breakdown is immutable once produced.
type Breakdown struct {
	Intent extraction.Intent `json:"intent,omitempty"`
	Terms  []Term            `json:"terms"`
	Total  int               `json:"total"` // clamp(sum(terms), 0, 100)
}

// Sum returns the unclamped sum of all terms.
func (b Breakdown) Sum() int {
	sum := 0
	for _, t := range b.Terms {
		sum += t.Points
	}
	return sum
}

// Weights is the data-driven term table. Penalty values are positive and
// subtracted by the scorer.
type Weights struct {
	Base             int `koanf:"base"`
	ActionVerb       int `koanf:"action_verb"`
	EntityBonus      int `koanf:"entity_bonus"`
	EntityBonusCap   int `koanf:"entity_bonus_cap"`
	DateBonus        int `koanf:"date_bonus"`
	LengthFull       int `koanf:"length_full"`
	LengthPair       int `koanf:"length_pair"`
	AmbiguityPenalty int `koanf:"ambiguity_penalty"`
	QuestionPenalty  int `koanf:"question_penalty"`
	VaguePenalty     int `koanf:"vague_penalty"`
}

// Config holds scorer settings.
type Config struct {
	// Threshold is the actionability cutoff: total >= threshold acts
	// automatically, below goes to review.
	Threshold int     `koanf:"threshold"`
	Weights   Weights `koanf:"weights"`
}

// DefaultConfig returns the default term table and threshold.
func DefaultConfig() Config {
	return Config{
		Threshold: 80,
		Weights: Weights{
			Base:             30,
			ActionVerb:       25,
			EntityBonus:      10,
			EntityBonusCap:   20,
			DateBonus:        15,
			LengthFull:       10,
			LengthPair:       5,
			AmbiguityPenalty: 40,
			QuestionPenalty:  15,
			VaguePenalty:     20,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("threshold must be 0-100, got %d", c.Threshold)
	}
	if c.Weights.EntityBonusCap < c.Weights.EntityBonus {
		return fmt.Errorf("entity_bonus_cap must be >= entity_bonus")
	}
	return nil
}
