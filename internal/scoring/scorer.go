package scoring

import (
	"strings"
	"sync/atomic"

	"github.com/fyrsmithlabs/intaked/internal/extraction"
)

// Scorer computes confidence breakdowns with a configured term table. The
// threshold can be swapped at runtime (config hot-reload); scoring itself is
// deterministic arithmetic over the input.
type Scorer struct {
	weights   Weights
	threshold atomic.Int32
}

// actionVerbs mark a capture as directly actionable.
var actionVerbs = map[string]bool{
	"buy": true, "call": true, "email": true, "text": true, "send": true,
	"schedule": true, "book": true, "fix": true, "pay": true, "order": true,
	"clean": true, "finish": true, "submit": true, "pick": true, "remind": true,
	"write": true, "review": true, "cancel": true, "renew": true, "return": true,
	"check": true, "read": true, "plan": true, "prepare": true,
}

// fillerTokens are hedge/filler words that make a capture ambiguous.
var fillerTokens = map[string]bool{
	"uh": true, "uhh": true, "um": true, "umm": true, "hmm": true,
	"thing": true, "stuff": true, "whatever": true, "dunno": true,
	"something": true, "someday": true,
}

// vaguePronouns are penalized near the start of a capture when no supporting
// entities anchor the reference.
var vaguePronouns = map[string]bool{
	"it": true, "that": true, "this": true, "those": true, "these": true,
}

const minEntityConfidence = 80

// New creates a scorer from config.
func New(cfg Config) *Scorer {
	s := &Scorer{weights: cfg.Weights}
	s.threshold.Store(int32(cfg.Threshold))
	return s
}

// Threshold returns the current actionability threshold.
func (s *Scorer) Threshold() int {
	return int(s.threshold.Load())
}

// SetThreshold updates the actionability threshold at runtime.
func (s *Scorer) SetThreshold(threshold int) {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 100 {
		threshold = 100
	}
	s.threshold.Store(int32(threshold))
}

// Actionable reports whether a breakdown clears the current threshold.
// A total exactly at the threshold is actionable.
func (s *Scorer) Actionable(b Breakdown) bool {
	return b.Total >= s.Threshold()
}

// Score computes the confidence breakdown for one capture.
func (s *Scorer) Score(text string, ents extraction.Entities, intent extraction.Intent) Breakdown {
	w := s.weights
	b := Breakdown{Intent: intent, Terms: []Term{{Name: "base", Points: w.Base}}}

	tokens := tokenize(text)

	if hasActionVerb(tokens) {
		b.Terms = append(b.Terms, Term{Name: "action_verb", Points: w.ActionVerb})
	}

	if bonus := entityBonus(ents, w); bonus > 0 {
		b.Terms = append(b.Terms, Term{Name: "entity_bonus", Points: bonus})
	}

	if ents.HasDates() {
		b.Terms = append(b.Terms, Term{Name: "date_bonus", Points: w.DateBonus})
	}

	switch {
	case len(tokens) >= 3:
		b.Terms = append(b.Terms, Term{Name: "length_bonus", Points: w.LengthFull})
	case len(tokens) == 2:
		b.Terms = append(b.Terms, Term{Name: "length_bonus", Points: w.LengthPair})
	}

	if hasFiller(tokens) {
		b.Terms = append(b.Terms, Term{Name: "ambiguity_penalty", Points: -w.AmbiguityPenalty})
	}

	if strings.Contains(text, "?") {
		b.Terms = append(b.Terms, Term{Name: "question_penalty", Points: -w.QuestionPenalty})
	}

	if hasVagueLead(tokens) && !ents.HasPeople() && !ents.HasPlaces() {
		b.Terms = append(b.Terms, Term{Name: "vagueness_penalty", Points: -w.VaguePenalty})
	}

	b.Total = clamp(b.Sum(), 0, 100)
	return b
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.Trim(f, ".,!?;:\"'"))
	}
	return tokens
}

// hasActionVerb reports an exact recognized verb token anywhere in the text.
func hasActionVerb(tokens []string) bool {
	for _, tok := range tokens {
		if actionVerbs[tok] {
			return true
		}
	}
	return false
}

// entityBonus sums per-entity bonuses for entities whose own confidence is
// high enough, capped at EntityBonusCap.
func entityBonus(ents extraction.Entities, w Weights) int {
	bonus := 0
	for _, p := range ents.People {
		if p.Confidence >= minEntityConfidence {
			bonus += w.EntityBonus
		}
	}
	for _, p := range ents.Places {
		if p.Confidence >= minEntityConfidence {
			bonus += w.EntityBonus
		}
	}
	if bonus > w.EntityBonusCap {
		bonus = w.EntityBonusCap
	}
	return bonus
}

func hasFiller(tokens []string) bool {
	for _, tok := range tokens {
		if fillerTokens[tok] {
			return true
		}
	}
	return false
}

// hasVagueLead checks the first three tokens for vague pronouns.
func hasVagueLead(tokens []string) bool {
	limit := 3
	if len(tokens) < limit {
		limit = len(tokens)
	}
	for _, tok := range tokens[:limit] {
		if vaguePronouns[tok] {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
