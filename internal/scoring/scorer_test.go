package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/intaked/internal/extraction"
)

func newTestScorer() *Scorer {
	return New(DefaultConfig())
}

func entsWith(people, places int) extraction.Entities {
	ents := extraction.Entities{People: []extraction.Person{}, Places: []extraction.Place{}, Dates: []extraction.Date{}}
	for i := 0; i < people; i++ {
		ents.People = append(ents.People, extraction.Person{Name: "P", Confidence: 85})
	}
	for i := 0; i < places; i++ {
		ents.Places = append(ents.Places, extraction.Place{Name: "L", Confidence: 80})
	}
	return ents
}

func emptyEnts() extraction.Entities {
	return extraction.Entities{People: []extraction.Person{}, Places: []extraction.Place{}, Dates: []extraction.Date{}}
}

func TestScore_TotalIsClampedSum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Base = 60
	s := New(cfg)

	// High end: verb + entities + date + length pushes the raw sum over 100.
	ents := entsWith(2, 1)
	ents.Dates = append(ents.Dates, extraction.Date{Resolved: time.Now(), Confidence: 90})
	b := s.Score("call Sarah and book the flight with Marco tomorrow", ents, extraction.IntentTask)
	assert.Equal(t, 100, b.Total)
	assert.Greater(t, b.Sum(), 100)

	// Low end: filler plus vagueness drives the raw sum negative.
	b = newTestScorer().Score("uhh that thing whatever", emptyEnts(), extraction.IntentNote)
	assert.Equal(t, 0, b.Total)
	assert.Less(t, b.Sum(), 0)
}

func TestScore_ActionVerbBonus(t *testing.T) {
	s := newTestScorer()

	with := s.Score("buy milk today please", emptyEnts(), extraction.IntentTask)
	without := s.Score("milk today maybe please", emptyEnts(), extraction.IntentNote)
	assert.Equal(t, DefaultConfig().Weights.ActionVerb, with.Total-without.Total)
	assertTerm(t, with, "action_verb")
}

func TestScore_EntityBonusRequiresConfidentEntities(t *testing.T) {
	s := newTestScorer()

	low := emptyEnts()
	low.People = append(low.People, extraction.Person{Name: "X", Confidence: 60})
	b := s.Score("call someone sometime soon", low, extraction.IntentTask)
	assertNoTerm(t, b, "entity_bonus")

	// Cap holds: three confident entities only earn the cap.
	b = s.Score("call people everywhere always", entsWith(2, 1), extraction.IntentTask)
	for _, term := range b.Terms {
		if term.Name == "entity_bonus" {
			assert.Equal(t, DefaultConfig().Weights.EntityBonusCap, term.Points)
		}
	}
}

func TestScore_QuestionPenalty(t *testing.T) {
	s := newTestScorer()
	plain := s.Score("renew the car insurance", emptyEnts(), extraction.IntentTask)
	question := s.Score("renew the car insurance?", emptyEnts(), extraction.IntentTask)
	assert.Equal(t, DefaultConfig().Weights.QuestionPenalty, plain.Total-question.Total)
}

func TestScore_VaguePronounWaivedByEntities(t *testing.T) {
	s := newTestScorer()

	penalized := s.Score("that meeting needs moving", emptyEnts(), extraction.IntentNote)
	assertTerm(t, penalized, "vagueness_penalty")

	waived := s.Score("that meeting needs moving", entsWith(1, 0), extraction.IntentNote)
	assertNoTerm(t, waived, "vagueness_penalty")

	// Pronoun beyond the first three tokens is not vague-penalized.
	deep := s.Score("schedule a review of that", emptyEnts(), extraction.IntentTask)
	assertNoTerm(t, deep, "vagueness_penalty")
}

func TestScore_LengthBonus(t *testing.T) {
	s := newTestScorer()
	pair := s.Score("buy milk", emptyEnts(), extraction.IntentTask)
	full := s.Score("buy milk now", emptyEnts(), extraction.IntentTask)

	w := DefaultConfig().Weights
	assert.Equal(t, w.LengthFull-w.LengthPair, full.Total-pair.Total)
}

func TestActionable_ThresholdBoundary(t *testing.T) {
	s := newTestScorer()

	assert.True(t, s.Actionable(Breakdown{Total: 80}), "total equal to threshold is actionable")
	assert.False(t, s.Actionable(Breakdown{Total: 79}))
	assert.True(t, s.Actionable(Breakdown{Total: 100}))

	s.SetThreshold(50)
	assert.Equal(t, 50, s.Threshold())
	assert.True(t, s.Actionable(Breakdown{Total: 50}))
	assert.False(t, s.Actionable(Breakdown{Total: 49}))
}

func TestActionable_MonotonicInScore(t *testing.T) {
	s := newTestScorer()
	prev := false
	for total := 0; total <= 100; total++ {
		curr := s.Actionable(Breakdown{Total: total})
		if prev {
			assert.True(t, curr, "actionability must be monotonic non-decreasing in score")
		}
		prev = curr
	}
}

func TestSetThreshold_ClampsRange(t *testing.T) {
	s := newTestScorer()
	s.SetThreshold(-10)
	assert.Equal(t, 0, s.Threshold())
	s.SetThreshold(200)
	assert.Equal(t, 100, s.Threshold())
}

func assertTerm(t *testing.T, b Breakdown, name string) {
	t.Helper()
	for _, term := range b.Terms {
		if term.Name == name {
			return
		}
	}
	require.Failf(t, "missing term", "breakdown %+v has no term %q", b, name)
}

func assertNoTerm(t *testing.T, b Breakdown, name string) {
	t.Helper()
	for _, term := range b.Terms {
		require.NotEqual(t, name, term.Name)
	}
}
