package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/intaked/internal/extraction"
	"github.com/fyrsmithlabs/intaked/internal/scoring"
)

func newTestRouter() *Router {
	return New(scoring.New(scoring.DefaultConfig()), "")
}

func breakdown(total int) scoring.Breakdown {
	return scoring.Breakdown{Total: total}
}

func TestRoute_BelowThresholdAlwaysReview(t *testing.T) {
	r := newTestRouter()
	intents := []extraction.Intent{
		extraction.IntentTask, extraction.IntentIdea, extraction.IntentNote,
		extraction.IntentPerson, extraction.IntentPlace, extraction.IntentProject,
	}
	for _, intent := range intents {
		t.Run(string(intent), func(t *testing.T) {
			d := r.Route(intent, breakdown(79), extraction.Entities{})
			assert.Equal(t, CollectionReview, d.Target)
			assert.Equal(t, ActionFlagForReview, d.Action)
			assert.Empty(t, d.Secondary)
			assert.True(t, d.NeedsClarification)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestRoute_AtThresholdCreates(t *testing.T) {
	r := newTestRouter()
	d := r.Route(extraction.IntentTask, breakdown(80), extraction.Entities{})
	assert.Equal(t, CollectionTasks, d.Target)
	assert.Equal(t, ActionCreate, d.Action)
	assert.False(t, d.NeedsClarification)
}

func TestRoute_TargetTable(t *testing.T) {
	r := newTestRouter()
	tests := []struct {
		intent     extraction.Intent
		want       string
		wantAction Action
	}{
		{extraction.IntentTask, CollectionTasks, ActionCreate},
		{extraction.IntentIdea, CollectionReview, ActionCreate},
		{extraction.IntentNote, CollectionReview, ActionCreate},
		{extraction.IntentPerson, CollectionPeople, ActionLink},
		{extraction.IntentPlace, CollectionPlaces, ActionLink},
		{extraction.IntentProject, CollectionProjects, ActionCreate},
		{extraction.Intent("mystery"), CollectionTasks, ActionCreate},
	}
	for _, tt := range tests {
		t.Run(string(tt.intent), func(t *testing.T) {
			d := r.Route(tt.intent, breakdown(90), extraction.Entities{})
			assert.Equal(t, tt.want, d.Target)
			assert.Equal(t, tt.wantAction, d.Action)
		})
	}
}

func TestRoute_SecondaryTargets(t *testing.T) {
	r := newTestRouter()

	ents := extraction.Entities{
		People: []extraction.Person{{Name: "Sarah", Confidence: 85}},
		Places: []extraction.Place{{Name: "Luigi's", Confidence: 80}},
	}
	d := r.Route(extraction.IntentTask, breakdown(90), ents)
	assert.ElementsMatch(t, []string{CollectionPeople, CollectionPlaces}, d.Secondary)
}

func TestRoute_PersonPrimaryNeverSecondaryPeople(t *testing.T) {
	r := newTestRouter()

	ents := extraction.Entities{
		People: []extraction.Person{{Name: "Anna", Confidence: 85}},
	}
	d := r.Route(extraction.IntentPerson, breakdown(95), ents)
	assert.Equal(t, CollectionPeople, d.Target)
	assert.Equal(t, ActionLink, d.Action)
	assert.NotContains(t, d.Secondary, CollectionPeople)
}

func TestRoute_CustomReviewCollection(t *testing.T) {
	r := New(scoring.New(scoring.DefaultConfig()), "inbox")
	d := r.Route(extraction.IntentTask, breakdown(10), extraction.Entities{})
	assert.Equal(t, "inbox", d.Target)
}
