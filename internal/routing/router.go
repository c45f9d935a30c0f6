// Package routing maps (intent type, confidence, entities) to a target
// collection and an action. Routing is a pure lookup plus branch; callers
// perform the actual writes.
package routing

import (
	"fmt"

	"github.com/fyrsmithlabs/intaked/internal/extraction"
	"github.com/fyrsmithlabs/intaked/internal/scoring"
)

// Action is what the pipeline should do with a capture.
type Action string

const (
	ActionCreate        Action = "create"
	ActionFlagForReview Action = "flag_for_review"
	ActionLink          Action = "link"
)

// Well-known collection names in the record store.
const (
	CollectionTasks    = "tasks"
	CollectionPeople   = "people"
	CollectionPlaces   = "places"
	CollectionProjects = "projects"
	CollectionReview   = "review"
)

// Decision is the routing outcome for one capture. It is derived
// deterministically from its inputs; no hidden state.
type Decision struct {
	Target             string   `json:"target"`
	Action             Action   `json:"action"`
	Confidence         int      `json:"confidence"`
	Reason             string   `json:"reason"`
	Secondary          []string `json:"secondary,omitempty"`
	NeedsClarification bool     `json:"needs_clarification,omitempty"`
}

// intentTargets maps intent types to primary collections. Idea and note
// captures stage through the review collection even at high confidence.
var intentTargets = map[extraction.Intent]string{
	extraction.IntentTask:    CollectionTasks,
	extraction.IntentIdea:    CollectionReview,
	extraction.IntentNote:    CollectionReview,
	extraction.IntentPerson:  CollectionPeople,
	extraction.IntentPlace:   CollectionPlaces,
	extraction.IntentProject: CollectionProjects,
}

// Router decides capture targets against the scorer's threshold.
type Router struct {
	scorer *scoring.Scorer
	review string
}

// New creates a router. reviewCollection receives low-confidence captures;
// empty means the default review collection.
func New(scorer *scoring.Scorer, reviewCollection string) *Router {
	if reviewCollection == "" {
		reviewCollection = CollectionReview
	}
	return &Router{scorer: scorer, review: reviewCollection}
}

// Route maps a scored capture to a decision.
func (r *Router) Route(intent extraction.Intent, b scoring.Breakdown, ents extraction.Entities) Decision {
	if !r.scorer.Actionable(b) {
		return Decision{
			Target:     r.review,
			Action:     ActionFlagForReview,
			Confidence: b.Total,
			Reason: fmt.Sprintf("confidence %d below threshold %d, needs review",
				b.Total, r.scorer.Threshold()),
			Secondary:          []string{},
			NeedsClarification: true,
		}
	}

	target, ok := intentTargets[intent]
	if !ok {
		target = CollectionTasks
	}

	// People and places are reference data: the capture links an entity
	// into the store rather than opening new work.
	action := ActionCreate
	if target == CollectionPeople || target == CollectionPlaces {
		action = ActionLink
	}

	secondary := []string{}
	if ents.HasPeople() && target != CollectionPeople {
		secondary = append(secondary, CollectionPeople)
	}
	if ents.HasPlaces() && target != CollectionPlaces {
		secondary = append(secondary, CollectionPlaces)
	}

	return Decision{
		Target:     target,
		Action:     action,
		Confidence: b.Total,
		Reason:     fmt.Sprintf("intent %q at confidence %d", intent, b.Total),
		Secondary:  secondary,
	}
}
