// Package pipeline wires the capture flow together: correction check,
// extraction, pattern application, optional LLM refinement, scoring,
// routing, and the write-or-enqueue decision. Every external-call failure
// is converted to the transient/terminal taxonomy at this boundary; the
// transport layers never see raw network errors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intaked/internal/auditlog"
	"github.com/fyrsmithlabs/intaked/internal/capture"
	"github.com/fyrsmithlabs/intaked/internal/extraction"
	"github.com/fyrsmithlabs/intaked/internal/logging"
	"github.com/fyrsmithlabs/intaked/internal/patterns"
	"github.com/fyrsmithlabs/intaked/internal/queue"
	"github.com/fyrsmithlabs/intaked/internal/routing"
	"github.com/fyrsmithlabs/intaked/internal/scoring"
	"github.com/fyrsmithlabs/intaked/internal/store"
)

// Outcome labels for results and metrics.
const (
	OutcomeCreated      = "created"
	OutcomeReview       = "review"
	OutcomeQueued       = "queued"
	OutcomeDeduplicated = "deduplicated"
	OutcomeCorrection   = "correction"
	OutcomeRejected     = "rejected"
)

// Result is what one processed capture produced.
type Result struct {
	RequestID    string                     `json:"request_id"`
	Key          string                     `json:"key"`
	Outcome      string                     `json:"outcome"`
	Decision     routing.Decision           `json:"decision"`
	Breakdown    scoring.Breakdown          `json:"breakdown"`
	RecordID     string                     `json:"record_id,omitempty"`
	SecondaryIDs []string                   `json:"secondary_ids,omitempty"`
	Correction   *patterns.CorrectionResult `json:"correction,omitempty"`
	Reply        string                     `json:"reply,omitempty"`
}

// Pipeline processes captures end to end. One Process call runs strictly
// sequentially for its capture; independent captures may run concurrently.
type Pipeline struct {
	extractor   *extraction.Extractor
	provider    extraction.IntentProvider
	transcriber capture.Transcriber
	applicator  *patterns.Applicator
	learner     *patterns.Learner
	scorer      *scoring.Scorer
	router      *routing.Router
	records     store.RecordStore
	queue       *queue.Queue
	audit       *auditlog.Log
	logger      *zap.Logger
}

// Deps carries the pipeline's collaborators. Provider and Transcriber are
// optional; everything else is required.
type Deps struct {
	Extractor   *extraction.Extractor
	Provider    extraction.IntentProvider
	Transcriber capture.Transcriber
	Applicator  *patterns.Applicator
	Learner     *patterns.Learner
	Scorer      *scoring.Scorer
	Router      *routing.Router
	Records     store.RecordStore
	Queue       *queue.Queue
	Audit       *auditlog.Log
	Logger      *zap.Logger
}

// New creates a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Scorer == nil:
		return nil, fmt.Errorf("scorer is required")
	case deps.Router == nil:
		return nil, fmt.Errorf("router is required")
	case deps.Records == nil:
		return nil, fmt.Errorf("record store is required")
	case deps.Queue == nil:
		return nil, fmt.Errorf("queue is required")
	case deps.Audit == nil:
		return nil, fmt.Errorf("audit log is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		extractor:   deps.Extractor,
		provider:    deps.Provider,
		transcriber: deps.Transcriber,
		applicator:  deps.Applicator,
		learner:     deps.Learner,
		scorer:      deps.Scorer,
		router:      deps.Router,
		records:     deps.Records,
		queue:       deps.Queue,
		audit:       deps.Audit,
		logger:      logger,
	}, nil
}

// Process runs one capture through the full flow.
func (p *Pipeline) Process(ctx context.Context, c capture.Capture) (Result, error) {
	if err := c.Validate(); err != nil {
		CapturesTotal.WithLabelValues(OutcomeRejected).Inc()
		return Result{}, &store.ValidationError{Code: "invalid_capture", Message: err.Error()}
	}
	key := c.Key()
	log := p.logger.With(zap.String("key", key), zap.String("channel_id", c.ChannelID))

	// Corrections route to the learner instead of the capture flow, but
	// only when there is a recent automatic action to correct.
	if p.learner != nil && patterns.IsCorrection(c.Text) {
		if res, handled, err := p.handleCorrection(ctx, c); err != nil {
			return Result{}, err
		} else if handled {
			return res, nil
		}
	}

	// Same message seen before: report the original record, change nothing.
	if existing, found, err := p.records.FindByKey(ctx, key); err == nil && found {
		CapturesTotal.WithLabelValues(OutcomeDeduplicated).Inc()
		return Result{
			Key:      key,
			Outcome:  OutcomeDeduplicated,
			RecordID: existing.ID,
			Reply:    "Already captured.",
		}, nil
	}

	intent, title, ents := p.interpret(ctx, c.Text)
	breakdown := p.scorer.Score(c.Text, ents, intent)
	ConfidenceScore.Observe(float64(breakdown.Total))
	decision := p.router.Route(intent, breakdown, ents)

	log.Info("capture routed",
		zap.String("intent", string(intent)),
		zap.Int("confidence", breakdown.Total),
		zap.String("target", decision.Target),
		zap.String("action", string(decision.Action)))

	res := Result{
		Key:       key,
		Decision:  decision,
		Breakdown: breakdown,
	}
	interpretation := interpretationFields(intent, title, ents, decision)

	rec := store.Record{
		Collection:     decision.Target,
		Title:          title,
		Fields:         recordFields(c, intent, ents, decision),
		IdempotencyKey: key,
	}

	created, queued, err := p.createOrEnqueue(ctx, rec, queue.Action{
		IdempotencyKey: key,
		Collection:     decision.Target,
		Title:          title,
		Fields:         rec.Fields,
	})
	if err != nil {
		CapturesTotal.WithLabelValues(OutcomeRejected).Inc()
		p.auditError(ctx, c, key, interpretation, breakdown.Total, err)
		return Result{}, err
	}
	if queued {
		res.Outcome = OutcomeQueued
		res.Reply = "Captured; saving is delayed until the store is reachable."
		CapturesTotal.WithLabelValues(OutcomeQueued).Inc()
		p.auditQueued(ctx, c, key, interpretation, breakdown.Total)
		p.refreshPendingGauge(ctx)
		return res, nil
	}

	res.RecordID = created.ID
	res.SecondaryIDs = p.linkSecondaries(ctx, c, ents, decision)

	entry, err := p.audit.Append(ctx, auditlog.Record{
		IdempotencyKey: key,
		ActionType:     auditlog.ActionCreate,
		InputText:      c.Text,
		Interpretation: interpretation,
		ActionTaken:    fmt.Sprintf("created %s record", decision.Target),
		Confidence:     breakdown.Total,
		AffectedIDs:    append([]string{created.ID}, res.SecondaryIDs...),
		ExternalAPI:    "recordstore",
		ExternalID:     created.ID,
	})
	if err != nil {
		log.Error("failed to append audit entry", zap.Error(err))
	} else {
		res.RequestID = entry.RequestID
	}

	switch decision.Action {
	case routing.ActionFlagForReview:
		res.Outcome = OutcomeReview
		res.Reply = fmt.Sprintf("Not sure what to do with that (confidence %d). Added to review.", breakdown.Total)
		CapturesTotal.WithLabelValues(OutcomeReview).Inc()
	case routing.ActionLink:
		res.Outcome = OutcomeCreated
		res.Reply = fmt.Sprintf("Linked %q in %s.", title, decision.Target)
		CapturesTotal.WithLabelValues(OutcomeCreated).Inc()
	default:
		res.Outcome = OutcomeCreated
		res.Reply = fmt.Sprintf("Added %q to %s.", title, decision.Target)
		CapturesTotal.WithLabelValues(OutcomeCreated).Inc()
	}
	return res, nil
}

// ProcessVoice transcribes audio and runs the text through Process under the
// voice-path idempotency key.
func (p *Pipeline) ProcessVoice(ctx context.Context, channelID, messageID string, audio []byte) (Result, error) {
	if p.transcriber == nil {
		return Result{}, &store.ValidationError{Code: "voice_unsupported", Message: "no transcriber configured"}
	}
	tr, err := p.transcriber.Transcribe(ctx, audio)
	if err != nil {
		CapturesTotal.WithLabelValues(OutcomeRejected).Inc()
		p.auditError(ctx, capture.Capture{ChannelID: channelID, MessageID: messageID, Source: capture.SourceVoice},
			capture.IdempotencyKey(channelID, messageID, "voice"), nil, 0,
			fmt.Errorf("%w: %v", capture.ErrTranscription, err))
		return Result{}, fmt.Errorf("%w: %v", capture.ErrTranscription, err)
	}
	return p.Process(ctx, capture.Capture{
		ChannelID:               channelID,
		MessageID:               messageID,
		Text:                    tr.Text,
		Source:                  capture.SourceVoice,
		ReceivedAt:              time.Now().UTC(),
		TranscriptionConfidence: &tr.Confidence,
	})
}

// CreateTask satisfies the debrief flow's task creation. The returned id is
// empty when the write had to be queued.
func (p *Pipeline) CreateTask(ctx context.Context, title, idempotencyKey string) (string, error) {
	if existing, found, err := p.records.FindByKey(ctx, idempotencyKey); err == nil && found {
		return existing.ID, nil
	}
	rec := store.Record{
		Collection:     routing.CollectionTasks,
		Title:          title,
		Fields:         map[string]any{"intent": string(extraction.IntentTask), "source": "debrief"},
		IdempotencyKey: idempotencyKey,
	}
	created, queued, err := p.createOrEnqueue(ctx, rec, queue.Action{
		IdempotencyKey: idempotencyKey,
		Collection:     rec.Collection,
		Title:          title,
		Fields:         rec.Fields,
	})
	if err != nil {
		return "", err
	}
	if queued {
		p.refreshPendingGauge(ctx)
		return "", nil
	}
	if _, err := p.audit.Append(ctx, auditlog.Record{
		IdempotencyKey: idempotencyKey,
		ActionType:     auditlog.ActionCreate,
		InputText:      title,
		ActionTaken:    "created tasks record from debrief",
		AffectedIDs:    []string{created.ID},
		ExternalAPI:    "recordstore",
		ExternalID:     created.ID,
	}); err != nil {
		p.logger.Error("failed to append audit entry", zap.Error(err))
	}
	return created.ID, nil
}

// Sync drains the offline queue and updates the queue metrics.
func (p *Pipeline) Sync(ctx context.Context) (queue.Result, error) {
	res, err := p.queue.ProcessPending(ctx)
	switch {
	case errors.Is(err, queue.ErrDrainInProgress):
		QueueDrainTotal.WithLabelValues("busy").Inc()
		return queue.Result{}, err
	case err != nil:
		QueueDrainTotal.WithLabelValues("error").Inc()
		return queue.Result{}, err
	case res.AllSuccessful():
		QueueDrainTotal.WithLabelValues("clean").Inc()
	default:
		QueueDrainTotal.WithLabelValues("partial").Inc()
	}
	p.refreshPendingGauge(ctx)
	return res, nil
}

// PendingCount reports the queue depth.
func (p *Pipeline) PendingCount(ctx context.Context) (int, error) {
	return p.queue.PendingCount(ctx)
}

// FailedActions lists queued writes parked after terminal failures or
// exhausted retries, for sync reporting.
func (p *Pipeline) FailedActions(ctx context.Context) ([]queue.Action, error) {
	return p.queue.Failed(ctx)
}

func (p *Pipeline) handleCorrection(ctx context.Context, c capture.Capture) (Result, bool, error) {
	prior, found, err := p.audit.LastCreateFor(ctx, c.ChannelID)
	if err != nil {
		return Result{}, false, fmt.Errorf("load last action: %w", err)
	}
	if !found {
		return Result{}, false, nil // nothing to correct; treat as a capture
	}
	correction, err := p.learner.ProcessCorrection(ctx, c.Text, prior)
	if err != nil {
		return Result{}, false, fmt.Errorf("process correction: %w", err)
	}
	CapturesTotal.WithLabelValues(OutcomeCorrection).Inc()
	reply := "Noted the correction."
	if correction.Field != "" {
		reply = fmt.Sprintf("Fixed: %s is now %q.", correction.Field, correction.Value)
	}
	return Result{
		RequestID:  prior.RequestID,
		Key:        c.Key(),
		Outcome:    OutcomeCorrection,
		Correction: &correction,
		Reply:      reply,
	}, true, nil
}

// interpret runs extraction and the optional refinement steps.
func (p *Pipeline) interpret(ctx context.Context, text string) (extraction.Intent, string, extraction.Entities) {
	ents := p.extractor.Extract(text)
	intent := p.extractor.Classify(text)
	title := p.extractor.Title(text)

	if p.provider != nil && p.provider.Available() {
		if guess, err := p.provider.Guess(ctx, text); err != nil {
			p.logger.Warn("intent provider failed, using heuristics", zap.Error(err))
		} else {
			intent = guess.Intent
			if guess.Title != "" {
				title = guess.Title
			}
		}
	}

	if p.applicator != nil {
		applied := p.applicator.Apply(ctx, text, intent, title)
		if applied.Changed {
			p.logger.Info("pattern applied", zap.String("pattern_id", applied.PatternID))
		}
		intent, title = applied.Intent, applied.Title
	}
	return intent, title, ents
}

// createOrEnqueue attempts the remote write, deferring to the offline queue
// on transient failure. Terminal failures come back as errors. The enqueue
// runs detached from the capture's context: when the remote write failed
// because that context expired, the local insert must still land or the
// capture is lost.
func (p *Pipeline) createOrEnqueue(ctx context.Context, rec store.Record, action queue.Action) (store.Record, bool, error) {
	created, err := p.records.Create(ctx, rec)
	if err == nil {
		return created, false, nil
	}
	if !store.IsTransient(err) {
		return store.Record{}, false, err
	}
	p.logger.With(logging.ContextFields(ctx)...).Warn("store unavailable, enqueueing capture",
		zap.String("key", action.IdempotencyKey), zap.Error(err))
	if qErr := p.queue.Enqueue(context.WithoutCancel(ctx), action); qErr != nil {
		return store.Record{}, false, fmt.Errorf("enqueue after transient failure: %w", qErr)
	}
	return store.Record{}, true, nil
}

// linkSecondaries creates related entries for secondary targets. Failures
// are logged, not fatal; the primary record already exists.
func (p *Pipeline) linkSecondaries(ctx context.Context, c capture.Capture, ents extraction.Entities, decision routing.Decision) []string {
	var ids []string
	for _, target := range decision.Secondary {
		var names []string
		switch target {
		case routing.CollectionPeople:
			for _, person := range ents.People {
				names = append(names, person.Name)
			}
		case routing.CollectionPlaces:
			for _, place := range ents.Places {
				names = append(names, place.Name)
			}
		}
		for _, name := range names {
			key := capture.IdempotencyKey(c.ChannelID, c.MessageID, target, name)
			if _, found, err := p.records.FindByKey(ctx, key); err != nil || found {
				continue
			}
			created, err := p.records.Create(ctx, store.Record{
				Collection:     target,
				Title:          name,
				Fields:         map[string]any{"linked_from": c.Key()},
				IdempotencyKey: key,
			})
			if err != nil {
				p.logger.Warn("failed to link secondary record",
					zap.String("target", target), zap.String("name", name), zap.Error(err))
				continue
			}
			ids = append(ids, created.ID)
		}
	}
	return ids
}

// auditQueued and auditError record failure outcomes. Both write to the
// local log detached from the request context; an audit entry for a timed-out
// capture must not itself be killed by the same timeout.
func (p *Pipeline) auditQueued(ctx context.Context, c capture.Capture, key string, interpretation map[string]any, confidence int) {
	if _, err := p.audit.Append(context.WithoutCancel(ctx), auditlog.Record{
		IdempotencyKey: key,
		ActionType:     auditlog.ActionCapture,
		InputText:      c.Text,
		Interpretation: interpretation,
		ActionTaken:    "store unreachable, enqueued for later delivery",
		Confidence:     confidence,
	}); err != nil {
		p.logger.Error("failed to append audit entry", zap.Error(err))
	}
}

func (p *Pipeline) auditError(ctx context.Context, c capture.Capture, key string, interpretation map[string]any, confidence int, cause error) {
	if _, err := p.audit.Append(context.WithoutCancel(ctx), auditlog.Record{
		IdempotencyKey: key,
		ActionType:     auditlog.ActionError,
		InputText:      c.Text,
		Interpretation: interpretation,
		ActionTaken:    "capture rejected",
		Confidence:     confidence,
		ErrorCode:      store.ErrorCode(cause),
		ErrorMessage:   cause.Error(),
	}); err != nil {
		p.logger.Error("failed to append audit entry", zap.Error(err))
	}
}

func (p *Pipeline) refreshPendingGauge(ctx context.Context) {
	if n, err := p.queue.PendingCount(context.WithoutCancel(ctx)); err == nil {
		QueuePending.Set(float64(n))
	}
}

func interpretationFields(intent extraction.Intent, title string, ents extraction.Entities, decision routing.Decision) map[string]any {
	return map[string]any{
		"intent":    string(intent),
		"title":     title,
		"people":    len(ents.People),
		"places":    len(ents.Places),
		"dates":     len(ents.Dates),
		"target":    decision.Target,
		"action":    string(decision.Action),
		"reason":    decision.Reason,
		"secondary": decision.Secondary,
	}
}

func recordFields(c capture.Capture, intent extraction.Intent, ents extraction.Entities, decision routing.Decision) map[string]any {
	fields := map[string]any{
		"intent": string(intent),
		"source": string(c.Source),
	}
	if len(ents.People) > 0 {
		var names []string
		for _, person := range ents.People {
			names = append(names, person.Name)
		}
		fields["people"] = names
	}
	if len(ents.Places) > 0 {
		var names []string
		for _, place := range ents.Places {
			names = append(names, place.Name)
		}
		fields["places"] = names
	}
	if len(ents.Dates) > 0 {
		fields["due"] = ents.Dates[0].Resolved.Format(time.RFC3339)
	}
	if decision.NeedsClarification {
		fields["needs_clarification"] = true
	}
	if c.TranscriptionConfidence != nil {
		fields["transcription_confidence"] = *c.TranscriptionConfidence
	}
	return fields
}
