package patterns

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intaked/internal/auditlog"
	"github.com/fyrsmithlabs/intaked/internal/store"
)

// Config tunes how the learner scores patterns.
type Config struct {
	// InitialConfidence is assigned to a pattern on first observation.
	InitialConfidence int `koanf:"initial_confidence"`
	// ConfirmStep is added when a correction reinforces a pattern.
	ConfirmStep int `koanf:"confirm_step"`
	// WrongStep is subtracted when a correction contradicts a pattern.
	WrongStep int `koanf:"wrong_step"`
}

// DefaultConfig returns the learner defaults.
func DefaultConfig() Config {
	return Config{InitialConfidence: 40, ConfirmStep: 15, WrongStep: 20}
}

// CorrectionResult describes what a processed correction changed.
type CorrectionResult struct {
	RequestID      string `json:"request_id"`
	RecordID       string `json:"record_id,omitempty"`
	Field          string `json:"field,omitempty"`
	Value          string `json:"value,omitempty"`
	PatternID      string `json:"pattern_id,omitempty"`
	PatternCreated bool   `json:"pattern_created"`
	Reinforced     bool   `json:"reinforced"`
}

// Learner turns detected corrections into record updates and patterns.
type Learner struct {
	patterns Store
	records  store.RecordStore
	audit    *auditlog.Log
	cfg      Config
	logger   *zap.Logger
}

// NewLearner creates a Learner.
func NewLearner(patterns Store, records store.RecordStore, audit *auditlog.Log, cfg Config, logger *zap.Logger) *Learner {
	if cfg.InitialConfidence <= 0 {
		cfg = DefaultConfig()
	}
	return &Learner{patterns: patterns, records: records, audit: audit, cfg: cfg, logger: logger}
}

// ProcessCorrection applies a correction to the action it refers to: the
// created record is updated, the audit entry gains the correction text, and
// the (original phrase -> corrected meaning) pair is fed into the pattern
// table. A correction with no parseable meaning still annotates the audit
// entry; it just teaches nothing.
func (l *Learner) ProcessCorrection(ctx context.Context, text string, prior auditlog.Record) (CorrectionResult, error) {
	res := CorrectionResult{RequestID: prior.RequestID}

	field, value, ok := parseCorrection(text)
	if ok {
		res.Field = field
		res.Value = value
		recordID, err := l.updateRecord(ctx, prior, field, value)
		if err != nil {
			return CorrectionResult{}, err
		}
		res.RecordID = recordID
	}

	if err := l.audit.MarkCorrected(ctx, prior.RequestID, text); err != nil {
		return CorrectionResult{}, fmt.Errorf("annotate audit entry: %w", err)
	}
	if !ok {
		l.logger.Info("correction had no parseable meaning", zap.String("request_id", prior.RequestID))
		return res, nil
	}

	trigger := Normalize(prior.InputText)
	if trigger == "" {
		return res, nil
	}

	existing, found, err := l.patterns.Find(ctx, trigger, field)
	if err != nil {
		return CorrectionResult{}, err
	}
	if !found {
		created, err := l.patterns.Save(ctx, Pattern{
			Trigger:    trigger,
			Field:      field,
			Value:      value,
			Confidence: l.cfg.InitialConfidence,
		})
		if err != nil {
			return CorrectionResult{}, err
		}
		res.PatternID = created.ID
		res.PatternCreated = true
		return res, nil
	}

	res.PatternID = existing.ID
	if existing.Value == value {
		res.Reinforced = true
		if err := l.patterns.Confirm(ctx, existing.ID, l.cfg.ConfirmStep); err != nil {
			return CorrectionResult{}, err
		}
	} else {
		if err := l.patterns.Contradict(ctx, existing.ID, l.cfg.WrongStep); err != nil {
			return CorrectionResult{}, err
		}
	}
	return res, nil
}

func (l *Learner) updateRecord(ctx context.Context, prior auditlog.Record, field, value string) (string, error) {
	if len(prior.AffectedIDs) == 0 {
		return "", nil
	}
	recordID := prior.AffectedIDs[0]

	rec, err := l.records.Get(ctx, recordID)
	if err != nil {
		return "", fmt.Errorf("load corrected record %s: %w", recordID, err)
	}
	switch field {
	case FieldTitle:
		rec.Title = value
	default:
		if rec.Fields == nil {
			rec.Fields = map[string]any{}
		}
		rec.Fields[field] = value
	}
	if err := l.records.Update(ctx, rec); err != nil {
		return "", fmt.Errorf("update corrected record %s: %w", recordID, err)
	}
	return recordID, nil
}

var intentWords = map[string]bool{
	"task": true, "idea": true, "note": true,
	"person": true, "place": true, "project": true,
}

var negatedIntentRe = regexp.MustCompile(`(?i)\bnot\s+(?:a|an)\s+(task|idea|note|person|place|project)\b`)
var intentWordRe = regexp.MustCompile(`(?i)\b(task|idea|note|person|place|project)\b`)
var saidRe = regexp.MustCompile(`(?i)\b(?:i said|i meant|should be|change (?:that|it) to)\s+(.+)$`)

// parseCorrection extracts the corrected meaning from correction text. An
// intent word that is not itself negated wins; otherwise a "I said X" style
// tail becomes a title correction.
func parseCorrection(text string) (field, value string, ok bool) {
	negated := map[string]bool{}
	for _, m := range negatedIntentRe.FindAllStringSubmatch(text, -1) {
		negated[strings.ToLower(m[1])] = true
	}
	for _, m := range intentWordRe.FindAllStringSubmatch(text, -1) {
		word := strings.ToLower(m[1])
		if intentWords[word] && !negated[word] {
			return FieldIntent, word, true
		}
	}

	if m := saidRe.FindStringSubmatch(text); m != nil {
		title := strings.TrimSpace(strings.Trim(m[1], `."'`))
		if title != "" {
			return FieldTitle, title, true
		}
	}
	return "", "", false
}
