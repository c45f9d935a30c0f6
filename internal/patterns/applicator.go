package patterns

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intaked/internal/extraction"
)

// Applicator pre-adjusts extraction results using learned patterns. It is an
// optional enrichment step between extraction and scoring; a store failure
// leaves the guess untouched rather than breaking the capture.
type Applicator struct {
	patterns  Store
	threshold int
	logger    *zap.Logger
}

// NewApplicator creates an Applicator. Only patterns at or above threshold
// confidence are applied.
func NewApplicator(patterns Store, threshold int, logger *zap.Logger) *Applicator {
	if threshold <= 0 {
		threshold = 70
	}
	return &Applicator{patterns: patterns, threshold: threshold, logger: logger}
}

// Applied reports which pattern adjustments took effect for a capture.
type Applied struct {
	Intent    extraction.Intent
	Title     string
	PatternID string
	Changed   bool
}

// Apply looks up the capture phrase in the pattern table and overrides the
// intent or title when a confident enough pattern matches.
func (a *Applicator) Apply(ctx context.Context, text string, intent extraction.Intent, title string) Applied {
	out := Applied{Intent: intent, Title: title}
	trigger := Normalize(text)
	if trigger == "" {
		return out
	}

	if p, found, err := a.patterns.Find(ctx, trigger, FieldIntent); err != nil {
		a.logger.Warn("pattern lookup failed", zap.Error(err))
		return out
	} else if found && p.Confidence >= a.threshold {
		out.Intent = extraction.Intent(p.Value)
		out.PatternID = p.ID
		out.Changed = true
		a.touch(ctx, p.ID)
	}

	if p, found, err := a.patterns.Find(ctx, trigger, FieldTitle); err != nil {
		a.logger.Warn("pattern lookup failed", zap.Error(err))
		return out
	} else if found && p.Confidence >= a.threshold {
		out.Title = p.Value
		out.PatternID = p.ID
		out.Changed = true
		a.touch(ctx, p.ID)
	}
	return out
}

func (a *Applicator) touch(ctx context.Context, id string) {
	if err := a.patterns.Touch(ctx, id); err != nil {
		a.logger.Warn("failed to stamp pattern use", zap.String("pattern_id", id), zap.Error(err))
	}
}
