package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturesTotal counts processed captures by outcome.
	// Labels: outcome (created, review, queued, deduplicated, correction, rejected)
	CapturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intaked",
			Subsystem: "pipeline",
			Name:      "captures_total",
			Help:      "Total number of processed captures by outcome",
		},
		[]string{"outcome"},
	)

	// ConfidenceScore tracks the distribution of confidence scores.
	ConfidenceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "intaked",
			Subsystem: "pipeline",
			Name:      "confidence_score",
			Help:      "Distribution of capture confidence scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	// QueuePending reports the number of actions awaiting delivery.
	QueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "intaked",
			Subsystem: "queue",
			Name:      "pending",
			Help:      "Number of queued actions awaiting delivery",
		},
	)

	// QueueDrainTotal counts drain runs by result.
	// Labels: result (clean, partial, busy, error)
	QueueDrainTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intaked",
			Subsystem: "queue",
			Name:      "drain_total",
			Help:      "Total number of queue drain runs by result",
		},
		[]string{"result"},
	)

	// UndoTotal counts undo attempts by result.
	// Labels: result (restored, expired, nothing)
	UndoTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intaked",
			Subsystem: "undo",
			Name:      "total",
			Help:      "Total number of undo attempts by result",
		},
		[]string{"result"},
	)
)
