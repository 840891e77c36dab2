package metrics

import (
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const OutcomeOK = "ok"

// TransitionMetrics records every state-machine operation by outcome.
type TransitionMetrics struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

// NewTransitionMetrics registers the transition metrics on the provided registerer.
func NewTransitionMetrics(reg prometheus.Registerer) *TransitionMetrics {
	if reg == nil {
		return &TransitionMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transition_duration_seconds",
		Help:    "Duration of lifecycle transitions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity", "action"})
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transition_total",
		Help: "Lifecycle transitions by outcome.",
	}, []string{"entity", "action", "outcome"})
	reg.MustRegister(duration, total)
	return &TransitionMetrics{duration: duration, total: total}
}

// Observe records one attempt. err nil counts as ok; typed errors use their
// code as the outcome label.
func (m *TransitionMetrics) Observe(entity, action string, started time.Time, err error) {
	if m == nil || m.total == nil {
		return
	}
	entity, action = normalizeLabel(entity), normalizeLabel(action)
	m.duration.WithLabelValues(entity, action).Observe(time.Since(started).Seconds())
	m.total.WithLabelValues(entity, action, Outcome(err)).Inc()
}

// Outcome maps an operation error onto a bounded label value.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return strings.ToLower(string(pkgerrors.CodeOf(err)))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
