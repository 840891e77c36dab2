package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	PublishPublished    = "published"
	PublishFailed       = "failed"
	PublishDeadLettered = "dead_lettered"
)

// OutboxMetrics counts relay results per topic.
type OutboxMetrics struct {
	publish *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	publish := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_total",
		Help: "Outbox relay attempts by topic and result.",
	}, []string{"topic", "event_type", "result"})
	reg.MustRegister(publish)
	return &OutboxMetrics{publish: publish}
}

func (m *OutboxMetrics) Inc(topic, eventType, result string) {
	if m == nil || m.publish == nil {
		return
	}
	m.publish.WithLabelValues(normalizeLabel(topic), normalizeLabel(eventType), result).Inc()
}
