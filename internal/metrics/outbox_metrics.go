package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics описывает доставку событий заказов из outbox.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	pending    prometheus.Gauge
	oldestAge  prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики в default registry.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer повторно использует уже зарегистрированные коллекторы.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		deliveries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_publish_attempts_total",
			Help: "Outbox publish attempts grouped by result.",
		}, []string{"result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Pending order events in the outbox.",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending order event.",
		}),
	}
}

// RecordDelivery учитывает исход одной попытки: sent, retry_error, failed, dlq_failed.
func (m *OutboxMetrics) RecordDelivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

// SetBacklog выставляет размер очереди и возраст самого старого события.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.oldestAge.Set(max(oldestAge, 0).Seconds())
}

// Deliveries отдаёт счётчик результата (для тестов).
func (m *OutboxMetrics) Deliveries(result string) prometheus.Counter {
	return m.deliveries.WithLabelValues(result)
}

// Pending отдаёт gauge очереди (для тестов).
func (m *OutboxMetrics) Pending() prometheus.Gauge {
	return m.pending
}
