package metrics

import "github.com/prometheus/client_golang/prometheus"

// RetentionMetrics описывает фоновую чистку устаревших данных.
type RetentionMetrics struct {
	runs    *prometheus.CounterVec
	deleted *prometheus.CounterVec
}

// NewRetentionMetrics регистрирует метрики в default registry.
func NewRetentionMetrics() *RetentionMetrics {
	return NewRetentionMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewRetentionMetricsWithRegisterer повторно использует уже зарегистрированные коллекторы.
func NewRetentionMetricsWithRegisterer(registerer prometheus.Registerer) *RetentionMetrics {
	return &RetentionMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_retention_runs_total",
			Help: "Retention sweeps grouped by task and result.",
		}, []string{"task", "result"}),
		deleted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_retention_deleted_total",
			Help: "Records removed by retention sweeps.",
		}, []string{"task"}),
	}
}

// RecordRun учитывает один проход задачи и число удалённых записей.
func (m *RetentionMetrics) RecordRun(task string, deleted int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(task, result).Inc()
	if deleted > 0 {
		m.deleted.WithLabelValues(task).Add(float64(deleted))
	}
}

// Deleted отдаёт счётчик удалённых записей задачи (для тестов).
func (m *RetentionMetrics) Deleted(task string) prometheus.Counter {
	return m.deleted.WithLabelValues(task)
}
