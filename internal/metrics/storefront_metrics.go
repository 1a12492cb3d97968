package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Метки результата оформления заказа.
const (
	CheckoutResultSuccess  = "success"
	CheckoutResultRejected = "rejected"
	CheckoutResultFailed   = "failed"
	CheckoutResultReplayed = "replayed"
)

// StorefrontMetrics содержит метрики корзины и оформления заказов.
// Все методы безопасны для nil-получателя, чтобы компоненты могли работать без метрик.
type StorefrontMetrics struct {
	// Операции с корзиной
	cartOperations *prometheus.CounterVec
	cartClamped    *prometheus.CounterVec
	activeCarts    prometheus.Gauge

	// Оформление
	checkouts        *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec
	orderValue       prometheus.Histogram

	// Счётчики событий timeline/outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewStorefrontMetrics регистрирует метрики в глобальном реестре.
func NewStorefrontMetrics() *StorefrontMetrics {
	return NewStorefrontMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStorefrontMetricsWithRegisterer регистрирует метрики в указанном реестре.
func NewStorefrontMetricsWithRegisterer(registerer prometheus.Registerer) *StorefrontMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StorefrontMetrics{
		cartOperations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_operations_total",
			Help: "Total number of cart mutations by operation",
		}, []string{"operation"}),
		cartClamped: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_quantity_clamped_total",
			Help: "Cart mutations whose requested quantity was clamped to stock",
		}, []string{"operation"}),
		activeCarts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_carts",
			Help: "Number of cart sessions held in memory",
		}),
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Total number of checkout attempts by result",
		}, []string{"result"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		orderValue: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_value",
			Help:    "Total value of placed orders",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCartOperation увеличивает счётчик операций корзины; clamped отмечает
// случаи, когда запрошенное количество было урезано до остатка.
func (m *StorefrontMetrics) RecordCartOperation(operation string, clamped bool) {
	if m == nil {
		return
	}
	m.cartOperations.WithLabelValues(operation).Inc()
	if clamped {
		m.cartClamped.WithLabelValues(operation).Inc()
	}
}

// SetActiveCarts выставляет число корзин в памяти.
func (m *StorefrontMetrics) SetActiveCarts(n int) {
	if m == nil {
		return
	}
	m.activeCarts.Set(float64(n))
}

// RecordCheckout фиксирует результат и длительность оформления.
func (m *StorefrontMetrics) RecordCheckout(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага оформления.
func (m *StorefrontMetrics) RecordStepDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordOrderValue записывает сумму оплаченного заказа.
func (m *StorefrontMetrics) RecordOrderValue(value float64) {
	if m == nil {
		return
	}
	m.orderValue.Observe(value)
}

// RecordTimelineEvents учитывает записанные события timeline.
func (m *StorefrontMetrics) RecordTimelineEvents(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.timelineEvents.Add(float64(n))
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *StorefrontMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// CartOperations возвращает счётчик операций корзины для метки operation.
func (m *StorefrontMetrics) CartOperations(operation string) prometheus.Counter {
	return m.cartOperations.WithLabelValues(operation)
}

// CartClamped возвращает счётчик урезанных запросов для метки operation.
func (m *StorefrontMetrics) CartClamped(operation string) prometheus.Counter {
	return m.cartClamped.WithLabelValues(operation)
}
