package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики создания заказов.
type OrderMetrics struct {
	// Счётчики исходов
	ordersCreated     prometheus.Counter
	ordersRejected    *prometheus.CounterVec
	ordersFailed      prometheus.Counter
	stockUpdateFailed prometheus.Counter

	// Гистограммы времени выполнения
	createDuration prometheus.Histogram
	stepDuration   *prometheus.HistogramVec

	linesPerOrder prometheus.Histogram
	outboxEvents  prometheus.Counter

	inFlight prometheus.Gauge
}

// NewOrderMetrics создаёт метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordering_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordering_orders_rejected_total",
			Help: "Total number of order requests rejected by validation, by reason",
		}, []string{"reason"}),
		ordersFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordering_orders_failed_total",
			Help: "Total number of order requests failed due to infrastructure errors",
		}),
		stockUpdateFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordering_stock_update_failed_total",
			Help: "Total number of orders persisted whose stock decrement failed",
		}),
		createDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ordering_create_duration_seconds",
			Help:    "Duration of order creation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ordering_step_duration_seconds",
			Help:    "Duration of individual order creation steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		linesPerOrder: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ordering_lines_per_order",
			Help:    "Number of lines in created orders",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordering_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ordering_in_flight",
			Help: "Number of order creations currently running",
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

// RecordStarted увеличивает количество выполняющихся созданий заказа.
func (m *OrderMetrics) RecordStarted() {
	m.inFlight.Inc()
}

// RecordFinished уменьшает gauge и записывает общую длительность.
func (m *OrderMetrics) RecordFinished(duration time.Duration) {
	m.inFlight.Dec()
	m.createDuration.Observe(duration.Seconds())
}

// RecordCreated фиксирует успешно созданный заказ.
func (m *OrderMetrics) RecordCreated(lines int) {
	m.ordersCreated.Inc()
	m.linesPerOrder.Observe(float64(lines))
}

// RecordRejected фиксирует отказ валидации с причиной.
func (m *OrderMetrics) RecordRejected(reason string) {
	m.ordersRejected.WithLabelValues(reason).Inc()
}

// RecordFailed фиксирует инфраструктурную ошибку.
func (m *OrderMetrics) RecordFailed() {
	m.ordersFailed.Inc()
}

// RecordStockUpdateFailed фиксирует заказ, сохранённый без списания остатков.
func (m *OrderMetrics) RecordStockUpdateFailed() {
	m.stockUpdateFailed.Inc()
}

// RecordStepDuration записывает время выполнения шага.
func (m *OrderMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
