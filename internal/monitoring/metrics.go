package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes recorded by consumers
const (
	OutcomeAck    = "ack"
	OutcomeNack   = "nack"
	OutcomeReject = "reject"
)

// Metrics collects the fund manager's Prometheus metrics.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	deliveriesTotal    *prometheus.CounterVec
	processDuration    *prometheus.HistogramVec
	publishesTotal     *prometheus.CounterVec
	publishErrorsTotal *prometheus.CounterVec
	undeliveredTotal   *prometheus.CounterVec
	queueDepthGauge    *prometheus.GaugeVec
	summaryFoldsTotal  *prometheus.CounterVec
	componentsRunning  prometheus.Gauge
}

// NewMetrics registers the metrics on reg. Pass prometheus.DefaultRegisterer
// in binaries and a fresh registry in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		deliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Total number of consumed deliveries by component and outcome",
			},
			[]string{"component", "outcome"},
		),
		processDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "process_duration_seconds",
				Help:      "Duration of request processing in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"component"},
		),
		publishesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publishes_total",
				Help:      "Total number of published messages by routing key",
			},
			[]string{"routing_key"},
		),
		publishErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_errors_total",
				Help:      "Total number of failed publishes by routing key",
			},
			[]string{"routing_key"},
		),
		undeliveredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "undelivered_total",
				Help:      "Total number of messages returned by the broker",
			},
			[]string{"routing_key"},
		),
		queueDepthGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Messages ready in a queue at the last probe",
			},
			[]string{"queue"},
		),
		summaryFoldsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summary_folds_total",
				Help:      "Total number of stocks folded into the portfolio summary by type",
			},
			[]string{"stock_type"},
		),
		componentsRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "components_running",
				Help:      "Number of listening components currently running",
			},
		),
	}
}

func (m *Metrics) RecordDelivery(component, outcome string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(component, outcome).Inc()
}

func (m *Metrics) RecordProcess(component string, duration time.Duration) {
	if m == nil {
		return
	}
	m.processDuration.WithLabelValues(component).Observe(duration.Seconds())
}

func (m *Metrics) RecordPublish(routingKey string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.publishErrorsTotal.WithLabelValues(routingKey).Inc()
		return
	}
	m.publishesTotal.WithLabelValues(routingKey).Inc()
}

func (m *Metrics) RecordUndelivered(routingKey string) {
	if m == nil {
		return
	}
	m.undeliveredTotal.WithLabelValues(routingKey).Inc()
}

func (m *Metrics) SetQueueDepth(queue string, messages int) {
	if m == nil {
		return
	}
	m.queueDepthGauge.WithLabelValues(queue).Set(float64(messages))
}

func (m *Metrics) RecordSummaryFold(stockType string) {
	if m == nil {
		return
	}
	m.summaryFoldsTotal.WithLabelValues(stockType).Inc()
}

func (m *Metrics) ComponentStarted() {
	if m == nil {
		return
	}
	m.componentsRunning.Inc()
}

func (m *Metrics) ComponentStopped() {
	if m == nil {
		return
	}
	m.componentsRunning.Dec()
}
