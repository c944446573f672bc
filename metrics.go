package o3chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client's Prometheus collectors.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	messagesMerged  prometheus.Counter
	autoFetchTicks  *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg gets a private
// registry, so several clients can live in one process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "o3chat_requests_total",
				Help: "Requests sent to the chat server by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "o3chat_request_duration_seconds",
				Help:    "Round trip time of chat server requests",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		messagesMerged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "o3chat_messages_merged_total",
				Help: "Messages merged into the session buffer",
			},
		),
		autoFetchTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "o3chat_autofetch_ticks_total",
				Help: "Auto-fetch ticks by outcome (fetched, skipped, failed)",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) observeRequest(op, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.requestDuration.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) addMerged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messagesMerged.Add(float64(n))
}

// ObserveTick counts one auto-fetch tick.
func (m *Metrics) ObserveTick(outcome string) {
	if m == nil {
		return
	}
	m.autoFetchTicks.WithLabelValues(outcome).Inc()
}
