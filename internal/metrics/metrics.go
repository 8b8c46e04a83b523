package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Waitlist operations by outcome ("ok" or an error code)
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_operations_total",
			Help: "Total number of waitlist operations by outcome",
		},
		[]string{"op", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waitlist_operation_duration_seconds",
			Help:    "Waitlist operation duration in seconds, including the store transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"op"},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_transitions_total",
			Help: "Total number of entry status transitions",
		},
		[]string{"from", "to"},
	)

	// Draws
	drawsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_draws_total",
			Help: "Total number of lottery draws",
		},
		[]string{"kind"},
	)

	drawSelected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lottery_draw_selected",
			Help:    "Number of entrants selected per draw",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"kind"},
	)

	// Outbox
	outboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_outbox_published_total",
			Help: "Outbox messages published to RabbitMQ",
		},
		[]string{"routing_key"},
	)

	outboxFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_outbox_failed_total",
			Help: "Outbox publish failures",
		},
		[]string{"routing_key", "dead"},
	)

	consumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_snapshots_consumed_total",
			Help: "Event snapshot messages consumed",
		},
		[]string{"routing_key", "result"},
	)
)

func RecordOperation(op, result string, d time.Duration) {
	operationsTotal.WithLabelValues(op, result).Inc()
	operationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func RecordTransition(from, to string) {
	transitionsTotal.WithLabelValues(from, to).Inc()
}

func RecordDraw(kind string, selected int) {
	drawsTotal.WithLabelValues(kind).Inc()
	drawSelected.WithLabelValues(kind).Observe(float64(selected))
}

func RecordOutboxPublished(routingKey string) {
	outboxPublishedTotal.WithLabelValues(routingKey).Inc()
}

func RecordOutboxFailed(routingKey string, dead bool) {
	d := "false"
	if dead {
		d = "true"
	}
	outboxFailedTotal.WithLabelValues(routingKey, d).Inc()
}

func RecordConsumed(routingKey, result string) {
	consumedTotal.WithLabelValues(routingKey, result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
