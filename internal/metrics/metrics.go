// Package metrics declares the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketrelay"

var (
	// TxTotal counts terminal write-call outcomes: success, failed, rejected,
	// timeout, error.
	TxTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_total",
			Help:      "Write calls by operation and terminal outcome",
		},
		[]string{"op", "outcome"},
	)

	TxConfirmSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tx_confirm_seconds",
			Help:      "Time from submission to observed finality",
			Buckets:   []float64{0.5, 1, 2, 4, 6, 8, 10, 15, 20, 30},
		},
		[]string{"op"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open realtime connections",
		},
	)

	WSRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_rejected_total",
			Help:      "Refused realtime connections and operations by reason",
		},
		[]string{"reason"},
	)

	WSDuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_duplicate_events_total",
			Help:      "odds_changed events dropped because another instance already delivered them",
		},
	)

	OddsEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "odds_events_total",
			Help:      "odds_changed events published",
		},
	)

	OddsFetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "odds_fetch_errors_total",
			Help:      "Per-market pool fetch failures during poll cycles",
		},
	)

	PollSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_skipped_total",
			Help:      "Poll ticks skipped because a cycle was still running",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
