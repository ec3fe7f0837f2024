package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "contractscope_sessions_active",
		Help: "Number of contract subscription sessions currently running",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contractscope_sessions_total",
		Help: "Total subscription sessions grouped by network and termination reason",
	}, []string{"network", "reason"})

	sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contractscope_session_duration_seconds",
		Help:    "Duration of subscription sessions",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"network"})

	eventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contractscope_events_emitted_total",
		Help: "Events delivered to consumers grouped by kind",
	}, []string{"kind"})

	stateDecodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contractscope_state_decode_total",
		Help: "Contract state decode attempts grouped by outcome",
	}, []string{"status"})

	keepAlivePings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contractscope_keepalive_pings_total",
		Help: "Keep-alive ping frames sent to the indexer",
	})
)

// SessionStarted marks a session as running and returns a func recording its end.
func SessionStarted(network string) func(reason string) {
	if network == "" {
		network = "unknown"
	}
	start := time.Now()
	sessionsActive.Inc()
	return func(reason string) {
		if reason == "" {
			reason = "unknown"
		}
		sessionsActive.Dec()
		sessionsTotal.WithLabelValues(network, reason).Inc()
		sessionDuration.WithLabelValues(network).Observe(time.Since(start).Seconds())
	}
}

// ObserveEmitted counts an event delivered downstream.
func ObserveEmitted(kind string) {
	eventsEmitted.WithLabelValues(kind).Inc()
}

// ObserveStateDecode records a state decode outcome.
func ObserveStateDecode(success bool) {
	if success {
		stateDecodes.WithLabelValues("success").Inc()
	} else {
		stateDecodes.WithLabelValues("failed").Inc()
	}
}

// ObserveKeepAlive counts a keep-alive ping.
func ObserveKeepAlive() {
	keepAlivePings.Inc()
}
