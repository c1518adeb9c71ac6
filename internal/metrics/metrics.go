// Package metrics registers the process's Prometheus collectors, mounted
// at /admin/metrics by the router under admin auth (§4.1 ambient stack:
// the teacher exposes the same promhttp.Handler() guarded by
// middleware.AdminAuth() in main.go). Counters are registered once at
// package init via promauto so every caller shares the same collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smart_router_requests_total",
		Help: "Total ingress requests, labeled by dialect and status.",
	}, []string{"dialect", "status"})

	DispatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smart_router_dispatch_duration_seconds",
		Help:    "End-to-end dispatch latency from ingress to final response/summary.",
		Buckets: prometheus.DefBuckets,
	}, []string{"dialect"})

	ChannelAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smart_router_channel_attempts_total",
		Help: "Per-channel dispatch attempts, labeled by outcome.",
	}, []string{"channel_id", "outcome"})

	BlacklistEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smart_router_blacklist_entries",
		Help: "Current count of unexpired (channel, model) blacklist entries.",
	})

	ActiveSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smart_router_active_sessions",
		Help: "Current count of tracked API-key sessions (§3.7).",
	})
)

// ObserveDispatch records one completed request's latency and outcome.
func ObserveDispatch(dialect, status string, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(dialect, status).Inc()
	DispatchLatency.WithLabelValues(dialect).Observe(elapsed.Seconds())
}

// ObserveChannelAttempt records one per-channel attempt outcome within the
// failover loop (§4.10).
func ObserveChannelAttempt(channelID, outcome string) {
	ChannelAttemptsTotal.WithLabelValues(channelID, outcome).Inc()
}
