package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		relayRequests,
		relayDuration,
		watcherPollsTotal,
		watcherTerminalTotal,
		sessionLinksTotal,
	)
}

var (
	// result: ok|not_found|auth_expired|error
	relayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_relay_requests_total",
			Help: "Backend relay calls by operation and result.",
		},
		[]string{"operation", "result"},
	)

	relayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payflow_relay_duration_seconds",
			Help:    "Backend relay call latency in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	watcherPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_watcher_polls_total",
			Help: "Completion watcher status queries by result.",
		},
		[]string{"result"}, // 'pending', 'completed', 'error'
	)

	watcherTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_watcher_terminal_total",
			Help: "How completion watches ended.",
		},
		[]string{"kind"}, // 'completed', 'failed', 'stopped'
	)

	sessionLinksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_links_total",
			Help: "Session link lifecycle events.",
		},
		[]string{"event"}, // 'issued', 'synced', 'claimed', 'received'
	)
)

func ObserveRelay(operation, result string, d time.Duration) {
	relayRequests.WithLabelValues(norm(operation), norm(result)).Inc()
	relayDuration.WithLabelValues(norm(operation)).Observe(d.Seconds())
}

func IncWatcherPoll(result string) {
	watcherPollsTotal.WithLabelValues(norm(result)).Inc()
}

func IncWatcherTerminal(kind string) {
	watcherTerminalTotal.WithLabelValues(norm(kind)).Inc()
}

func IncSessionLink(event string) {
	sessionLinksTotal.WithLabelValues(norm(event)).Inc()
}
