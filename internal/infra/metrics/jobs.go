package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cleanupDeletedTotal, cleanupRunsTotal) }

var (
	cleanupDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_deleted_total",
			Help: "Rows removed by the cleanup sweeper, labeled by kind.",
		},
		[]string{"kind"}, // 'session_link', 'payment'
	)

	cleanupRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_runs_total",
			Help: "Cleanup sweeper runs by result.",
		},
		[]string{"result"}, // 'ok', 'error'
	)
)

func AddCleanupDeleted(kind string, n int64) {
	if n > 0 {
		cleanupDeletedTotal.WithLabelValues(norm(kind)).Add(float64(n))
	}
}

func IncCleanupRun(result string) {
	cleanupRunsTotal.WithLabelValues(norm(result)).Inc()
}
