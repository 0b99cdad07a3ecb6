package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		purchasesTotal,
		sdkCallbacksTotal,
		slotRejectionsTotal,
	)
}

var (
	// Server-side transitions, labeled by the status reached.
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment transitions by status (created/approved/completed/cancelled/error).",
		},
		[]string{"status"},
	)

	// Client-side attempt outcomes.
	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_purchases_total",
			Help: "Purchase attempts by outcome.",
		},
		[]string{"result"},
	)

	sdkCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_sdk_terminal_callbacks_total",
			Help: "Terminal wallet callbacks other than completion.",
		},
		[]string{"kind"}, // 'cancel', 'error'
	)

	slotRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_slot_rejections_total",
			Help: "Completions refused because the slider was full.",
		},
		[]string{"plan"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func IncPurchase(result string) {
	purchasesTotal.WithLabelValues(norm(result)).Inc()
}

func IncSDKCallback(kind string) {
	sdkCallbacksTotal.WithLabelValues(norm(kind)).Inc()
}

func IncSlotRejection(plan string) {
	slotRejectionsTotal.WithLabelValues(norm(plan)).Inc()
}
