package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		requestsTotal,
		proofsTotal,
		decisionsTotal,
		requestsPurgedTotal,
	)
}

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_requests_total",
			Help: "Payment request attempts by result (created/cooldown/entitled/invalid/error).",
		},
		[]string{"result"},
	)

	proofsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_proofs_total",
			Help: "Proof uploads by result.",
		},
		[]string{"result"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_decisions_total",
			Help: "Approver decisions by outcome and result.",
		},
		[]string{"outcome", "result"},
	)

	requestsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_requests_purged_total",
			Help: "Stale requests removed by the janitor.",
		},
	)
)

func IncRequest(result string) {
	requestsTotal.WithLabelValues(norm(result)).Inc()
}

func IncProof(result string) {
	proofsTotal.WithLabelValues(norm(result)).Inc()
}

func IncDecision(outcome, result string) {
	decisionsTotal.WithLabelValues(norm(outcome), norm(result)).Inc()
}

func AddRequestsPurged(n int64) {
	requestsPurgedTotal.Add(float64(n))
}
