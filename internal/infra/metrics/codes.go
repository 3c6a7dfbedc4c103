package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		codesIssuedTotal,
		codeCollisionsTotal,
		redemptionsTotal,
		codesExpiredTotal,
		codesExtendedTotal,
	)
}

var (
	codesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codes_issued_total",
			Help: "Redeemable codes issued per course.",
		},
		[]string{"course"},
	)

	codeCollisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "code_collisions_total",
			Help: "Token collisions detected on insert.",
		},
	)

	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_redemptions_total",
			Help: "Redemption attempts by result (ok/unknown/used/expired/mismatch/race/error).",
		},
		[]string{"result"},
	)

	codesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codes_expired_total",
			Help: "Codes flagged expired by the lazy sweep.",
		},
	)

	codesExtendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codes_extended_total",
			Help: "Manual expiry extensions.",
		},
	)
)

func IncCodeIssued(course string) {
	codesIssuedTotal.WithLabelValues(course).Inc()
}

func IncCodeCollision() { codeCollisionsTotal.Inc() }

func IncRedemption(result string) {
	redemptionsTotal.WithLabelValues(norm(result)).Inc()
}

func AddCodesExpired(n int64) {
	codesExpiredTotal.Add(float64(n))
}

func IncCodeExtended() { codesExtendedTotal.Inc() }
