// Package metrics defines the Prometheus instrumentation shared by the
// ledger, miner and geometric verifier. Components tolerate a nil *Metrics
// so tests and library embedders can opt out.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	BlocksMined         prometheus.Counter
	MiningSeconds       prometheus.Histogram
	MiningAttempts      prometheus.Counter
	TxAdmitted          prometheus.Counter
	TxRejected          *prometheus.CounterVec
	PendingPoolSize     prometheus.Gauge
	Difficulty          prometheus.Gauge
	RemoteVerifications *prometheus.CounterVec
	FallbackTransitions prometheus.Counter
}

// New registers the full metric set against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BlocksMined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kontour",
			Name:      "blocks_mined_total",
			Help:      "Blocks successfully mined and appended to the chain.",
		}),
		MiningSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kontour",
			Name:      "mining_duration_seconds",
			Help:      "Wall time of successful nonce searches.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 12),
		}),
		MiningAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kontour",
			Name:      "mining_attempts_total",
			Help:      "Hashes computed while searching for nonces.",
		}),
		TxAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kontour",
			Name:      "transactions_admitted_total",
			Help:      "Transactions accepted into the pending pool.",
		}),
		TxRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kontour",
			Name:      "transactions_rejected_total",
			Help:      "Transactions rejected at admission, by reason.",
		}, []string{"reason"}),
		PendingPoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "kontour",
			Name:      "pending_pool_size",
			Help:      "Transactions currently awaiting inclusion in a block.",
		}),
		Difficulty: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "kontour",
			Name:      "difficulty_bits",
			Help:      "Current proof-of-work difficulty in leading zero bits.",
		}),
		RemoteVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kontour",
			Name:      "remote_verifications_total",
			Help:      "Remote geometric verification calls, by outcome.",
		}, []string{"outcome"}),
		FallbackTransitions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kontour",
			Name:      "verifier_fallback_transitions_total",
			Help:      "Times the geometric verifier degraded to its local check.",
		}),
	}
}
