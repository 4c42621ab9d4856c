package persistence

import "github.com/prometheus/client_golang/prometheus"

const (
	resultCommitted            = "committed"
	resultAborted              = "aborted"
	resultRejectedPrecondition = "rejected_precondition"
)

var (
	transactionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydoc",
			Subsystem: "persistence",
			Name:      "transactions_total",
			Help:      "Counter of finished transactions by mode and result.",
		}, []string{"mode", "result"})

	transactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tinydoc",
			Subsystem: "persistence",
			Name:      "transaction_duration_seconds",
			Help:      "Bucketed histogram of transaction run time, from begin to commit or abort.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
		}, []string{"mode"})

	commitListenerCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinydoc",
			Subsystem: "persistence",
			Name:      "commit_listeners_total",
			Help:      "Counter of commit listeners invoked.",
		})
)

func init() {
	prometheus.MustRegister(transactionCounter)
	prometheus.MustRegister(transactionDuration)
	prometheus.MustRegister(commitListenerCounter)
}
