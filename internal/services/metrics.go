// internal/services/metrics.go
package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/javajoker/imi-ownership/internal/ledger"
)

var (
	// ledgerCommits counts mutating operations by outcome
	ledgerCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imi_ledger_operations_total",
		Help: "Total ledger operations by operation and result",
	}, []string{"operation", "result"})

	ledgerOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "imi_ledger_operation_duration_seconds",
		Help:    "Ledger operation duration in seconds, retries included",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"operation"})

	// ledgerRetries counts optimistic-concurrency retries
	ledgerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imi_ledger_retries_total",
		Help: "Total commit retries after a concurrent modification",
	}, []string{"operation"})

	ledgerConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imi_ledger_conflicts_total",
		Help: "Total operations that gave up after exhausting retries",
	}, []string{"operation"})

	ledgerViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imi_ledger_invariant_violations_total",
		Help: "Total invariant violations that rejected an operation",
	}, []string{"operation", "kind"})

	lineageAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imi_lineage_anomalies_total",
		Help: "Total lineage walks that stopped on the hop cap or a cycle",
	}, []string{"kind"})

	notificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imi_notification_failures_total",
		Help: "Total notifications that could not be recorded",
	})
)

func observeOperation(operation string, started time.Time, err error) {
	ledgerOperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())

	result := "ok"
	if err != nil {
		result = ledger.KindOf(err).String()
	}
	ledgerCommits.WithLabelValues(operation, result).Inc()

	var violations []ledger.Violation
	var invErr *ledger.InvariantViolationError
	var internalErr *ledger.InternalInvariantError
	switch {
	case errors.As(err, &invErr):
		violations = invErr.Violations
	case errors.As(err, &internalErr):
		violations = internalErr.Violations
	}
	for _, v := range violations {
		ledgerViolations.WithLabelValues(operation, string(v.Kind)).Inc()
	}
}

func observeLineage(l ledger.Lineage) {
	if l.Truncated {
		lineageAnomalies.WithLabelValues("truncated").Inc()
	}
	if l.CycleDetected {
		lineageAnomalies.WithLabelValues("cycle").Inc()
	}
}
