package observability

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/punchamoorthee/coopledger/internal/domain"
)

// Operation labels.
const (
	OpPost        = "post"
	OpDoubleEntry = "double_entry"
	OpReversal    = "reversal"
)

// LedgerMetrics exposes Prometheus collectors for the posting engine. A nil *LedgerMetrics is a no-op.
type LedgerMetrics struct {
	postings        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	integrityChecks *prometheus.CounterVec
	integrityIssues *prometheus.CounterVec
}

var (
	defaultLedgerOnce    sync.Once
	defaultLedgerMetrics *LedgerMetrics
)

// NewLedgerMetrics registers the ledger collectors. A nil registerer means the default registry,
// registered only once per process.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		defaultLedgerOnce.Do(func() {
			defaultLedgerMetrics = buildLedgerMetrics(prometheus.DefaultRegisterer)
		})
		return defaultLedgerMetrics
	}
	return buildLedgerMetrics(registerer)
}

func buildLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_postings_total",
		Help: "Ledger units of work partitioned by operation and outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_posting_duration_seconds",
		Help:    "Time spent inside a ledger unit of work, lock waits included.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"operation"})
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_integrity_checks_total",
		Help: "Account balance chains rebuilt from the transaction log.",
	}, []string{"account_type"})
	issues := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_integrity_issues_total",
		Help: "Balance chain defects found while rebuilding accounts.",
	}, []string{"account_type"})
	registerer.MustRegister(postings, duration, checks, issues)
	return &LedgerMetrics{postings: postings, duration: duration, integrityChecks: checks, integrityIssues: issues}
}

// ObservePosting records one finished unit of work.
func (m *LedgerMetrics) ObservePosting(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(operation, Outcome(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveIntegrity records one rebuilt account and the issues found on it.
func (m *LedgerMetrics) ObserveIntegrity(kind domain.AccountKind, issues int) {
	if m == nil {
		return
	}
	m.integrityChecks.WithLabelValues(string(kind)).Inc()
	if issues > 0 {
		m.integrityIssues.WithLabelValues(string(kind)).Add(float64(issues))
	}
}

// Outcome buckets an error as committed, rejected (caller or business rule) or failed (storage).
func Outcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, domain.ErrPersistence), errors.Is(err, domain.ErrUnbalancedDoubleEntry):
		return "failed"
	default:
		return "rejected"
	}
}
