// Package metrics holds the Prometheus collectors of the client. Every method
// is safe on a nil *Metrics, so components take one optionally.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stealthpool/client-go/internal/apierrors"
)

const namespace = "stealthpool"

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeOptimistic = "optimistic"
	OutcomeRejected   = "rejected"
	OutcomeTimeout    = "timeout"
	OutcomeCrashed    = "crashed"
)

// Metrics groups the collectors.
type Metrics struct {
	rpcRequests     *prometheus.CounterVec
	rpcLatency      *prometheus.HistogramVec
	lifecycleSteps  *prometheus.CounterVec
	scanCandidates  prometheus.Counter
	scanMatches     prometheus.Counter
	scanDuration    prometheus.Histogram
	custodyRequests *prometheus.CounterVec
	custodyCrashes  prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests by settlement domain, method and outcome.",
		}, []string{"domain", "method", "outcome"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "JSON-RPC request latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"domain", "method"}),
		lifecycleSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "steps_total",
			Help:      "Deposit lifecycle submissions by step and outcome.",
		}, []string{"step", "outcome"}),
		scanCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "candidates_total",
			Help:      "Deposit records examined by the scanner.",
		}),
		scanMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "matches_total",
			Help:      "Deposit records recognised as owned.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of one scan pass.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		custodyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "custody",
			Name:      "requests_total",
			Help:      "Key custody requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		custodyCrashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "custody",
			Name:      "crashes_total",
			Help:      "Crashes of the isolated custody context.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.rpcRequests, m.rpcLatency, m.lifecycleSteps,
			m.scanCandidates, m.scanMatches, m.scanDuration,
			m.custodyRequests, m.custodyCrashes,
		)
	}
	return m
}

// ObserveRPC records one JSON-RPC call.
func (m *Metrics) ObserveRPC(domain, method string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(domain, method, outcome(err)).Inc()
	m.rpcLatency.WithLabelValues(domain, method).Observe(elapsed.Seconds())
}

// ObserveStep records one lifecycle submission.
func (m *Metrics) ObserveStep(step string, optimistic bool, err error) {
	if m == nil {
		return
	}
	o := outcome(err)
	if err == nil && optimistic {
		o = OutcomeOptimistic
	}
	m.lifecycleSteps.WithLabelValues(step, o).Inc()
}

// ObserveScan records one scan pass.
func (m *Metrics) ObserveScan(candidates, matches int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.scanCandidates.Add(float64(candidates))
	m.scanMatches.Add(float64(matches))
	m.scanDuration.Observe(elapsed.Seconds())
}

// ObserveCustody records one custody request.
func (m *Metrics) ObserveCustody(op string, err error) {
	if m == nil {
		return
	}
	m.custodyRequests.WithLabelValues(op, outcome(err)).Inc()
}

// CustodyCrashed counts a crash of the custody context.
func (m *Metrics) CustodyCrashed() {
	if m == nil {
		return
	}
	m.custodyCrashes.Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, apierrors.ErrLedgerRejected):
		return OutcomeRejected
	case errors.Is(err, apierrors.ErrSubmissionTimeout), errors.Is(err, apierrors.ErrCustodyTimeout):
		return OutcomeTimeout
	case errors.Is(err, apierrors.ErrCustodyCrashed):
		return OutcomeCrashed
	default:
		return OutcomeError
	}
}
