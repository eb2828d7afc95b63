package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stealthpool/client-go/internal/apierrors"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRPC("base", "getAccountInfo", time.Millisecond, nil)
	m.ObserveStep("create", false, nil)
	m.ObserveScan(1, 1, time.Millisecond)
	m.ObserveCustody("init", nil)
	m.CustodyCrashed()
}

func TestMetrics_Outcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStep("withdraw", false, &apierrors.LedgerRejectedError{Code: apierrors.CustomCode(apierrors.CodeNotVerified)})
	m.ObserveStep("create", true, nil)
	m.ObserveStep("create", false, nil)
	m.ObserveCustody("check_escrows", apierrors.ErrCustodyCrashed)
	m.ObserveRPC("rollup", "getAccountInfo", time.Millisecond, errors.New("boom"))

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"stealthpool_lifecycle_steps_total", map[string]string{"step": "withdraw", "outcome": OutcomeRejected}, 1},
		{"stealthpool_lifecycle_steps_total", map[string]string{"step": "create", "outcome": OutcomeOptimistic}, 1},
		{"stealthpool_lifecycle_steps_total", map[string]string{"step": "create", "outcome": OutcomeOK}, 1},
		{"stealthpool_custody_requests_total", map[string]string{"op": "check_escrows", "outcome": OutcomeCrashed}, 1},
		{"stealthpool_rpc_requests_total", map[string]string{"domain": "rollup", "outcome": OutcomeError}, 1},
	}
	for _, tt := range tests {
		if got := counterValue(t, reg, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestMetrics_Scan(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveScan(10, 2, 50*time.Millisecond)
	m.ObserveScan(5, 0, 10*time.Millisecond)

	if got := counterValue(t, reg, "stealthpool_scanner_candidates_total", nil); got != 15 {
		t.Errorf("candidates = %v, want 15", got)
	}
	if got := counterValue(t, reg, "stealthpool_scanner_matches_total", nil); got != 2 {
		t.Errorf("matches = %v, want 2", got)
	}
}
