package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveDuration("sweep", time.Second)
	m.IncSuccess("sweep")
	m.IncFailure("sweep")

	unregistered := NewCronJobMetrics(nil)
	unregistered.IncSuccess("sweep")
}

func TestCronJobMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.IncSuccess("expiry-sweep")
	m.IncSuccess("expiry-sweep")
	m.IncFailure("")

	if got := testutil.ToFloat64(m.success.WithLabelValues("expiry-sweep")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.failure.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected empty job name to normalize to unknown, got %v", got)
	}
}

func TestSweepMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSweepMetrics(reg)

	m.AddReleased(3)
	m.AddCancelled(1)
	m.AddReleased(-5)

	if got := testutil.ToFloat64(m.releasedNumbers); got != 3 {
		t.Fatalf("expected 3 released, got %v", got)
	}
	if got := testutil.ToFloat64(m.cancelledPurchases); got != 1 {
		t.Fatalf("expected 1 cancelled, got %v", got)
	}
}
