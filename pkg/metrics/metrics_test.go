package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRateLimiter_RecordAdjustment(t *testing.T) {
	rl := NewRateLimiter()
	rl.RecordAdjustment("github.com", "decrease")
	if got := testutil.ToFloat64(rl.adjustments.WithLabelValues("github.com", "decrease")); got != 1 {
		t.Errorf("adjustments_total = %v, want 1", got)
	}
}

func TestRateLimiter_RecordBackoff(t *testing.T) {
	rl := NewRateLimiter()
	rl.RecordBackoff("github.com", 1.5)
	if got := testutil.ToFloat64(rl.backoffEvents.WithLabelValues("github.com")); got != 1 {
		t.Errorf("backoff_events_total = %v, want 1", got)
	}
}

func TestResource_RecordSample(t *testing.T) {
	r := NewResource()
	r.RecordSample(2, "critical", 900_000_000, 3, true)
	if got := testutil.ToFloat64(r.currentLevel); got != 2 {
		t.Errorf("current_level = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.levelTransitions.WithLabelValues("critical")); got != 1 {
		t.Errorf("level_transitions_total{critical} = %v, want 1", got)
	}
}

func TestWorkerPool_RecordRetry(t *testing.T) {
	w := NewWorkerPool()
	w.RecordRetry(1)
	w.RecordRetry(1)
	if got := testutil.ToFloat64(w.filesRetried.WithLabelValues("1")); got != 2 {
		t.Errorf("files_retried_total{1} = %v, want 2", got)
	}
}

func TestDedup_RecordStats(t *testing.T) {
	d := NewDedup()
	d.RecordStats(5, true, "performance_limit")
	if got := testutil.ToFloat64(d.fallbacks.WithLabelValues("performance_limit")); got != 1 {
		t.Errorf("fallbacks_total{performance_limit} = %v, want 1", got)
	}
}
