package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetricsRecorderCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	ctx := context.Background()
	rec.Observe(ctx, "create_batch", true, 2*time.Millisecond)
	rec.Observe(ctx, "create_batch", true, 2*time.Millisecond)
	rec.Observe(ctx, "update_status", false, time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	if got := testutil.ToFloat64(rec.results.WithLabelValues("create_batch", "success")); got != 2 {
		t.Fatalf("expected 2 create successes, got %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("update_status", "error")); got != 1 {
		t.Fatalf("expected 1 update error, got %v", got)
	}
	if got := testutil.CollectAndCount(rec.durations); got != 2 {
		t.Fatalf("expected 2 duration series, got %d", got)
	}
}

func TestPrometheusMetricsRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetricsRecorder(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestPrometheusMetricsRecorderServesService(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc, err := NewInMemoryService(nil, testRegistry(), WithMetricsRecorder(rec))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	createTestBatch(t, svc, "B1")
	if _, _, err := svc.UpdateStatus(context.Background(), strangerID, "B1", StatusInTransitToDistributor, "Depot"); err == nil {
		t.Fatalf("expected rejection")
	}

	if got := testutil.ToFloat64(rec.results.WithLabelValues("create_batch", "success")); got != 1 {
		t.Fatalf("expected 1 create success, got %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("update_status", "error")); got != 1 {
		t.Fatalf("expected 1 update error, got %v", got)
	}
}
