package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordLifecycleMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordSubmission(ctx, true, 0.120)
	metrics.RecordSubmission(ctx, false, 10.0)
	metrics.RecordPollTick(ctx, true)
	metrics.RecordPollTick(ctx, false)
	metrics.RecordStaleUpdate(ctx)
	metrics.RecordTransition(ctx, "running")
	metrics.RecordTrackingStarted(ctx)
	metrics.RecordTrackingEnded(ctx, "completed", 42)
	metrics.RecordHostRefresh(ctx, true)
	metrics.RecordDelivery(ctx, false)
	metrics.RecordDeliveryDropped(ctx)
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/status", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/dismiss", 204, 0.002)
	metrics.RecordHTTPRequest(ctx, "POST", "/cancel", 502, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/wp-login.php", 404, 0.001)
}

func TestNilMetricsAreNoops(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var metrics *Metrics

	// Should not panic
	metrics.RecordSubmission(ctx, true, 1)
	metrics.RecordPollTick(ctx, false)
	metrics.RecordStaleUpdate(ctx)
	metrics.RecordTransition(ctx, "pending")
	metrics.RecordTrackingStarted(ctx)
	metrics.RecordTrackingEnded(ctx, "dismissed", 1)
	metrics.RecordHostRefresh(ctx, false)
	metrics.RecordHTTPRequest(ctx, "GET", "/status", 200, 0.001)
	metrics.RecordDelivery(ctx, true)
	metrics.RecordDeliveryDropped(ctx)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/status", "/status"},
		{"/dismiss", "/dismiss"},
		{"/cancel", "/cancel"},
		{"/livez", "/livez"},
		{"/readyz", "/readyz"},
		{"/debug/vars", "/debug/*"},
		{"/status/extra", "other"},
		{"/wp-login.php", "other"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
