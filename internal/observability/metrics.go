package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the controller's instruments.
//
// Every Record method is safe to call on a nil *Metrics, so components can be built
// without metrics in tests.
type Metrics struct {
	meter metric.Meter

	// Submission (traffic, errors, latency)
	SubmissionsTotal   metric.Int64Counter
	SubmissionDuration metric.Float64Histogram

	// Polling
	PollTicksTotal      metric.Int64Counter
	PollTransportErrors metric.Int64Counter
	StaleUpdatesTotal   metric.Int64Counter

	// Lifecycle
	TransitionsTotal metric.Int64Counter
	JobsTracked      metric.Int64UpDownCounter
	JobDuration      metric.Float64Histogram
	HostRefreshes    metric.Int64Counter

	// Status server
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter

	// Webhook delivery
	DeliveriesTotal metric.Int64Counter
	DeliveryDropped metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := newMetrics(provider.Meter("jobredirect"))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}
	var err error

	if m.SubmissionsTotal, err = meter.Int64Counter(
		"submissions_total",
		metric.WithDescription("Job submissions attempted, by outcome"),
	); err != nil {
		return nil, err
	}

	if m.SubmissionDuration, err = meter.Float64Histogram(
		"submission_duration_seconds",
		metric.WithDescription("Job submission latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return nil, err
	}

	if m.PollTicksTotal, err = meter.Int64Counter(
		"poll_ticks_total",
		metric.WithDescription("Status poll ticks, by outcome"),
	); err != nil {
		return nil, err
	}

	if m.PollTransportErrors, err = meter.Int64Counter(
		"poll_transport_errors_total",
		metric.WithDescription("Status polls skipped because the job service could not be read"),
	); err != nil {
		return nil, err
	}

	if m.StaleUpdatesTotal, err = meter.Int64Counter(
		"stale_updates_total",
		metric.WithDescription("Status updates discarded because they belong to a job no longer tracked"),
	); err != nil {
		return nil, err
	}

	if m.TransitionsTotal, err = meter.Int64Counter(
		"status_transitions_total",
		metric.WithDescription("Status updates applied to the tracked job"),
	); err != nil {
		return nil, err
	}

	if m.JobsTracked, err = meter.Int64UpDownCounter(
		"jobs_tracked",
		metric.WithDescription("Jobs currently tracked (0 or 1)"),
	); err != nil {
		return nil, err
	}

	if m.JobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Time from submission to the end of tracking"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800),
	); err != nil {
		return nil, err
	}

	if m.HostRefreshes, err = meter.Int64Counter(
		"host_refreshes_total",
		metric.WithDescription("Host result refreshes triggered by completed jobs"),
	); err != nil {
		return nil, err
	}

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("Status server request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	); err != nil {
		return nil, err
	}

	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Status server requests"),
	); err != nil {
		return nil, err
	}

	if m.DeliveriesTotal, err = meter.Int64Counter(
		"webhook_deliveries_total",
		metric.WithDescription("Lifecycle webhook deliveries, by outcome"),
	); err != nil {
		return nil, err
	}

	if m.DeliveryDropped, err = meter.Int64Counter(
		"webhook_dropped_total",
		metric.WithDescription("Lifecycle events dropped before delivery"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSubmission records a submission attempt.
func (m *Metrics) RecordSubmission(ctx context.Context, success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(successAttr(success))
	m.SubmissionsTotal.Add(ctx, 1, attrs)
	m.SubmissionDuration.Record(ctx, durationSeconds, attrs)
}

// RecordPollTick records one poll tick.
func (m *Metrics) RecordPollTick(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.PollTicksTotal.Add(ctx, 1, metric.WithAttributes(successAttr(success)))
	if !success {
		m.PollTransportErrors.Add(ctx, 1)
	}
}

// RecordStaleUpdate records a discarded status update.
func (m *Metrics) RecordStaleUpdate(ctx context.Context) {
	if m == nil {
		return
	}
	m.StaleUpdatesTotal.Add(ctx, 1)
}

// RecordTransition records a status update applied to the tracked job.
func (m *Metrics) RecordTransition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.Add(ctx, 1, metric.WithAttributes(jobStatusAttr(status)))
}

// RecordTrackingStarted records a job entering tracking.
func (m *Metrics) RecordTrackingStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.JobsTracked.Add(ctx, 1)
}

// RecordTrackingEnded records a job leaving tracking. reason is the terminal status,
// "dismissed" or "superseded".
func (m *Metrics) RecordTrackingEnded(ctx context.Context, reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.JobsTracked.Add(ctx, -1)
	m.JobDuration.Record(ctx, durationSeconds, metric.WithAttributes(reasonAttr(reason)))
}

// RecordHostRefresh records a host refresh.
func (m *Metrics) RecordHostRefresh(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.HostRefreshes.Add(ctx, 1, metric.WithAttributes(successAttr(success)))
}

// RecordHTTPRequest records status server request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(methodAttr(method), pathAttr(path), codeAttr(statusCode))
	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
}

// RecordDelivery records a webhook delivery outcome.
func (m *Metrics) RecordDelivery(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.Add(ctx, 1, metric.WithAttributes(successAttr(success)))
}

// RecordDeliveryDropped records a dropped webhook event.
func (m *Metrics) RecordDeliveryDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.DeliveryDropped.Add(ctx, 1)
}
