// Package observability provides metrics for the job controller.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrCode      = "code"
	attrSuccess   = "success"
	attrJobStatus = "job_status"
	attrReason    = "reason"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func codeAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality: 200-299 -> 2xx, etc.
	return attribute.String(attrCode, fmt.Sprintf("%dxx", code/100))
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func jobStatusAttr(status string) attribute.KeyValue {
	return attribute.String(attrJobStatus, status)
}

func reasonAttr(reason string) attribute.KeyValue {
	return attribute.String(attrReason, reason)
}

// normalizePath keeps only the known status-server routes; anything else collapses
// into a single bucket so scanners cannot blow up cardinality.
func normalizePath(path string) string {
	switch path {
	case "/status", "/dismiss", "/cancel", "/livez", "/readyz":
		return path
	}
	if strings.HasPrefix(path, "/debug/") {
		return "/debug/*"
	}
	return "other"
}

// WithJobStatus returns a metric option with the job status attribute.
func WithJobStatus(status string) metric.MeasurementOption {
	return metric.WithAttributes(jobStatusAttr(status))
}

// WithSuccess returns a metric option with the success attribute.
func WithSuccess(success bool) metric.MeasurementOption {
	return metric.WithAttributes(successAttr(success))
}
