package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrSource    = "source"
	attrCategory  = "category"
	attrBackend   = "backend"
)

// Metrics records the application's metrics. The zero value, and a nil
// pointer, are valid no-op recorders.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Sessions live in cookies and expire without a server-side event, so
	// only sign-ins and explicit sign-outs are countable.
	signInsTotal  metric.Int64Counter
	signOutsTotal metric.Int64Counter

	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	classificationsTotal metric.Int64Counter
	llmRequestDuration   metric.Float64Histogram

	cacheOperationsTotal metric.Int64Counter
}

// NewMetrics creates all instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.httpRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	if m.httpRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if m.signInsTotal, err = meter.Int64Counter("session_sign_ins_total",
		metric.WithDescription("Total number of completed sign-ins"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create session_sign_ins_total counter: %w", err)
	}

	if m.signOutsTotal, err = meter.Int64Counter("session_sign_outs_total",
		metric.WithDescription("Total number of explicit sign-outs of a valid session"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create session_sign_outs_total counter: %w", err)
	}

	if m.googleAPIOperationsTotal, err = meter.Int64Counter("google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	if m.googleAPIOperationDuration, err = meter.Float64Histogram("google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	if m.oauthAuthTotal, err = meter.Int64Counter("oauth_auth_total",
		metric.WithDescription("Total number of OAuth sign-in attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	if m.oauthTokenRefreshTotal, err = meter.Int64Counter("oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	if m.classificationsTotal, err = meter.Int64Counter("classifications_total",
		metric.WithDescription("Total number of email classifications"),
		metric.WithUnit("{classification}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create classifications_total counter: %w", err)
	}

	if m.llmRequestDuration, err = meter.Float64Histogram("llm_request_duration_seconds",
		metric.WithDescription("Chat completion request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm_request_duration_seconds histogram: %w", err)
	}

	if m.cacheOperationsTotal, err = meter.Int64Counter("cache_operations_total",
		metric.WithDescription("Total number of email list cache operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache_operations_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, route, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGoogleAPIOperation records one Gmail (or other Google) API call.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOAuthAuth records a sign-in attempt. Result is "success" or "failure".
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}
	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh records a refresh attempt.
// Result is one of "success", "failure", "expired".
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return
	}
	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordClassification records a classification outcome.
func (m *Metrics) RecordClassification(ctx context.Context, source, category string) {
	if m == nil || m.classificationsTotal == nil {
		return
	}
	m.classificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrSource, source),
		attribute.String(attrCategory, category),
	))
}

// RecordLLMRequest records the latency of a chat completion call.
func (m *Metrics) RecordLLMRequest(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.llmRequestDuration == nil {
		return
	}
	m.llmRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordCacheOperation records a cache access. Result is one of CacheHit,
// CacheMiss, CacheError, or a status for writes.
func (m *Metrics) RecordCacheOperation(ctx context.Context, backend, operation, result string) {
	if m == nil || m.cacheOperationsTotal == nil {
		return
	}
	m.cacheOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrBackend, backend),
		attribute.String(attrOperation, operation),
		attribute.String(attrResult, result),
	))
}

// RecordSignIn counts a completed sign-in.
func (m *Metrics) RecordSignIn(ctx context.Context) {
	if m == nil || m.signInsTotal == nil {
		return
	}
	m.signInsTotal.Add(ctx, 1)
}

// RecordSignOut counts a sign-out of a valid session.
func (m *Metrics) RecordSignOut(ctx context.Context) {
	if m == nil || m.signOutsTotal == nil {
		return
	}
	m.signOutsTotal.Add(ctx, 1)
}
