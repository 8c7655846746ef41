// Package instrumentation wires OpenTelemetry metrics and tracing for
// inboxsorter.
//
// # Metrics
//
// Server:
//   - http_requests_total, http_request_duration_seconds: by method, route and status
//   - session_sign_ins_total, session_sign_outs_total: completed sign-ins and explicit
//     sign-outs. Expired cookies are never observed, so there is no live-session gauge.
//
// Google:
//   - google_api_operations_total, google_api_operation_duration_seconds: by service, operation and status
//   - oauth_auth_total: sign-in attempts by result
//   - oauth_token_refresh_total: refresh attempts by result
//
// Classification:
//   - classifications_total: by source (llm, keyword) and category
//   - llm_request_duration_seconds: chat completion latency by status
//
// Cache:
//   - cache_operations_total: by backend, operation and result (hit, miss, error)
//
// # Exporters
//
// Metrics are exported through Prometheus (default), OTLP over HTTP, or
// stdout. Traces go to OTLP, stdout, or nowhere (default). Configuration
// comes from environment variables, see DefaultConfig.
package instrumentation
