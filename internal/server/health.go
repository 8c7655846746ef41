package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teemow/inboxsorter/internal/logging"
)

const (
	checkOK           = "ok"
	checkNotReady     = "not ready"
	checkShuttingDown = "shutting down"
	checkUnreachable  = "unreachable"

	statusDegraded = "degraded"

	// dependencyCheckTimeout bounds the cache check of /healthz/detailed.
	dependencyCheckTimeout = 2 * time.Second

	circuitClosed = "closed"
)

// breakerReporter is implemented by classifiers with a circuit breaker.
type breakerReporter interface {
	BreakerState() string
}

// HealthChecker answers liveness and readiness checks and reports the
// state of the inbox cache and the LLM circuit.
//
// Only the readiness flag and server shutdown take the app out of
// rotation. An unreachable cache or an open circuit leaves sign-in and
// fetching working, with the dashboard losing its fallback list or the
// classifier answering from keywords, so they mark the app degraded.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time
}

// NewHealthChecker returns a checker that starts out ready. sc may be nil.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady flips the readiness flag, e.g. before draining on shutdown.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the readiness flag.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status       string            `json:"status"`
	Uptime       string            `json:"uptime"`
	Version      string            `json:"version,omitempty"`
	CacheBackend string            `json:"cache_backend,omitempty"`
	LLMCircuit   string            `json:"llm_circuit,omitempty"`
	Checks       map[string]string `json:"checks"`
}

// servingChecks reports the checks that decide whether traffic is routed
// here.
func (h *HealthChecker) servingChecks() (map[string]string, bool) {
	checks := map[string]string{"ready": checkOK, "shutdown": checkOK}
	ok := true
	if !h.ready.Load() {
		checks["ready"] = checkNotReady
		ok = false
	}
	if sc := h.serverContext; sc != nil && sc.IsShutdown() {
		checks["shutdown"] = checkShuttingDown
		ok = false
	}
	return checks, ok
}

// dependencyChecks pings the inbox cache and reads the LLM circuit into
// checks. It reports false when either is unhealthy.
func (h *HealthChecker) dependencyChecks(ctx context.Context, checks map[string]string) bool {
	sc := h.serverContext
	if sc == nil {
		return true
	}
	ok := true

	if sc.opts.Lists != nil {
		ctx, cancel := context.WithTimeout(ctx, dependencyCheckTimeout)
		defer cancel()
		if err := sc.opts.Lists.Check(ctx); err != nil {
			sc.opts.Logger.Warn("inbox cache check failed",
				slog.String("cache_backend", sc.opts.CacheBackend), logging.Err(err))
			checks["cache"] = checkUnreachable
			ok = false
		} else {
			checks["cache"] = checkOK
		}
	}

	if br, isBreaker := sc.opts.Classifier.(breakerReporter); isBreaker {
		if state := br.BreakerState(); state != circuitClosed {
			checks["llm_circuit"] = state
			ok = false
		} else {
			checks["llm_circuit"] = checkOK
		}
	}
	return ok
}

func writeHealth(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler answers /healthz. The process is alive as long as it
// can serve this handler.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: checkOK})
	})
}

// ReadinessHandler answers /readyz from the serving checks only.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, ok := h.servingChecks()
		if !ok {
			writeHealth(w, http.StatusServiceUnavailable, HealthResponse{Status: checkNotReady, Checks: checks})
			return
		}
		writeHealth(w, http.StatusOK, HealthResponse{Status: checkOK, Checks: checks})
	})
}

// DetailedHealthHandler answers /healthz/detailed. A degraded app still
// answers 200.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks, serving := h.servingChecks()
		healthy := h.dependencyChecks(r.Context(), checks)

		response := DetailedHealthResponse{
			Status: checkOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
			Checks: checks,
		}
		if sc := h.serverContext; sc != nil {
			response.Version = sc.opts.Version
			response.CacheBackend = sc.opts.CacheBackend
			if br, ok := sc.opts.Classifier.(breakerReporter); ok {
				response.LLMCircuit = br.BreakerState()
			}
		}

		status := http.StatusOK
		switch {
		case checks["shutdown"] != checkOK:
			response.Status = checkShuttingDown
			status = http.StatusServiceUnavailable
		case !serving:
			response.Status = checkNotReady
			status = http.StatusServiceUnavailable
		case !healthy:
			response.Status = statusDegraded
		}
		writeHealth(w, status, response)
	})
}

// RegisterHealthEndpoints adds the health endpoints to mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("GET /healthz", h.LivenessHandler())
	mux.Handle("GET /readyz", h.ReadinessHandler())
	mux.Handle("GET /healthz/detailed", h.DetailedHealthHandler())
}
