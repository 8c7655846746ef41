package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxsorter/internal/cache"
)

func TestLiveness(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		prepare    func(*testing.T, *harness)
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "ready",
			prepare:    func(*testing.T, *harness) {},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok"},
		},
		{
			name:       "not ready",
			prepare:    func(_ *testing.T, h *harness) { h.server.Health().SetReady(false) },
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "not ready", "shutdown": "ok"},
		},
		{
			name:       "shutting down",
			prepare:    func(t *testing.T, h *harness) { require.NoError(t, h.server.sc.Shutdown()) },
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "shutting down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.prepare(t, h)

			rec := h.get("/readyz")

			require.Equal(t, tt.wantStatus, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantChecks, resp.Checks)
		})
	}
}

func TestDetailedHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/healthz/detailed")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DetailedHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, "memory", resp.CacheBackend)
	assert.Equal(t, "closed", resp.LLMCircuit)
	assert.NotEmpty(t, resp.Uptime)
	assert.Equal(t, map[string]string{"ready": "ok", "shutdown": "ok", "cache": "ok", "llm_circuit": "ok"}, resp.Checks)
}

type unreachableCache struct{}

func (unreachableCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("dial tcp: connection refused")
}
func (unreachableCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("dial tcp: connection refused")
}
func (unreachableCache) Clear(context.Context, string) error { return nil }
func (unreachableCache) Close() error                        { return nil }

func TestDetailedHealth_Degraded(t *testing.T) {
	tests := []struct {
		name       string
		prepare    func(*testing.T, *harness)
		mutate     func(*Options)
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name: "cache unreachable",
			mutate: func(o *Options) {
				o.Lists = cache.NewListCache(unreachableCache{}, cache.BackendValkey, time.Hour, nil, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   "degraded",
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok", "cache": "unreachable", "llm_circuit": "ok"},
		},
		{
			name:       "llm circuit open",
			prepare:    func(_ *testing.T, h *harness) { h.classifier.breaker = "open" },
			wantStatus: http.StatusOK,
			wantBody:   "degraded",
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok", "cache": "ok", "llm_circuit": "open"},
		},
		{
			name: "shutting down wins over degraded",
			mutate: func(o *Options) {
				o.Lists = cache.NewListCache(unreachableCache{}, cache.BackendValkey, time.Hour, nil, nil)
			},
			prepare:    func(t *testing.T, h *harness) { require.NoError(t, h.server.Shutdown(context.Background())) },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "shutting down",
			wantChecks: map[string]string{"ready": "not ready", "shutdown": "shutting down", "cache": "unreachable", "llm_circuit": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mutate []func(*Options)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			h := newHarness(t, mutate...)
			if tt.prepare != nil {
				tt.prepare(t, h)
			}

			rec := h.get("/healthz/detailed")

			require.Equal(t, tt.wantStatus, rec.Code)
			var resp DetailedHealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantBody, resp.Status)
			assert.Equal(t, tt.wantChecks, resp.Checks)
		})
	}
}

func TestReadiness_IgnoresDependencies(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Lists = cache.NewListCache(unreachableCache{}, cache.BackendValkey, time.Hour, nil, nil)
	})
	h.classifier.breaker = "open"

	assert.Equal(t, http.StatusOK, h.get("/readyz").Code)
}

func TestHealthChecker_NilServerContext(t *testing.T) {
	hc := NewHealthChecker(nil)

	rec := httptest.NewRecorder()
	hc.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DetailedHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Version)
	assert.Empty(t, resp.LLMCircuit)
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.server.Shutdown(context.Background()))

	assert.False(t, h.server.Health().IsReady())
	assert.True(t, h.server.sc.IsShutdown())
	assert.Equal(t, http.StatusServiceUnavailable, h.get("/readyz").Code)
}

func TestServer_ShutdownDrainsInFlightRequests(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarnessWithContext(t, parent)
	h.fetcher.listDelay = 300 * time.Millisecond

	addr := freeAddr(t)
	serverErr := make(chan error, 1)
	go func() {
		if err := h.server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	req, err := http.NewRequest(http.MethodGet, "http://"+addr+"/api/gmail?count=2", nil)
	require.NoError(t, err)
	req.AddCookie(h.signedIn(t, time.Now().Add(time.Hour)))

	status := make(chan int, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			status <- 0
			return
		}
		_ = resp.Body.Close()
		status <- resp.StatusCode
	}()
	require.Eventually(t, func() bool { return h.fetcher.listCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	// The process context goes first on SIGTERM, then the server drains.
	cancel()
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	require.NoError(t, h.server.Shutdown(ctx))

	assert.Equal(t, http.StatusOK, <-status)
	h.fetcher.mu.Lock()
	assert.NoError(t, h.fetcher.listCtxErr)
	h.fetcher.mu.Unlock()
	assert.NoError(t, <-serverErr)
	assert.True(t, h.server.sc.IsShutdown())
}
