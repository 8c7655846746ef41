package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is where the metrics listener binds when the
	// configuration leaves it empty.
	DefaultMetricsAddr = ":9090"

	// DefaultShutdownTimeout bounds draining of both listeners.
	DefaultShutdownTimeout = 30 * time.Second

	metricsTimeout = 10 * time.Second
)

// MetricsServer is the operator-facing listener: the provider's Prometheus
// registry plus the web server's health endpoints, so scrapes and kubelet
// checks never compete with user traffic.
type MetricsServer struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewMetricsServer returns the metrics listener for cfg. It returns nil
// when cfg disables metrics or when provider does not export to
// Prometheus; OTLP and stdout exporters push instead of being scraped.
// health may be nil, in which case only /metrics is served.
func NewMetricsServer(cfg config.MetricsConfig, provider *instrumentation.Provider, health *HealthChecker, logger *slog.Logger) (*MetricsServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return nil, nil
	}
	if provider == nil {
		return nil, errors.New("instrumentation provider is required for the metrics server")
	}

	metricsHandler := provider.MetricsHandler()
	if metricsHandler == nil {
		logger.Info("metrics listener disabled, instrumentation does not export to Prometheus",
			slog.Bool("instrumentation_enabled", provider.Enabled()))
		return nil, nil
	}

	addr := cfg.Addr
	if addr == "" {
		addr = DefaultMetricsAddr
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	if health != nil {
		mux.Handle("GET /healthz", health.LivenessHandler())
		mux.Handle("GET /readyz", health.ReadinessHandler())
	}

	return &MetricsServer{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: metricsTimeout,
			WriteTimeout:      metricsTimeout,
			IdleTimeout:       6 * metricsTimeout,
		},
		logger: logger,
	}, nil
}

// Handler returns the routes of the metrics listener.
func (s *MetricsServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the address the listener binds.
func (s *MetricsServer) Addr() string {
	return s.httpServer.Addr
}

// Start binds Addr and serves until Shutdown.
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *MetricsServer) Serve(ln net.Listener) error {
	s.logger.Info("starting metrics server", slog.String("addr", ln.Addr().String()))
	return s.httpServer.Serve(ln)
}

// Shutdown drains the listener. It is safe to call before Start.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}
