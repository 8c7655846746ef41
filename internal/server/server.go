package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/inboxsorter/internal/session"
)

const (
	// DefaultAddr is the default listen address of the web server.
	DefaultAddr = ":8080"

	readHeaderTimeout = 10 * time.Second
	// Dashboard requests fan out to Gmail and the LLM, so they get longer
	// than the metrics endpoint.
	writeTimeout = 60 * time.Second
	idleTimeout  = 120 * time.Second

	// maxRequestBody bounds JSON and form bodies.
	maxRequestBody = 1 << 20
)

// Server serves the pages and the JSON API.
type Server struct {
	sc      *ServerContext
	opts    Options
	logger  *slog.Logger
	health  *HealthChecker
	pages   *pages
	limiter *RateLimiter

	mu         sync.Mutex
	httpServer *http.Server
}

// New builds a Server. The returned server is ready to serve through
// Handler or Start.
func New(ctx context.Context, opts Options) (*Server, error) {
	sc, err := NewServerContext(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid server options: %w", err)
	}

	p, err := loadPages()
	if err != nil {
		return nil, err
	}

	s := &Server{
		sc:     sc,
		opts:   sc.opts,
		logger: sc.Logger(),
		pages:  p,
	}
	s.health = NewHealthChecker(sc)
	if opts.ClassifyRate > 0 {
		s.limiter = NewRateLimiter(opts.ClassifyRate, opts.ClassifyBurst)
	}
	return s, nil
}

// Health returns the health checker, e.g. to flip readiness on shutdown.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Handler returns the complete HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	gate := session.NewMiddleware(s.opts.Store, s.opts.Gate, s.logger)
	toHome := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
	pagesOnly := gate.Require(toHome)
	apiOnly := gate.Require(notAuthenticated)

	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("POST /settings/openai-key", s.handleSaveAPIKey)

	mux.HandleFunc("GET /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/callback", s.handleCallback)
	mux.HandleFunc("/auth/logout", s.handleLogout)

	mux.Handle("GET /dashboard", pagesOnly(http.HandlerFunc(s.handleDashboard)))

	mux.Handle("GET /api/gmail", apiOnly(http.HandlerFunc(s.handleAPIGmail)))
	var classify http.Handler = http.HandlerFunc(s.handleAPIClassify)
	if s.limiter != nil {
		classify = s.limiter.Middleware(classify)
	}
	mux.Handle("POST /api/classify", classify)

	s.health.RegisterHealthEndpoints(mux)

	return instrumentHTTP(s.opts.Metrics, securityHeaders(s.opts.SecureCookies, mux))
}

// Start listens on addr and blocks until the server stops. Request
// contexts are not tied to the server context, so Shutdown drains
// in-flight requests instead of cancelling them.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Info("starting web server", slog.String("addr", addr))
	return httpServer.ListenAndServe()
}

// Shutdown marks the server not ready and drains in-flight requests. The
// server context is cancelled only once draining has finished.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	defer func() { _ = s.sc.Shutdown() }()

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()

	if httpServer != nil {
		s.logger.Info("shutting down web server")
		return httpServer.Shutdown(ctx)
	}
	return nil
}
