package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxsorter/internal/cache"
	"github.com/teemow/inboxsorter/internal/classifier"
	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/gmail"
	"github.com/teemow/inboxsorter/internal/google"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
	"github.com/teemow/inboxsorter/internal/server"
	"github.com/teemow/inboxsorter/internal/session"
)

// outboundTimeout bounds calls to Google and OpenAI.
const outboundTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web app",
		Long: `Start the inboxsorter web app.

Configuration is read from, in order of precedence:
  - flags
  - INBOXSORTER_* environment variables (e.g. INBOXSORTER_CACHE_BACKEND)
  - the unprefixed variables GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET,
    OPENAI_API_KEY, SESSION_SECRET, TOKEN_ENCRYPTION_KEY, BASE_URL,
    CACHE_BACKEND, SQLITE_PATH, VALKEY_URL and VALKEY_PASSWORD
  - the YAML file given with --config

Required:
  GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET of an OAuth web client whose
  redirect URI is <base-url>/auth/callback, and a SESSION_SECRET of at
  least 32 bytes.

Cache backends for the last fetched inbox list:
  - memory: in-process (default)
  - valkey: shared across replicas (--valkey-url)
  - sqlite: survives restarts (--sqlite-path)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	addServeFlags(cmd)

	return cmd
}

// addServeFlags declares one flag per entry of config.FlagKeys. Defaults
// live in the config package, so flags only override when set.
func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("addr", server.DefaultAddr, "Web server listen address")
	f.String("base-url", "", "Public base URL, used for the OAuth redirect URI (BASE_URL). Example: https://inbox.example.com")
	f.String("google-client-id", "", "Google OAuth client ID (GOOGLE_CLIENT_ID)")
	f.String("google-client-secret", "", "Google OAuth client secret (GOOGLE_CLIENT_SECRET)")
	f.String("openai-api-key", "", "Default OpenAI API key; users may supply their own (OPENAI_API_KEY)")
	f.String("openai-base-url", "", "OpenAI-compatible API base URL including /v1")
	f.String("openai-model", "", "Chat model used for classification (default: gpt-4o-mini)")
	f.String("cache-backend", "", "Inbox cache backend: memory, valkey or sqlite (CACHE_BACKEND)")
	f.Duration("cache-ttl", cache.DefaultTTL, "How long a fetched inbox list is kept")
	f.String("sqlite-path", "", "SQLite database file for the sqlite cache backend (SQLITE_PATH)")
	f.String("valkey-url", "", "Valkey server address, e.g. valkey.namespace.svc:6379 (VALKEY_URL)")
	f.Bool("valkey-tls", false, "Enable TLS for Valkey connections")
	f.String("valkey-key-prefix", "", "Prefix for all Valkey keys (default: inboxsorter:)")
	f.Int("valkey-db", 0, "Valkey database number")
	f.Bool("metrics-enabled", true, "Serve Prometheus metrics on a dedicated port")
	f.String("metrics-addr", server.DefaultMetricsAddr, "Metrics server address")
	f.String("log-format", "", "Log format: text or json")
	f.Bool("debug", false, "Enable debug logging")
	f.Float64("classify-rate", 0, "Allowed POST /api/classify requests per second and client IP; 0 disables the limit")
	f.Int("classify-burst", 0, "Burst size for --classify-rate")
}

// app holds everything runServe starts and stops.
type app struct {
	server  *server.Server
	cache   cache.Cache
	backend string
}

func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

// buildApp wires the configured components into a server without
// listening anywhere.
func buildApp(ctx context.Context, cfg *config.Config, metrics *instrumentation.Metrics, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}

	key, err := session.KeyFromBase64(cfg.Session.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid token encryption key: %w", err)
	}
	cipher, err := session.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if !cipher.Enabled() {
		logger.Warn("tokens in session cookies are not encrypted; set TOKEN_ENCRYPTION_KEY to enable AES-256-GCM")
	}

	store, err := session.NewStore([]byte(cfg.Session.Secret), cipher, cfg.SecureCookies())
	if err != nil {
		return nil, err
	}

	backing, err := cache.New(cfg.CacheBackendConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	backend := cfg.CacheBackendConfig().Backend
	if backend == "" {
		backend = cache.BackendMemory
	}
	lists := cache.NewListCache(backing, backend, cfg.Cache.TTL, metrics, logger)

	httpClient := &http.Client{Timeout: outboundTimeout}
	oauthConfig := google.NewOAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.RedirectURL())
	refresher := google.NewRefresher(oauthConfig, httpClient)

	fetcherOpts := gmail.Options{
		HTTPClient: httpClient,
		Metrics:    metrics,
		Logger:     logger,
	}
	fetchers := func(ctx context.Context, accessToken string) (server.Fetcher, error) {
		f, err := gmail.NewFetcher(ctx, accessToken, fetcherOpts)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	classify := classifier.New(classifier.Config{
		DefaultAPIKey: cfg.OpenAI.APIKey,
		BaseURL:       cfg.OpenAI.BaseURL,
		Model:         cfg.OpenAI.Model,
		HTTPClient:    httpClient,
	}, metrics, logger)

	srv, err := server.New(ctx, server.Options{
		OAuthConfig:   oauthConfig,
		HTTPClient:    httpClient,
		Verifier:      google.NewIdentityVerifier(cfg.Google.ClientID),
		Store:         store,
		Gate:          session.NewGate(refresher, metrics, logger),
		Fetchers:      fetchers,
		Classifier:    classify,
		Lists:         lists,
		Metrics:       metrics,
		Logger:        logger,
		SecureCookies: cfg.SecureCookies(),
		Version:       version,
		CacheBackend:  backend,
		ClassifyRate:  cfg.RateLimit.ClassifyRate,
		ClassifyBurst: cfg.RateLimit.ClassifyBurst,
	})
	if err != nil {
		_ = backing.Close()
		return nil, err
	}

	return &app{server: srv, cache: backing, backend: backend}, nil
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	shutdownCtx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Debug)
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	// The app outlives the signal context: requests in flight when the
	// signal arrives are drained by Shutdown, not cancelled.
	a, err := buildApp(parent, cfg, provider.Metrics(), logger)
	if err != nil {
		return err
	}
	defer a.close()

	metricsServer, err := server.NewMetricsServer(cfg.Metrics, provider, a.server.Health(), logger)
	if err != nil {
		return fmt.Errorf("failed to create metrics server: %w", err)
	}
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", logging.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := a.server.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	logger.Info("inboxsorter started",
		slog.String("addr", cfg.Addr),
		slog.String("base_url", cfg.BaseURL),
		slog.String("cache_backend", a.backend),
		slog.String("version", version))

	var runErr error
	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received, stopping web server")
	case err := <-serverDone:
		if err != nil {
			runErr = fmt.Errorf("web server stopped with error: %w", err)
		}
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()
	if err := a.server.Shutdown(ctx); err != nil {
		logger.Error("error shutting down web server", logging.Err(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("error shutting down metrics server", logging.Err(err))
		}
	}

	if runErr == nil {
		logger.Info("web server gracefully stopped")
	}
	return runErr
}
