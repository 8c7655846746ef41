package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teemow/inboxsorter/internal/cache"
	"github.com/teemow/inboxsorter/internal/classifier"
	"github.com/teemow/inboxsorter/internal/gmail"
	"github.com/teemow/inboxsorter/internal/google"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/session"
)

// Fetcher reads one user's mailbox.
type Fetcher interface {
	List(ctx context.Context, count int) ([]gmail.MessageSummary, error)
	Get(ctx context.Context, id string) (gmail.MessageDetail, error)
}

// FetcherFactory returns a Fetcher authenticated with accessToken.
type FetcherFactory func(ctx context.Context, accessToken string) (Fetcher, error)

// Classifier labels email content.
type Classifier interface {
	Classify(ctx context.Context, content, apiKey string) classifier.Classification
}

// IdentityVerifier turns the ID token from the code exchange into a user.
type IdentityVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (google.Identity, error)
}

// Options are the dependencies of a Server.
type Options struct {
	OAuthConfig *oauth2.Config

	// HTTPClient is used for the authorization code exchange.
	HTTPClient *http.Client

	Verifier   IdentityVerifier
	Store      *session.Store
	Gate       *session.Gate
	Fetchers   FetcherFactory
	Classifier Classifier
	Lists      *cache.ListCache

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// SecureCookies marks the OAuth state cookie HTTPS-only.
	SecureCookies bool

	Version      string
	CacheBackend string

	// ClassifyRate limits POST /api/classify per client IP in requests per
	// second. Zero disables the limit.
	ClassifyRate  float64
	ClassifyBurst int
}

// ServerContext holds the dependencies shared by all handlers and the
// lifecycle of the running server.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext validates opts and returns a context derived from ctx.
func NewServerContext(ctx context.Context, opts Options) (*ServerContext, error) {
	var missing []error
	if opts.OAuthConfig == nil {
		missing = append(missing, errors.New("OAuth config is required"))
	}
	if opts.Verifier == nil {
		missing = append(missing, errors.New("identity verifier is required"))
	}
	if opts.Store == nil {
		missing = append(missing, errors.New("session store is required"))
	}
	if opts.Gate == nil {
		missing = append(missing, errors.New("session gate is required"))
	}
	if opts.Fetchers == nil {
		missing = append(missing, errors.New("fetcher factory is required"))
	}
	if opts.Classifier == nil {
		missing = append(missing, errors.New("classifier is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Lists == nil {
		opts.Lists = cache.NewListCache(cache.NewMemory(), cache.BackendMemory, 0, opts.Metrics, opts.Logger)
	}
	if opts.CacheBackend == "" {
		opts.CacheBackend = cache.BackendMemory
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		opts:   opts,
	}, nil
}

// Context is cancelled when the server shuts down.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.opts.Logger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown marks the context as shut down and cancels it.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
