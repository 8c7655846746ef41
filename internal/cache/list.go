package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/inboxsorter/internal/gmail"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
)

// ListCache stores the last inbox list fetched for each user.
type ListCache struct {
	cache   Cache
	backend string
	ttl     time.Duration
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewListCache wraps c. backend labels metrics; ttl <= 0 selects DefaultTTL.
func NewListCache(c Cache, backend string, ttl time.Duration, metrics *instrumentation.Metrics, logger *slog.Logger) *ListCache {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == "" {
		backend = BackendMemory
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ListCache{
		cache:   c,
		backend: backend,
		ttl:     ttl,
		metrics: metrics,
		logger:  logging.WithOperation(logger, "cache"),
	}
}

// listKey derives a stable key from the user's email without storing it.
func listKey(user string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(user))))
	return "inbox:" + hex.EncodeToString(sum[:])
}

// healthCheckKey is read by Check and never written.
const healthCheckKey = "inbox:health-check"

// Check reports whether the backend answers. A miss is healthy.
func (l *ListCache) Check(ctx context.Context) error {
	_, err := l.cache.Get(ctx, healthCheckKey)
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Load returns the cached list for user. ok is false on a miss or any
// backend error; errors are logged, not returned.
func (l *ListCache) Load(ctx context.Context, user string) ([]gmail.MessageSummary, bool) {
	b, err := l.cache.Get(ctx, listKey(user))
	switch {
	case errors.Is(err, ErrNotFound):
		l.metrics.RecordCacheOperation(ctx, l.backend, "get", instrumentation.CacheMiss)
		return nil, false
	case err != nil:
		l.metrics.RecordCacheOperation(ctx, l.backend, "get", instrumentation.CacheError)
		l.logger.Warn("cache read failed", logging.UserHash(user), logging.Err(err))
		return nil, false
	}

	var list []gmail.MessageSummary
	if err := json.Unmarshal(b, &list); err != nil {
		l.metrics.RecordCacheOperation(ctx, l.backend, "get", instrumentation.CacheError)
		l.logger.Warn("discarding corrupt cache entry", logging.UserHash(user), logging.Err(err))
		_ = l.cache.Clear(ctx, listKey(user))
		return nil, false
	}

	l.metrics.RecordCacheOperation(ctx, l.backend, "get", instrumentation.CacheHit)
	return list, true
}

// Store replaces the cached list for user. Nothing is written when ctx is
// already cancelled, so an abandoned request never overwrites a newer list.
func (l *ListCache) Store(ctx context.Context, user string, list []gmail.MessageSummary) {
	if ctx.Err() != nil {
		return
	}

	b, err := json.Marshal(list)
	if err == nil {
		err = l.cache.Set(ctx, listKey(user), b, l.ttl)
	}
	if err != nil {
		l.metrics.RecordCacheOperation(ctx, l.backend, "set", instrumentation.StatusError)
		l.logger.Warn("cache write failed", logging.UserHash(user), logging.Err(err))
		return
	}
	l.metrics.RecordCacheOperation(ctx, l.backend, "set", instrumentation.StatusSuccess)
}

// Forget drops the cached list for user, e.g. on logout.
func (l *ListCache) Forget(ctx context.Context, user string) {
	if err := l.cache.Clear(ctx, listKey(user)); err != nil {
		l.metrics.RecordCacheOperation(ctx, l.backend, "clear", instrumentation.StatusError)
		l.logger.Warn("cache clear failed", logging.UserHash(user), logging.Err(err))
		return
	}
	l.metrics.RecordCacheOperation(ctx, l.backend, "clear", instrumentation.StatusSuccess)
}
