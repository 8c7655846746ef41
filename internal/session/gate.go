package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
)

// ErrNoSession is returned when there is neither a stored record nor a
// freshly issued token.
var ErrNoSession = errors.New("no session")

// Refresher exchanges a refresh token for a new token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Gate decides which token a request proceeds with.
type Gate struct {
	refresher Refresher
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewGate returns a Gate that refreshes through refresher.
func NewGate(refresher Refresher, metrics *instrumentation.Metrics, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		refresher: refresher,
		metrics:   metrics,
		logger:    logging.WithOperation(logger, "session.resolve"),
		now:       time.Now,
	}
}

// Resolve returns the record to use for this request.
//
//   - No prior record: the issued token is stored verbatim (sign-in).
//   - Prior record still valid: returned unchanged.
//   - Expired with a refresh token: one refresh call. Success replaces the
//     access token and expiry; failure keeps the old access token and sets
//     Error to RefreshFailed.
//   - Expired without a refresh token: returned unchanged.
func (g *Gate) Resolve(ctx context.Context, prior *TokenRecord, issued *oauth2.Token) (TokenRecord, error) {
	now := g.now()

	if prior == nil {
		if issued == nil {
			return TokenRecord{}, ErrNoSession
		}
		return recordFromToken(issued, now), nil
	}

	record := *prior
	if record.Valid(now) {
		return record, nil
	}

	if record.RefreshToken == "" {
		g.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultExpired)
		g.logger.Debug("access token expired and no refresh token is held")
		return record, nil
	}

	token, err := g.refresher.Refresh(ctx, record.RefreshToken)
	if err != nil {
		g.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		g.logger.Warn("token refresh failed", logging.Status(logging.StatusError), logging.Err(err))
		record.Error = RefreshFailed
		return record, nil
	}

	g.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	g.logger.Debug("token refreshed", logging.Status(logging.StatusSuccess),
		slog.String("access_token", logging.SanitizeToken(token.AccessToken)))

	refreshed := recordFromToken(token, now)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = record.RefreshToken
	}
	if !refreshed.Valid(now) {
		refreshed.ExpiresAt = now.Add(defaultExpiresIn).Unix()
	}
	return refreshed, nil
}
