package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenLifetime applies when the token endpoint omits expires_in.
const DefaultTokenLifetime = time.Hour

// ErrNoRefreshToken is returned when there is nothing to exchange.
var ErrNoRefreshToken = errors.New("no refresh token available")

// Refresher exchanges refresh tokens for new access tokens at the
// provider's token endpoint.
type Refresher struct {
	config     *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
}

// NewRefresher returns a Refresher for config. A nil httpClient uses the
// oauth2 package default.
func NewRefresher(config *oauth2.Config, httpClient *http.Client) *Refresher {
	return &Refresher{config: config, httpClient: httpClient, now: time.Now}
}

// Refresh posts the refresh token with the client credentials to the token
// endpoint. The returned token always carries a refresh token (the previous
// one when the provider did not rotate it) and a non-zero expiry.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	// An empty access token is never valid, so the source goes to the endpoint.
	newToken, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if newToken.RefreshToken == "" {
		newToken.RefreshToken = refreshToken
	}
	if newToken.Expiry.IsZero() {
		newToken.Expiry = r.now().Add(DefaultTokenLifetime)
	}
	return newToken, nil
}
