package session

import (
	"time"

	"golang.org/x/oauth2"
)

// TokenError marks a record that can no longer be used.
type TokenError string

const (
	// RefreshFailed is set when the provider rejected the refresh token or
	// the refresh call failed. The user has to sign in again.
	RefreshFailed TokenError = "RefreshAccessTokenError"
)

// defaultExpiresIn applies when the provider reports no expiry.
const defaultExpiresIn = time.Hour

// TokenRecord is the credential pair held for a signed-in user.
type TokenRecord struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    int64      `json:"expires_at"`
	Error        TokenError `json:"error,omitempty"`
}

// Valid reports whether the access token is still within its lifetime at now.
func (r TokenRecord) Valid(now time.Time) bool {
	return now.Unix() < r.ExpiresAt
}

// Usable reports whether requests may proceed with this record.
func (r TokenRecord) Usable() bool {
	return r.Error == "" && r.AccessToken != ""
}

// recordFromToken stores a provider-issued token verbatim.
func recordFromToken(token *oauth2.Token, now time.Time) TokenRecord {
	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = now.Add(defaultExpiresIn)
	}
	return TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiry.Unix(),
	}
}
