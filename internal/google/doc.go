// Package google holds the Google OAuth client configuration used for
// sign-in, the refresh-token exchange, and ID token verification.
package google
