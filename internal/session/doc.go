// Package session keeps the user's Google tokens inside a signed session
// cookie and decides, on every authenticated request, whether the access
// token can be used as is or must be refreshed first.
//
// The cookie is an HS256 JWT. Token fields inside it are additionally
// sealed with AES-256-GCM when an encryption key is configured.
package session
