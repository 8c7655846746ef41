package google

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestIdentityVerifier_Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	validClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":   Issuer,
			"aud":   "client-id",
			"sub":   "1234567890",
			"email": "jane@example.com",
			"name":  "Jane Doe",
			"iat":   time.Now().Unix(),
			"exp":   time.Now().Add(time.Hour).Unix(),
		}
	}

	tests := []struct {
		name    string
		signer  *rsa.PrivateKey
		mutate  func(jwt.MapClaims)
		wantErr bool
	}{
		{name: "valid", signer: key},
		{name: "wrong audience", signer: key, mutate: func(c jwt.MapClaims) { c["aud"] = "someone-else" }, wantErr: true},
		{name: "wrong issuer", signer: key, mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }, wantErr: true},
		{name: "expired", signer: key, mutate: func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }, wantErr: true},
		{name: "unknown key", signer: otherKey, wantErr: true},
	}

	verifier := NewStaticIdentityVerifier(Issuer, "client-id", key.Public())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			if tt.mutate != nil {
				tt.mutate(claims)
			}

			identity, err := verifier.Verify(context.Background(), signIDToken(t, tt.signer, claims))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, Identity{Subject: "1234567890", Email: "jane@example.com", Name: "Jane Doe"}, identity)
		})
	}
}
