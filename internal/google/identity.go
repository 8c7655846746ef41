package google

import (
	"context"
	"crypto"
	"fmt"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Issuer is Google's OpenID Connect issuer.
const Issuer = "https://accounts.google.com"

// Identity is the signed-in user as asserted by the ID token.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// IdentityVerifier validates ID tokens returned by the code exchange.
// Provider discovery happens on first use.
type IdentityVerifier struct {
	issuer   string
	clientID string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

// NewIdentityVerifier returns a verifier that discovers Google's signing keys.
func NewIdentityVerifier(clientID string) *IdentityVerifier {
	return &IdentityVerifier{issuer: Issuer, clientID: clientID}
}

// NewStaticIdentityVerifier returns a verifier with fixed signing keys and
// no discovery.
func NewStaticIdentityVerifier(issuer, clientID string, keys ...crypto.PublicKey) *IdentityVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &IdentityVerifier{
		issuer:   issuer,
		clientID: clientID,
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// Verify checks signature, issuer, audience and expiry of rawIDToken and
// returns the identity it asserts.
func (v *IdentityVerifier) Verify(ctx context.Context, rawIDToken string) (Identity, error) {
	verifier, err := v.idTokenVerifier(ctx)
	if err != nil {
		return Identity{}, err
	}

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var identity Identity
	if err := idToken.Claims(&identity); err != nil {
		return Identity{}, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	if identity.Subject == "" {
		identity.Subject = idToken.Subject
	}
	return identity, nil
}

func (v *IdentityVerifier) idTokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.verifier != nil {
		return v.verifier, nil
	}

	// The provider keeps its context for later key set refreshes, so it
	// must outlive the request that triggered discovery.
	provider, err := oidc.NewProvider(context.WithoutCancel(ctx), v.issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", v.issuer, err)
	}
	v.verifier = provider.Verifier(&oidc.Config{ClientID: v.clientID})
	return v.verifier, nil
}
