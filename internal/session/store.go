package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName holds the signed session.
	CookieName = "inboxsorter_session"

	// APIKeyCookieName holds the user-supplied OpenAI key.
	APIKeyCookieName = "inboxsorter_openai_key"

	// DefaultMaxAge is the lifetime of the session cookie. Access tokens
	// inside it are refreshed independently.
	DefaultMaxAge = 30 * 24 * time.Hour

	issuer = "inboxsorter"
)

// Session is what the cookie carries for a signed-in user.
type Session struct {
	Subject string
	Email   string
	Name    string
	Token   TokenRecord
}

type sessionClaims struct {
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	AccessToken  string `json:"at"`
	RefreshToken string `json:"rt,omitempty"`
	TokenExpiry  int64  `json:"tex"`
	TokenError   string `json:"terr,omitempty"`
	jwt.RegisteredClaims
}

type apiKeyClaims struct {
	Key string `json:"k"`
	jwt.RegisteredClaims
}

// Store reads and writes session cookies.
type Store struct {
	secret []byte
	cipher *Cipher
	secure bool
	maxAge time.Duration
	now    func() time.Time
}

// NewStore returns a Store signing with secret. Secure marks cookies as
// HTTPS-only.
func NewStore(secret []byte, cipher *Cipher, secure bool) (*Store, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes, got %d", len(secret))
	}
	if cipher == nil {
		cipher = &Cipher{}
	}
	return &Store{
		secret: secret,
		cipher: cipher,
		secure: secure,
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}, nil
}

// Encode signs s into a compact JWT.
func (st *Store) Encode(s Session) (string, error) {
	accessToken, err := st.cipher.Seal(s.Token.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to seal access token: %w", err)
	}
	refreshToken, err := st.cipher.Seal(s.Token.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to seal refresh token: %w", err)
	}

	now := st.now()
	claims := sessionClaims{
		Email:        s.Email,
		Name:         s.Name,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenExpiry:  s.Token.ExpiresAt,
		TokenError:   string(s.Token.Error),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(st.maxAge)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(st.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// Decode verifies raw and returns the session it carries.
func (st *Store) Decode(raw string) (Session, error) {
	var claims sessionClaims
	if err := st.parse(raw, &claims); err != nil {
		return Session{}, err
	}

	accessToken, err := st.cipher.Open(claims.AccessToken)
	if err != nil {
		return Session{}, fmt.Errorf("failed to open access token: %w", err)
	}
	refreshToken, err := st.cipher.Open(claims.RefreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("failed to open refresh token: %w", err)
	}

	return Session{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Token: TokenRecord{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    claims.TokenExpiry,
			Error:        TokenError(claims.TokenError),
		},
	}, nil
}

func (st *Store) parse(raw string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return st.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(st.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("invalid session cookie: %w", err)
	}
	return nil
}

// Load returns the session from the request cookie.
func (st *Store) Load(r *http.Request) (Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	return st.Decode(cookie.Value)
}

// Save writes s as the session cookie.
func (st *Store) Save(w http.ResponseWriter, s Session) error {
	value, err := st.Encode(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, st.cookie(CookieName, value, st.maxAge))
	return nil
}

// Clear removes the session and API key cookies.
func (st *Store) Clear(w http.ResponseWriter) {
	http.SetCookie(w, st.cookie(CookieName, "", -1))
	st.ClearAPIKey(w)
}

// ClearAPIKey removes only the API key cookie.
func (st *Store) ClearAPIKey(w http.ResponseWriter) {
	http.SetCookie(w, st.cookie(APIKeyCookieName, "", -1))
}

// SaveAPIKey stores the user's OpenAI key in its own signed cookie.
func (st *Store) SaveAPIKey(w http.ResponseWriter, key string) error {
	sealed, err := st.cipher.Seal(key)
	if err != nil {
		return fmt.Errorf("failed to seal API key: %w", err)
	}

	now := st.now()
	claims := apiKeyClaims{
		Key: sealed,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(st.maxAge)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(st.secret)
	if err != nil {
		return fmt.Errorf("failed to sign API key: %w", err)
	}

	http.SetCookie(w, st.cookie(APIKeyCookieName, signed, st.maxAge))
	return nil
}

// LoadAPIKey returns the stored OpenAI key, or "" when none is stored or
// the cookie does not verify.
func (st *Store) LoadAPIKey(r *http.Request) string {
	cookie, err := r.Cookie(APIKeyCookieName)
	if err != nil {
		return ""
	}

	var claims apiKeyClaims
	if err := st.parse(cookie.Value, &claims); err != nil {
		return ""
	}
	key, err := st.cipher.Open(claims.Key)
	if err != nil {
		return ""
	}
	return key
}

func (st *Store) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	seconds := int(maxAge.Seconds())
	if maxAge < 0 {
		seconds = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   seconds,
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
