package session

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/teemow/inboxsorter/internal/logging"
)

type contextKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached by the middleware.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// Middleware runs the Gate for every protected request.
type Middleware struct {
	store  *Store
	gate   *Gate
	logger *slog.Logger
}

// NewMiddleware returns a Middleware backed by store and gate.
func NewMiddleware(store *Store, gate *Gate, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{store: store, gate: gate, logger: logger}
}

// Require resolves the session token before calling next. Requests without
// a usable token are handed to denied instead. A record changed by the gate
// is written back to the cookie, including one marked RefreshFailed.
func (m *Middleware) Require(denied http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := m.store.Load(r)
			if err != nil {
				m.logger.Debug("no valid session", logging.Err(err))
				denied.ServeHTTP(w, r)
				return
			}

			record, err := m.gate.Resolve(r.Context(), &s.Token, nil)
			if err != nil {
				denied.ServeHTTP(w, r)
				return
			}

			if record != s.Token {
				s.Token = record
				if err := m.store.Save(w, s); err != nil {
					m.logger.Error("failed to persist refreshed session", logging.UserHash(s.Email), logging.Err(err))
				}
			}

			if !record.Usable() {
				m.logger.Info("session token unusable, sign-in required", logging.UserHash(s.Email))
				denied.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
