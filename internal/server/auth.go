package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxsorter/internal/google"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
	"github.com/teemow/inboxsorter/internal/session"
)

const (
	stateCookieName = "inboxsorter_oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

// Sign-in failures reported to the home page as ?error=.
const (
	signInDenied  = "access_denied"
	signInFailed  = "auth_failed"
	signInExpired = "session_expired"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, google.AuthCodeURL(s.opts.OAuthConfig, state), http.StatusFound)
}

func (s *Server) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.WithOperation(s.logger, "oauth_callback")
	query := r.URL.Query()

	if e := query.Get("error"); e != "" {
		s.clearStateCookie(w)
		s.opts.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		logger.Info("sign-in rejected by provider", slog.String("provider_error", e))
		redirectHome(w, r, signInDenied)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	state := query.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		s.opts.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		logger.Warn("OAuth state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	s.clearStateCookie(w)

	code := query.Get("code")
	if code == "" {
		s.opts.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	sess, err := s.signIn(ctx, code)
	if err != nil {
		s.opts.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		logger.Error("sign-in failed", logging.Err(err))
		redirectHome(w, r, signInFailed)
		return
	}

	if err := s.opts.Store.Save(w, sess); err != nil {
		s.opts.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		logger.Error("failed to write session", logging.UserHash(sess.Email), logging.Err(err))
		redirectHome(w, r, signInFailed)
		return
	}

	s.opts.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	s.opts.Metrics.RecordSignIn(ctx)
	logger.Info("user signed in", logging.UserHash(sess.Email))
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// signIn exchanges code, verifies the ID token and builds the session.
func (s *Server) signIn(ctx context.Context, code string) (session.Session, error) {
	exchangeCtx := ctx
	if s.opts.HTTPClient != nil {
		exchangeCtx = context.WithValue(ctx, oauth2.HTTPClient, s.opts.HTTPClient)
	}

	token, err := s.opts.OAuthConfig.Exchange(exchangeCtx, code)
	if err != nil {
		return session.Session{}, err
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return session.Session{}, errors.New("token response carries no id_token")
	}
	identity, err := s.opts.Verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return session.Session{}, err
	}

	record, err := s.opts.Gate.Resolve(ctx, nil, token)
	if err != nil {
		return session.Session{}, err
	}

	return session.Session{
		Subject: identity.Subject,
		Email:   identity.Email,
		Name:    identity.Name,
		Token:   record,
	}, nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.opts.Store.Load(r); err == nil {
		s.opts.Lists.Forget(r.Context(), sess.Email)
		s.opts.Metrics.RecordSignOut(r.Context())
		s.logger.Info("user signed out", logging.UserHash(sess.Email))
	}
	s.opts.Store.Clear(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// redirectHome sends the browser to the sign-in page with a reason code.
func redirectHome(w http.ResponseWriter, r *http.Request, reason string) {
	target := "/"
	if reason != "" {
		target += "?" + url.Values{"error": {reason}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
