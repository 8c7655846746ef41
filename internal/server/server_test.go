package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxsorter/internal/cache"
	"github.com/teemow/inboxsorter/internal/classifier"
	"github.com/teemow/inboxsorter/internal/gmail"
	"github.com/teemow/inboxsorter/internal/google"
	"github.com/teemow/inboxsorter/internal/session"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testEmail  = "jane@example.com"
)

var testInbox = []gmail.MessageSummary{
	{ID: "m1", Sender: "Alice Example", Subject: "Lunch", Snippet: "Shall we meet at noon"},
	{ID: "m2", Sender: "Deals Team", Subject: "Offer", Snippet: "You won the lottery, click here"},
}

type fakeFetcher struct {
	mu        sync.Mutex
	list      []gmail.MessageSummary
	listErr   error
	detail    gmail.MessageDetail
	getErr    error
	gotCount  int
	gotID     string
	gotTokens []string

	// listDelay holds List open, e.g. to keep a request in flight.
	listDelay  time.Duration
	listCalls  atomic.Int32
	listCtxErr error
}

func (f *fakeFetcher) factory(_ context.Context, accessToken string) (Fetcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotTokens = append(f.gotTokens, accessToken)
	return f, nil
}

func (f *fakeFetcher) List(ctx context.Context, count int) ([]gmail.MessageSummary, error) {
	f.listCalls.Add(1)
	if f.listDelay > 0 {
		select {
		case <-time.After(f.listDelay):
		case <-ctx.Done():
			f.mu.Lock()
			f.listCtxErr = ctx.Err()
			f.mu.Unlock()
			return nil, &gmail.FetchError{Kind: gmail.KindUpstream, Op: "list", Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotCount = count
	if f.listErr != nil {
		return nil, f.listErr
	}
	if count < len(f.list) {
		return f.list[:count], nil
	}
	return f.list, nil
}

func (f *fakeFetcher) Get(_ context.Context, id string) (gmail.MessageDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotID = id
	if f.getErr != nil {
		return gmail.MessageDetail{}, f.getErr
	}
	return f.detail, nil
}

type fakeClassifier struct {
	result  classifier.Classification
	calls   atomic.Int32
	breaker string

	mu      sync.Mutex
	keys    []string
	content []string
}

func (c *fakeClassifier) Classify(_ context.Context, content, apiKey string) classifier.Classification {
	c.calls.Add(1)
	c.mu.Lock()
	c.keys = append(c.keys, apiKey)
	c.content = append(c.content, content)
	c.mu.Unlock()
	return c.result
}

func (c *fakeClassifier) BreakerState() string {
	if c.breaker == "" {
		return "closed"
	}
	return c.breaker
}

type fakeVerifier struct {
	identity google.Identity
	err      error
	gotRaw   string
}

func (v *fakeVerifier) Verify(_ context.Context, raw string) (google.Identity, error) {
	v.gotRaw = raw
	return v.identity, v.err
}

type fakeRefresher struct {
	token *oauth2.Token
	err   error
	calls atomic.Int32
}

func (r *fakeRefresher) Refresh(context.Context, string) (*oauth2.Token, error) {
	r.calls.Add(1)
	return r.token, r.err
}

type harness struct {
	server     *Server
	handler    http.Handler
	store      *session.Store
	lists      *cache.ListCache
	fetcher    *fakeFetcher
	classifier *fakeClassifier
	verifier   *fakeVerifier
	refresher  *fakeRefresher
	tokenCalls *atomic.Int32
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	return newHarnessWithContext(t, context.Background(), mutate...)
}

// newHarnessWithContext builds the server on ctx, the way serve passes its
// process context.
func newHarnessWithContext(t *testing.T, ctx context.Context, mutate ...func(*Options)) *harness {
	t.Helper()

	var tokenCalls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-new",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "rt-new",
			"id_token":      "raw-id-token",
		})
	}))
	t.Cleanup(tokenSrv.Close)

	oauthConfig := google.NewOAuthConfig("client-id", "client-secret", "http://localhost:8080/auth/callback")
	oauthConfig.Endpoint.TokenURL = tokenSrv.URL

	store, err := session.NewStore([]byte(testSecret), nil, false)
	require.NoError(t, err)

	h := &harness{
		store:      store,
		lists:      cache.NewListCache(cache.NewMemory(), cache.BackendMemory, time.Hour, nil, nil),
		fetcher:    &fakeFetcher{list: testInbox},
		classifier: &fakeClassifier{result: classifier.Classification{Category: classifier.Spam, Confidence: 70, Source: classifier.SourceKeyword}},
		verifier:   &fakeVerifier{identity: google.Identity{Subject: "sub-1", Email: testEmail, Name: "Jane Doe"}},
		refresher:  &fakeRefresher{},
		tokenCalls: &tokenCalls,
	}

	opts := Options{
		OAuthConfig:  oauthConfig,
		HTTPClient:   tokenSrv.Client(),
		Verifier:     h.verifier,
		Store:        store,
		Gate:         session.NewGate(h.refresher, nil, nil),
		Fetchers:     h.fetcher.factory,
		Classifier:   h.classifier,
		Lists:        h.lists,
		Version:      "test",
		CacheBackend: cache.BackendMemory,
	}
	for _, m := range mutate {
		m(&opts)
	}

	srv, err := New(ctx, opts)
	require.NoError(t, err)
	h.server = srv
	h.handler = srv.Handler()
	return h
}

// signedIn returns a session cookie whose access token expires at expiresAt.
func (h *harness) signedIn(t *testing.T, expiresAt time.Time) *http.Cookie {
	t.Helper()
	raw, err := h.store.Encode(session.Session{
		Subject: "sub-1",
		Email:   testEmail,
		Name:    "Jane Doe",
		Token: session.TokenRecord{
			AccessToken:  "at-current",
			RefreshToken: "rt-current",
			ExpiresAt:    expiresAt.Unix(),
		},
	})
	require.NoError(t, err)
	return &http.Cookie{Name: session.CookieName, Value: raw}
}

func (h *harness) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) get(target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return h.do(httptest.NewRequest(http.MethodGet, target, nil), cookies...)
}

func (h *harness) postJSON(target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return h.do(req, cookies...)
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

var (
	errUpstream        = &gmail.FetchError{Kind: gmail.KindUpstream, Op: "list", Err: errors.New("503 backend error")}
	errUnauthenticated = &gmail.FetchError{Kind: gmail.KindUnauthenticated, Op: "list", Err: errors.New("401 invalid credentials")}
)

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(context.Background(), Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "OAuth config is required")
	require.Contains(t, err.Error(), "classifier is required")
}

func (h *harness) postForm(target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req, cookies...)
}

func newToken(accessToken string) *oauth2.Token {
	return &oauth2.Token{AccessToken: accessToken, Expiry: time.Now().Add(time.Hour)}
}

func newRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}
