package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeRefresher struct {
	calls  int
	token  *oauth2.Token
	err    error
	gotArg string
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls++
	f.gotArg = refreshToken
	if f.err != nil {
		return nil, f.err
	}
	tok := *f.token
	return &tok, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestGate(r Refresher) *Gate {
	g := NewGate(r, nil, nil)
	g.now = func() time.Time { return testNow }
	return g
}

func TestGate_FirstSignIn(t *testing.T) {
	refresher := &fakeRefresher{}
	gate := newTestGate(refresher)

	issued := &oauth2.Token{AccessToken: "a1", RefreshToken: "r1", Expiry: testNow.Add(time.Hour)}
	record, err := gate.Resolve(context.Background(), nil, issued)
	require.NoError(t, err)

	assert.Equal(t, TokenRecord{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow.Add(time.Hour).Unix()}, record)
	assert.Zero(t, refresher.calls)
}

func TestGate_FirstSignInWithoutExpiry(t *testing.T) {
	gate := newTestGate(&fakeRefresher{})

	record, err := gate.Resolve(context.Background(), nil, &oauth2.Token{AccessToken: "a1"})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(time.Hour).Unix(), record.ExpiresAt)
}

func TestGate_NoSession(t *testing.T) {
	gate := newTestGate(&fakeRefresher{})

	_, err := gate.Resolve(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestGate_Resolve(t *testing.T) {
	newExpiry := testNow.Add(time.Hour)

	tests := []struct {
		name      string
		prior     TokenRecord
		refresher *fakeRefresher
		want      TokenRecord
		wantCalls int
	}{
		{
			name:      "valid token passes through",
			prior:     TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Unix() + 1},
			refresher: &fakeRefresher{},
			want:      TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Unix() + 1},
		},
		{
			name:      "valid token without refresh token passes through",
			prior:     TokenRecord{AccessToken: "a", ExpiresAt: testNow.Unix() + 3600},
			refresher: &fakeRefresher{},
			want:      TokenRecord{AccessToken: "a", ExpiresAt: testNow.Unix() + 3600},
		},
		{
			name:      "expired without refresh token is returned unchanged",
			prior:     TokenRecord{AccessToken: "a", ExpiresAt: testNow.Unix() - 10},
			refresher: &fakeRefresher{},
			want:      TokenRecord{AccessToken: "a", ExpiresAt: testNow.Unix() - 10},
		},
		{
			name:      "expiry equal to now counts as expired",
			prior:     TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Unix()},
			refresher: &fakeRefresher{token: &oauth2.Token{AccessToken: "b", Expiry: newExpiry}},
			want:      TokenRecord{AccessToken: "b", RefreshToken: "r", ExpiresAt: newExpiry.Unix()},
			wantCalls: 1,
		},
		{
			name:      "refresh keeps previous refresh token",
			prior:     TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Unix() - 100},
			refresher: &fakeRefresher{token: &oauth2.Token{AccessToken: "b", Expiry: newExpiry}},
			want:      TokenRecord{AccessToken: "b", RefreshToken: "r", ExpiresAt: newExpiry.Unix()},
			wantCalls: 1,
		},
		{
			name:      "refresh adopts rotated refresh token",
			prior:     TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Unix() - 100},
			refresher: &fakeRefresher{token: &oauth2.Token{AccessToken: "b", RefreshToken: "r2", Expiry: newExpiry}},
			want:      TokenRecord{AccessToken: "b", RefreshToken: "r2", ExpiresAt: newExpiry.Unix()},
			wantCalls: 1,
		},
		{
			name:      "refresh returning a past expiry is pushed into the future",
			prior:     TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Unix() - 100},
			refresher: &fakeRefresher{token: &oauth2.Token{AccessToken: "b", Expiry: testNow.Add(-time.Minute)}},
			want:      TokenRecord{AccessToken: "b", RefreshToken: "r", ExpiresAt: testNow.Add(time.Hour).Unix()},
			wantCalls: 1,
		},
		{
			name:      "refresh failure marks record and keeps old access token",
			prior:     TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Unix() - 100},
			refresher: &fakeRefresher{err: errors.New("invalid_grant")},
			want:      TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Unix() - 100, Error: RefreshFailed},
			wantCalls: 1,
		},
		{
			name:      "successful retry clears a previous failure",
			prior:     TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Unix() - 100, Error: RefreshFailed},
			refresher: &fakeRefresher{token: &oauth2.Token{AccessToken: "b", Expiry: newExpiry}},
			want:      TokenRecord{AccessToken: "b", RefreshToken: "r", ExpiresAt: newExpiry.Unix()},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := newTestGate(tt.refresher)
			prior := tt.prior

			got, err := gate.Resolve(context.Background(), &prior, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, tt.refresher.calls)
			assert.Equal(t, tt.prior, prior, "prior record must not be modified")
			if tt.wantCalls == 1 {
				assert.Equal(t, "r", tt.refresher.gotArg)
			}
			if tt.wantCalls == 1 && got.Error == "" {
				assert.Greater(t, got.ExpiresAt, tt.prior.ExpiresAt)
				assert.True(t, got.Valid(testNow))
			}
		})
	}
}

func TestTokenRecord_Usable(t *testing.T) {
	assert.True(t, TokenRecord{AccessToken: "a"}.Usable())
	assert.False(t, TokenRecord{}.Usable())
	assert.False(t, TokenRecord{AccessToken: "a", Error: RefreshFailed}.Usable())
}
