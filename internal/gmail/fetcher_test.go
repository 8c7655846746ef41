package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGmail struct {
	listCalls atomic.Int32
	getCalls  atomic.Int32

	// hold keeps each message request open, to observe the fan-out.
	hold         time.Duration
	inFlight     atomic.Int32
	peakInFlight atomic.Int32

	total      int
	listStatus int
	failIDs    map[string]int
	messages   map[string]map[string]any
}

func (f *fakeGmail) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		f.listCalls.Add(1)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		if f.listStatus != 0 {
			writeAPIError(w, f.listStatus)
			return
		}

		max, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		n := min(max, f.total)
		msgs := make([]map[string]string, 0, n)
		for i := range n {
			msgs = append(msgs, map[string]string{"id": fmt.Sprintf("m%d", i)})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": msgs})
	})

	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.getCalls.Add(1)
		n := f.inFlight.Add(1)
		defer f.inFlight.Add(-1)
		for {
			peak := f.peakInFlight.Load()
			if n <= peak || f.peakInFlight.CompareAndSwap(peak, n) {
				break
			}
		}
		if f.hold > 0 {
			time.Sleep(f.hold)
		}
		id := r.PathValue("id")

		if status, ok := f.failIDs[id]; ok {
			writeAPIError(w, status)
			return
		}

		if msg, ok := f.messages[id]; ok {
			_ = json.NewEncoder(w).Encode(msg)
			return
		}

		assert.Equal(t, "metadata", r.URL.Query().Get("format"))
		assert.ElementsMatch(t, []string{"From", "Subject"}, r.URL.Query()["metadataHeaders"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      id,
			"snippet": "snippet of " + id,
			"payload": map[string]any{
				"headers": []map[string]string{
					{"name": "from", "value": "Sender " + id},
					{"name": "SUBJECT", "value": "Subject " + id},
				},
			},
		})
	})

	return mux
}

func writeAPIError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": http.StatusText(status)},
	})
}

func newTestFetcher(t *testing.T, fake *fakeGmail) *Fetcher {
	t.Helper()

	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	fetcher, err := NewFetcher(context.Background(), "test-token", Options{
		Endpoint:    srv.URL + "/",
		HTTPClient:  srv.Client(),
		Concurrency: 4,
	})
	require.NoError(t, err)
	return fetcher
}

func TestFetcher_List(t *testing.T) {
	fake := &fakeGmail{total: 5}
	fetcher := newTestFetcher(t, fake)

	summaries, err := fetcher.List(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, []MessageSummary{
		{ID: "m0", Sender: "Sender m0", Subject: "Subject m0", Snippet: "snippet of m0"},
		{ID: "m1", Sender: "Sender m1", Subject: "Subject m1", Snippet: "snippet of m1"},
		{ID: "m2", Sender: "Sender m2", Subject: "Subject m2", Snippet: "snippet of m2"},
	}, summaries)
	assert.Equal(t, int32(1), fake.listCalls.Load())
	assert.Equal(t, int32(3), fake.getCalls.Load())
}

func TestFetcher_ListBoundsConcurrency(t *testing.T) {
	fake := &fakeGmail{total: 20, hold: 25 * time.Millisecond}
	fetcher := newTestFetcher(t, fake)
	require.Equal(t, 4, fetcher.concurrency)

	summaries, err := fetcher.List(context.Background(), 20)
	require.NoError(t, err)

	require.Len(t, summaries, 20)
	for i, s := range summaries {
		assert.Equal(t, fmt.Sprintf("m%d", i), s.ID, "list order is kept")
	}
	assert.Equal(t, int32(20), fake.getCalls.Load())
	assert.LessOrEqual(t, fake.peakInFlight.Load(), int32(fetcher.concurrency))
	assert.Greater(t, fake.peakInFlight.Load(), int32(1), "metadata requests run in parallel")
}

func TestFetcher_ListClampsCount(t *testing.T) {
	fake := &fakeGmail{total: 100}
	fetcher := newTestFetcher(t, fake)

	summaries, err := fetcher.List(context.Background(), 100)
	require.NoError(t, err)

	assert.Len(t, summaries, MaxListCount)
	assert.Equal(t, int32(1), fake.listCalls.Load())
	assert.LessOrEqual(t, fake.getCalls.Load(), int32(MaxListCount))
}

func TestFetcher_ListDropsFailedItems(t *testing.T) {
	fake := &fakeGmail{total: 4, failIDs: map[string]int{"m1": http.StatusInternalServerError, "m2": http.StatusNotFound}}
	fetcher := newTestFetcher(t, fake)

	summaries, err := fetcher.List(context.Background(), 4)
	require.NoError(t, err)

	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"m0", "m3"}, ids)
}

func TestFetcher_ListErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, KindUnauthenticated},
		{"server error", http.StatusInternalServerError, KindUpstream},
		{"rate limited", http.StatusTooManyRequests, KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newTestFetcher(t, &fakeGmail{listStatus: tt.status})

			_, err := fetcher.List(context.Background(), 5)

			var fe *FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.wantKind, fe.Kind)
			assert.Equal(t, "list", fe.Op)
		})
	}
}

func TestFetcher_ListCancelled(t *testing.T) {
	fetcher := newTestFetcher(t, &fakeGmail{total: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summaries, err := fetcher.List(ctx, 5)
	assert.Nil(t, summaries)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcher_Get(t *testing.T) {
	tests := []struct {
		name    string
		message map[string]any
		want    MessageDetail
	}{
		{
			name: "plain text preferred",
			message: map[string]any{
				"id":      "x1",
				"snippet": "snip",
				"payload": map[string]any{
					"mimeType": "multipart/alternative",
					"headers": []map[string]string{
						{"name": "From", "value": "Alice <alice@example.com>"},
						{"name": "Subject", "value": "Quarterly review"},
					},
					"parts": []map[string]any{
						{"mimeType": "text/html", "body": map[string]string{"data": enc("<p>html</p>")}},
						{"mimeType": "text/plain", "body": map[string]string{"data": enc("plain")}},
					},
				},
			},
			want: MessageDetail{ID: "x1", Sender: "Alice <alice@example.com>", Subject: "Quarterly review", Content: "plain"},
		},
		{
			name: "html when no text",
			message: map[string]any{
				"id": "x2",
				"payload": map[string]any{
					"mimeType": "text/html",
					"body":     map[string]string{"data": enc("<p>only</p>")},
				},
			},
			want: MessageDetail{ID: "x2", Sender: "Unknown", Subject: "(No subject)", Content: "<p>only</p>"},
		},
		{
			name: "snippet fallback",
			message: map[string]any{
				"id":      "x3",
				"snippet": "preview",
				"payload": map[string]any{
					"mimeType": "multipart/mixed",
					"headers":  []map[string]string{{"name": "Subject", "value": ""}},
				},
			},
			want: MessageDetail{ID: "x3", Sender: "Unknown", Subject: "(No subject)", Content: "preview"},
		},
		{
			name:    "nothing at all",
			message: map[string]any{"id": "x4"},
			want:    MessageDetail{ID: "x4", Sender: "Unknown", Subject: "(No subject)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.message["id"].(string)
			fetcher := newTestFetcher(t, &fakeGmail{messages: map[string]map[string]any{id: tt.message}})

			got, err := fetcher.Get(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetcher_GetErrors(t *testing.T) {
	fetcher := newTestFetcher(t, &fakeGmail{failIDs: map[string]int{
		"revoked": http.StatusUnauthorized,
		"broken":  http.StatusBadGateway,
	}})

	_, err := fetcher.Get(context.Background(), "revoked")
	assert.True(t, IsUnauthenticated(err))

	_, err = fetcher.Get(context.Background(), "broken")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindUpstream, fe.Kind)
	assert.Equal(t, "get", fe.Op)
}
