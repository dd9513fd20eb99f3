package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxxma/MeetMind/internal/apierr"
	"github.com/lxxma/MeetMind/internal/credstore"
	"github.com/lxxma/MeetMind/internal/logger"
)

// stubRefresher swaps the stored access token for next and counts calls.
type stubRefresher struct {
	store credstore.Store
	next  string
	fail  bool
	calls atomic.Int64
	delay time.Duration
}

func (r *stubRefresher) Refresh(ctx context.Context) error {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.fail {
		return apierr.New(apierr.KindSessionExpired, 0, "refresh rejected")
	}
	return r.store.SetAccessToken(r.next)
}

func newTestClient(t *testing.T, url string) (*Client, *credstore.MemStore) {
	t.Helper()
	store := credstore.NewMemStore()
	c := NewClient(Config{BaseURL: url, Timeout: 5 * time.Second}, store, logger.Nop())
	return c, store
}

func TestDoWithoutTokenNeverTouchesNetwork(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	err := c.Do(context.Background(), "GET", "/rooms/", nil, nil)

	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
	assert.Equal(t, int64(0), hits.Load())
}

func TestDoAttachesBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer A1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		json.NewEncoder(w).Encode(map[string]string{"name": "algebra"})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	require.NoError(t, store.SetSession("A1", "R1", nil))

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.Do(context.Background(), "GET", "/topics/1/", nil, &out))
	assert.Equal(t, "algebra", out.Name)
}

func TestDoRefreshesOnceAndRetriesWithNewToken(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer A2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]int{"id": 42})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	require.NoError(t, store.SetSession("A1", "R1", nil))
	ref := &stubRefresher{store: store, next: "A2"}
	c.SetRefresher(ref)

	var out struct {
		ID int `json:"id"`
	}
	require.NoError(t, c.Do(context.Background(), "GET", "/rooms/42/", nil, &out))

	assert.Equal(t, 42, out.ID)
	assert.Equal(t, "A2", store.AccessToken())
	assert.Equal(t, int64(1), ref.calls.Load())
	assert.Equal(t, int64(2), hits.Load())
}

func TestDoRefreshFailureClearsStoreAndExpires(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	require.NoError(t, store.SetSession("A1", "R1", nil))
	c.SetRefresher(&stubRefresher{store: store, fail: true})

	err := c.Do(context.Background(), "GET", "/rooms/", nil, nil)

	assert.ErrorIs(t, err, apierr.ErrSessionExpired)
	assert.Empty(t, store.AccessToken())
	assert.Empty(t, store.RefreshToken())
}

func TestDoNeverRetriesMoreThanOnce(t *testing.T) {
	// Backend rejects even the refreshed token: exactly one refresh, exactly
	// one retry, then give up with an expired session.
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	require.NoError(t, store.SetSession("A1", "R1", nil))
	ref := &stubRefresher{store: store, next: "A2"}
	c.SetRefresher(ref)

	err := c.Do(context.Background(), "GET", "/rooms/", nil, nil)

	assert.ErrorIs(t, err, apierr.ErrSessionExpired)
	assert.Equal(t, int64(1), ref.calls.Load())
	assert.Equal(t, int64(2), hits.Load())
	assert.Empty(t, store.RefreshToken())
}

func TestDoForbiddenIsNotASessionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Only the room creator can edit the room"})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	require.NoError(t, store.SetSession("A1", "R1", nil))
	ref := &stubRefresher{store: store, next: "A2"}
	c.SetRefresher(ref)

	err := c.Do(context.Background(), "PUT", "/rooms/1/", nil, nil)

	assert.ErrorIs(t, err, apierr.ErrForbidden)
	assert.NotErrorIs(t, err, apierr.ErrSessionExpired)
	assert.Equal(t, int64(0), ref.calls.Load())
	// 403 must not clear the session.
	assert.Equal(t, "A1", store.AccessToken())
	assert.Equal(t, "Only the room creator can edit the room", apierr.Detail(err))
}

func TestDoStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantDetail string
	}{
		{
			name:    "not found",
			status:  404,
			body:    `{"detail":"Room not found."}`,
			wantErr: apierr.ErrNotFound, wantDetail: "Room not found.",
		},
		{
			name:    "validation with detail",
			status:  400,
			body:    `{"detail":"Message content is required."}`,
			wantErr: apierr.ErrValidation, wantDetail: "Message content is required.",
		},
		{
			name:    "server error with error key",
			status:  500,
			body:    `{"error":"Failed to fetch rooms. Please try again later."}`,
			wantErr: apierr.ErrServer, wantDetail: "Failed to fetch rooms. Please try again later.",
		},
		{
			name:    "server error without body",
			status:  502,
			body:    "",
			wantErr: apierr.ErrServer, wantDetail: "server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				if tt.body != "" {
					w.Write([]byte(tt.body))
				}
			}))
			defer srv.Close()

			c, store := newTestClient(t, srv.URL)
			require.NoError(t, store.SetSession("A1", "R1", nil))

			err := c.Do(context.Background(), "GET", "/x/", nil, nil)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantDetail, apierr.Detail(err))
		})
	}
}

func TestConcurrent401sAllCompleteWithSharedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer A2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	require.NoError(t, store.SetSession("A1", "R1", nil))
	// The stub is not single-flight; the controller is. Here we only assert
	// that every concurrent caller lands on the refreshed token.
	ref := &stubRefresher{store: store, next: "A2", delay: 50 * time.Millisecond}
	c.SetRefresher(ref)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), "GET", "/rooms/", nil, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "call %d", i)
	}
	assert.Equal(t, "A2", store.AccessToken())
}

func TestBreakerOpensAfterConsecutiveTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening: every dial fails

	store := credstore.NewMemStore()
	require.NoError(t, store.SetSession("A1", "R1", nil))
	c := NewClient(Config{
		BaseURL:         srv.URL,
		Timeout:         time.Second,
		BreakerFailures: 2,
		BreakerOpenFor:  time.Minute,
	}, store, logger.Nop())

	for i := 0; i < 2; i++ {
		err := c.Do(context.Background(), "GET", "/rooms/", nil, nil)
		assert.ErrorIs(t, err, apierr.ErrUnavailable)
	}

	err := c.Do(context.Background(), "GET", "/rooms/", nil, nil)
	require.ErrorIs(t, err, apierr.ErrUnavailable)
	var e *apierr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "backend circuit open", e.Detail)
}
