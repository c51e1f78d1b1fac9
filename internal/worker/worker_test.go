package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/fitnix/console/internal/db"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

var errOffline = errors.New("dial tcp: connect: network is unreachable")

func offlineTransport(calls *int) http.RoundTripper {
	return roundTripFunc(func(*http.Request) (*http.Response, error) {
		*calls++
		return nil, errOffline
	})
}

func activeWorker(t *testing.T, caches CacheStorage, opts ...Option) *Worker {
	t.Helper()
	w := New(caches, opts...)
	require.NoError(t, w.Activate(context.Background()))
	return w
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// TestWorker_PassesThroughNetworkResponse verifies responses, including
// error statuses, are returned unmodified.
func TestWorker_PassesThroughNetworkResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Member not found"}`))
	}))
	defer srv.Close()

	w := activeWorker(t, NewMemoryCacheStorage())
	client := &http.Client{Transport: w}

	resp, err := client.Get(srv.URL + "/api/admin/members/9")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-Upstream"))
	assert.Equal(t, `{"error":"Member not found"}`, readBody(t, resp))
}

// TestWorker_OfflineResponse verifies the synthesized response when nothing is
// cached.
func TestWorker_OfflineResponse(t *testing.T) {
	for _, rawURL := range []string{
		"http://api.example.test/api/packages/",
		"https://api.example.test/api/finance/transactions",
	} {
		t.Run(rawURL, func(t *testing.T) {
			calls := 0
			w := activeWorker(t, NewMemoryCacheStorage(), WithNetwork(offlineTransport(&calls)))

			req, _ := http.NewRequest(http.MethodGet, rawURL, nil)
			resp, err := w.RoundTrip(req)
			require.NoError(t, err)

			assert.Equal(t, 1, calls, "network must be attempted exactly once")
			assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
			assert.Equal(t, "503 Service Unavailable", resp.Status)
			assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
			assert.True(t, IsOffline(resp))
			assert.Equal(t, OfflineBody, readBody(t, resp))
		})
	}
}

// TestWorker_ServesCachedResponse covers the cache fallback branch. Nothing in
// the console writes to the cache during normal operation; the branch is
// reached here only through explicit seeding.
func TestWorker_ServesCachedResponse(t *testing.T) {
	ctx := context.Background()
	caches := NewMemoryCacheStorage()
	calls := 0
	w := activeWorker(t, caches, WithNetwork(offlineTransport(&calls)))

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.test/api/packages/", nil)
	seed := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"packages":[]}`)),
	}
	require.NoError(t, caches.Put(ctx, "api-v1", req, seed))

	resp, err := w.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, IsOffline(resp))
	assert.Equal(t, `{"packages":[]}`, readBody(t, resp))

	other, _ := http.NewRequest(http.MethodPost, "https://api.example.test/api/packages/", nil)
	resp, err = w.RoundTrip(other)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "match is per method and URL")
}

// TestWorker_NonHTTPPassThrough verifies other schemes never reach the
// network strategy.
func TestWorker_NonHTTPPassThrough(t *testing.T) {
	networkCalls := 0
	fallbackErr := errors.New("unsupported scheme")
	var fallbackURL string

	w := activeWorker(t, NewMemoryCacheStorage(),
		WithNetwork(offlineTransport(&networkCalls)),
		WithFallback(roundTripFunc(func(req *http.Request) (*http.Response, error) {
			fallbackURL = req.URL.String()
			return nil, fallbackErr
		})),
	)

	req, _ := http.NewRequest(http.MethodGet, "chrome-extension://abc/icon.png", nil)
	resp, err := w.RoundTrip(req)

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, fallbackErr)
	assert.Equal(t, 0, networkCalls)
	assert.Equal(t, "chrome-extension://abc/icon.png", fallbackURL)
}

// TestWorker_InstallingHasNoFallback verifies requests before activation go
// straight to the network.
func TestWorker_InstallingHasNoFallback(t *testing.T) {
	calls := 0
	w := New(NewMemoryCacheStorage(), WithNetwork(offlineTransport(&calls)))
	assert.Equal(t, StateInstalling, w.State())

	req, _ := http.NewRequest(http.MethodGet, "http://api.example.test/api/", nil)
	resp, err := w.RoundTrip(req)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, errOffline)
}

// TestWorker_CallerCancellation verifies a cancelled request is not answered
// from the fallback.
func TestWorker_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := activeWorker(t, NewMemoryCacheStorage(), WithNetwork(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, r.Context().Err()
	})))

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://api.example.test/api/", nil)
	resp, err := w.RoundTrip(req)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestWorker_ActivationPurge verifies no named collection survives activation.
func TestWorker_ActivationPurge(t *testing.T) {
	ctx := context.Background()
	handle := db.NewHandle(t.TempDir())
	defer handle.Close()

	storages := map[string]CacheStorage{
		"memory": NewMemoryCacheStorage(),
		"sqlite": NewSQLiteCacheStorage(handle),
	}
	for name, caches := range storages {
		t.Run(name, func(t *testing.T) {
			for _, cache := range []string{"api-v1", "api-v2", "static"} {
				req, _ := http.NewRequest(http.MethodGet, "https://api.example.test/"+cache, nil)
				resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("x"))}
				require.NoError(t, caches.Put(ctx, cache, req, resp))
			}
			keys, err := caches.Keys(ctx)
			require.NoError(t, err)
			require.Len(t, keys, 3)

			w := New(caches)
			require.NoError(t, w.Activate(ctx))

			keys, err = caches.Keys(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys)
			assert.Equal(t, StateActive, w.State())
		})
	}
}
