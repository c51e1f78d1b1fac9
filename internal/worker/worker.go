// Package worker implements the network-first request strategy that sits
// beneath the API client: try the network once, fall back to a cached
// response, and otherwise answer with a fixed offline response.
package worker

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/kimhsiao/fitnix/console/internal/logging"
)

// OfflineBody is the body of the synthesized response served when the network
// is unreachable and nothing is cached.
const OfflineBody = "Offline - No cached data available"

// OfflineHeader marks responses synthesized by the worker rather than
// received from a server.
const OfflineHeader = "X-Fitnix-Offline"

// State is the worker's install lifecycle state.
type State int32

const (
	StateInstalling State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Worker is an http.RoundTripper applying the network-first strategy to
// http and https requests once active.
type Worker struct {
	network  http.RoundTripper
	fallback http.RoundTripper
	caches   CacheStorage

	state atomic.Int32
}

// Option configures a Worker.
type Option func(*Worker)

// WithNetwork sets the transport used for http and https requests.
func WithNetwork(rt http.RoundTripper) Option {
	return func(w *Worker) { w.network = rt }
}

// WithFallback sets the transport that handles every other scheme.
func WithFallback(rt http.RoundTripper) Option {
	return func(w *Worker) { w.fallback = rt }
}

// New creates a worker in the Installing state. Both transports default to
// http.DefaultTransport.
func New(caches CacheStorage, opts ...Option) *Worker {
	w := &Worker{
		network:  http.DefaultTransport,
		fallback: http.DefaultTransport,
		caches:   caches,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Activate deletes every named cache collection and moves the worker to
// Active. It may be called again to purge once more.
func (w *Worker) Activate(ctx context.Context) error {
	names, err := w.caches.Keys(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := w.caches.Delete(ctx, name); err != nil {
			return err
		}
	}

	w.state.Store(int32(StateActive))
	logging.Info("Network worker activated", map[string]interface{}{
		"purged_caches": len(names),
	})
	return nil
}

// RoundTrip implements http.RoundTripper.
func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	scheme := strings.ToLower(req.URL.Scheme)
	if scheme != "http" && scheme != "https" {
		return w.fallback.RoundTrip(req)
	}
	if w.State() != StateActive {
		return w.network.RoundTrip(req)
	}

	resp, err := w.network.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	// A caller that gave up gets its own cancellation back.
	if req.Context().Err() != nil {
		return nil, err
	}

	cached, ok, cacheErr := w.caches.Match(req.Context(), req)
	if cacheErr != nil {
		logging.Warn("Cache lookup failed", map[string]interface{}{
			"url":   req.URL.String(),
			"error": cacheErr.Error(),
		})
	}
	if ok {
		logging.Warn("Network unavailable, serving cached response", map[string]interface{}{
			"url":   req.URL.String(),
			"error": err.Error(),
		})
		return cached, nil
	}

	logging.Warn("Network unavailable, no cached response", map[string]interface{}{
		"url":   req.URL.String(),
		"error": err.Error(),
	})
	return offlineResponse(req), nil
}

// IsOffline reports whether resp was synthesized because the network could
// not be reached and nothing was cached.
func IsOffline(resp *http.Response) bool {
	return resp != nil && resp.Header.Get(OfflineHeader) == "1"
}

func offlineResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:     "503 Service Unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header: http.Header{
			"Content-Type": []string{"text/plain"},
			OfflineHeader:  []string{"1"},
		},
		Body:          io.NopCloser(strings.NewReader(OfflineBody)),
		ContentLength: int64(len(OfflineBody)),
		Request:       req,
	}
}
