package scheduler

import (
	"context"
	"net/http"
	"time"
)

// Prober reports whether the API is reachable.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) bool

// Probe calls f(ctx).
func (f ProberFunc) Probe(ctx context.Context) bool { return f(ctx) }

// HTTPProber sends a HEAD request to a URL. Any response, whatever its
// status, counts as online. It must use a plain transport: the network
// worker never fails and would always look online.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober for url with the given per-probe timeout.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url:    url,
		client: &http.Client{Transport: http.DefaultTransport, Timeout: timeout},
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
