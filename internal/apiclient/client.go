// Package apiclient is the single HTTP client every Fitnix API call goes
// through. It attaches credentials and cache suppression headers to requests
// and turns failed responses into typed errors, clearing the session when the
// server rejects the credential itself.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kimhsiao/fitnix/console/internal/authz"
	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
	"github.com/kimhsiao/fitnix/console/internal/logging"
	"github.com/kimhsiao/fitnix/console/internal/session"
	"github.com/kimhsiao/fitnix/console/internal/worker"
)

// SessionStore is the part of the session store the client needs.
type SessionStore interface {
	Token(ctx context.Context) (string, error)
	Clear(ctx context.Context, reason session.Reason) error
}

// Client sends requests to the Fitnix API.
type Client struct {
	baseURL    string
	http       *http.Client
	sessions   SessionStore
	classifier *authz.Classifier
	onAuthFail func(*APIError)
	requestID  func() string
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the round tripper beneath the client, normally the
// network worker.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = rt }
}

// WithTimeout bounds every request. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithClassifier replaces the default 401 classifier.
func WithClassifier(cl *authz.Classifier) Option {
	return func(c *Client) { c.classifier = cl }
}

// OnAuthenticationFailure registers fn to run after the session has been
// cleared because the server rejected the credential. It is the console's
// "go to login" signal.
func OnAuthenticationFailure(fn func(*APIError)) Option {
	return func(c *Client) { c.onAuthFail = fn }
}

// New creates a client for baseURL (for example
// "https://fitnix-backend.onrender.com/api").
func New(baseURL string, sessions SessionStore, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Transport: http.DefaultTransport},
		sessions:   sessions,
		classifier: authz.NewClassifier(nil),
		requestID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get sends a GET request and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post sends body as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put sends body as JSON and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete sends a DELETE request and decodes the response into out.
func (c *Client) Delete(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends one request. path is relative to the base URL unless it is already
// absolute. body, when present, is encoded as JSON; json.RawMessage is sent
// verbatim. out may be nil.
//
// Errors are *APIError for any non-2xx response and an AppError with code
// NETWORK_FAILURE when no response was received.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	payload, err := encode(body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request body", err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to build request", err)
	}
	if err := c.prepare(ctx, req); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logging.Warn("API request failed", map[string]interface{}{
			"method":     method,
			"url":        req.URL.String(),
			"request_id": req.Header.Get("X-Request-ID"),
			"error":      err.Error(),
		})
		return apperrors.Wrap(apperrors.ErrNetworkFailure,
			fmt.Sprintf("%s %s: no response", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetworkFailure, "failed to read response body", err)
	}

	logging.Debug("API request completed", map[string]interface{}{
		"method":      method,
		"url":         req.URL.String(),
		"status":      resp.StatusCode,
		"request_id":  req.Header.Get("X-Request-ID"),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return apperrors.Wrap(apperrors.ErrHTTP, "failed to decode response body", err)
		}
		return nil
	}

	return c.fail(ctx, req, resp, data)
}

// prepare attaches the headers every request carries.
func (c *Client) prepare(ctx context.Context, req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Expires", "0")
	req.Header.Set("X-Request-ID", c.requestID())

	if c.sessions == nil {
		return nil
	}
	token, err := c.sessions.Token(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// fail turns a non-2xx response into an *APIError, clearing the session when
// the credential itself was rejected.
func (c *Client) fail(ctx context.Context, req *http.Request, resp *http.Response, data []byte) error {
	apiErr := &APIError{
		Method:  req.Method,
		Path:    req.URL.Path,
		Status:  resp.StatusCode,
		Message: serverMessage(data),
		Body:    data,
	}

	switch {
	case worker.IsOffline(resp):
		apiErr.Code = apperrors.ErrNetworkFailure
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if c.classifier.Classify(resp.StatusCode, apiErr.Message) == authz.Authentication {
			apiErr.Code = apperrors.ErrAuthenticationFailure
			c.authenticationFailed(ctx, apiErr)
		} else {
			apiErr.Code = apperrors.ErrAuthorizationFailure
			logging.Warn("API request not permitted", map[string]interface{}{
				"url":     apiErr.Path,
				"status":  apiErr.Status,
				"message": apiErr.Message,
			})
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		apiErr.Code = apperrors.ErrValidationFailure
	default:
		apiErr.Code = apperrors.ErrHTTP
	}
	return apiErr
}

func (c *Client) authenticationFailed(ctx context.Context, apiErr *APIError) {
	logging.Warn("Credential rejected, clearing session", map[string]interface{}{
		"url":     apiErr.Path,
		"message": apiErr.Message,
	})
	if c.sessions != nil {
		// The caller may have given up already; the session must still go.
		if err := c.sessions.Clear(context.WithoutCancel(ctx), session.ReasonAuthenticationFailure); err != nil {
			logging.Error("Failed to clear session", err, nil)
		}
	}
	if c.onAuthFail != nil {
		c.onAuthFail(apiErr)
	}
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func encode(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(b) == 0 {
			return nil, nil
		}
		return b, nil
	case []byte:
		if len(b) == 0 {
			return nil, nil
		}
		return b, nil
	}
	return json.Marshal(body)
}

// serverMessage extracts the error text from an {"error": ...} or
// {"message": ...} envelope, falling back to the raw body.
func serverMessage(data []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &envelope) == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return strings.TrimSpace(string(data))
}
