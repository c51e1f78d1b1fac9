package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/fitnix/console/internal/authz"
	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
	"github.com/kimhsiao/fitnix/console/internal/models"
	"github.com/kimhsiao/fitnix/console/internal/session"
	"github.com/kimhsiao/fitnix/console/internal/worker"
)

func signedIn(t *testing.T) (*session.Store, *session.MemoryBackend) {
	t.Helper()
	backend := session.NewMemoryBackend()
	store := session.NewStore(backend)
	require.NoError(t, store.Set(context.Background(), session.Session{
		Token: "tok-123",
		User:  models.User{ID: "u1", Username: "alice", Role: models.RoleAdmin},
	}))
	return store, backend
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// TestClient_RequestHeaders verifies every request carries credentials and
// cache suppression headers.
func TestClient_RequestHeaders(t *testing.T) {
	var got http.Header
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath = r.URL.Path
		respond(http.StatusOK, `{"packages":[]}`)(w, r)
	}))
	defer srv.Close()

	store, _ := signedIn(t)
	c := New(srv.URL+"/api/", store)

	var out map[string]interface{}
	require.NoError(t, c.Get(context.Background(), "/packages/", &out))

	assert.Equal(t, "/api/packages/", gotPath)
	assert.Equal(t, "Bearer tok-123", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", got.Get("Cache-Control"))
	assert.Equal(t, "no-cache", got.Get("Pragma"))
	assert.Equal(t, "0", got.Get("Expires"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
	assert.Contains(t, out, "packages")
}

// TestClient_NoTokenNoAuthorization verifies anonymous calls omit the header.
func TestClient_NoTokenNoAuthorization(t *testing.T) {
	var auth string
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, sawAuth = r.Header["Authorization"]
		respond(http.StatusOK, `{}`)(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL, session.NewStore(session.NewMemoryBackend()))
	require.NoError(t, c.Post(context.Background(), "/auth/login", map[string]string{"username": "a"}, nil))
	assert.False(t, sawAuth, "unexpected Authorization %q", auth)
}

// TestClient_JSONBody verifies bodies are sent as JSON and raw messages verbatim.
func TestClient_JSONBody(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		respond(http.StatusCreated, `{"id":"p1"}`)(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	ctx := context.Background()

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.Post(ctx, "/packages/", models.Package{Name: "Gold", DurationDays: 30, Price: 99}, &created))
	require.NoError(t, c.Put(ctx, "/packages/p1", json.RawMessage(`{"price":120}`), nil))
	require.NoError(t, c.Delete(ctx, "/packages/p1", nil))

	assert.Equal(t, "p1", created.ID)
	require.Len(t, bodies, 3)
	assert.JSONEq(t, `{"name":"Gold","duration_days":30,"price":99,"is_active":false}`, bodies[0])
	assert.Equal(t, `{"price":120}`, bodies[1])
	assert.Empty(t, bodies[2])
}

// TestClient_UnauthorizedDisambiguation verifies a permission-denied 401
// leaves the session alone while an invalid-credential 401 clears it.
func TestClient_UnauthorizedDisambiguation(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCode    apperrors.ErrorCode
		wantCleared bool
	}{
		{"authorization phrase", `{"error":"Insufficient permissions"}`, apperrors.ErrAuthorizationFailure, false},
		{"authorization via message field", `{"message":"Only members can book sessions"}`, apperrors.ErrAuthorizationFailure, false},
		{"expired token", `{"error":"Token expired"}`, apperrors.ErrAuthenticationFailure, true},
		{"plain text body", `Signature verification failed`, apperrors.ErrAuthenticationFailure, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(respond(http.StatusUnauthorized, tt.body))
			defer srv.Close()

			store, backend := signedIn(t)
			var events []session.Event
			store.Subscribe(func(ev session.Event) { events = append(events, ev) })

			redirected := 0
			c := New(srv.URL, store, OnAuthenticationFailure(func(*APIError) { redirected++ }))

			err := c.Get(context.Background(), "/admin/members", nil)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.True(t, apperrors.Is(err, tt.wantCode))

			_, hasToken, _ := backend.Load(context.Background(), session.KeyToken)
			_, hasUser, _ := backend.Load(context.Background(), session.KeyUser)
			if tt.wantCleared {
				assert.False(t, hasToken)
				assert.False(t, hasUser)
				assert.Equal(t, 1, redirected)
				require.Len(t, events, 1)
				assert.Equal(t, session.ReasonAuthenticationFailure, events[0].Reason)
			} else {
				assert.True(t, hasToken)
				assert.True(t, hasUser)
				assert.Equal(t, 0, redirected)
				assert.Empty(t, events)
			}
		})
	}
}

// TestClient_ErrorClasses verifies status codes map to error codes.
func TestClient_ErrorClasses(t *testing.T) {
	tests := []struct {
		status int
		want   apperrors.ErrorCode
	}{
		{http.StatusForbidden, apperrors.ErrAuthorizationFailure},
		{http.StatusBadRequest, apperrors.ErrValidationFailure},
		{http.StatusNotFound, apperrors.ErrValidationFailure},
		{http.StatusConflict, apperrors.ErrValidationFailure},
		{http.StatusInternalServerError, apperrors.ErrHTTP},
		{http.StatusBadGateway, apperrors.ErrHTTP},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(respond(tt.status, `{"error":"Username already exists"}`))
			defer srv.Close()

			store, backend := signedIn(t)
			c := New(srv.URL, store)
			err := c.Post(context.Background(), "/admin/members", map[string]string{}, nil)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.want, apiErr.Code)
			assert.Equal(t, "Username already exists", apiErr.Message)
			assert.JSONEq(t, `{"error":"Username already exists"}`, string(apiErr.Body))

			_, hasToken, _ := backend.Load(context.Background(), session.KeyToken)
			assert.True(t, hasToken, "only authentication failures clear the session")
		})
	}
}

// TestClient_NetworkFailure verifies transport errors and the worker's offline
// response both surface as NETWORK_FAILURE.
func TestClient_NetworkFailure(t *testing.T) {
	ctx := context.Background()
	down := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	t.Run("raw transport", func(t *testing.T) {
		c := New("http://api.example.test/api", nil, WithTransport(down))
		err := c.Get(ctx, "/packages/", nil)
		assert.True(t, apperrors.Is(err, apperrors.ErrNetworkFailure), "got %v", err)
	})

	t.Run("through worker", func(t *testing.T) {
		w := worker.New(worker.NewMemoryCacheStorage(), worker.WithNetwork(down))
		require.NoError(t, w.Activate(ctx))

		c := New("http://api.example.test/api", nil, WithTransport(w))
		err := c.Post(ctx, "/packages/", map[string]string{"name": "Gold"}, nil)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, apperrors.ErrNetworkFailure, apiErr.Code)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
		assert.Equal(t, worker.OfflineBody, apiErr.Message)
	})
}

// TestClient_CustomClassifier verifies the phrase list is configurable.
func TestClient_CustomClassifier(t *testing.T) {
	srv := httptest.NewServer(respond(http.StatusUnauthorized, `{"error":"Role mismatch"}`))
	defer srv.Close()

	store, backend := signedIn(t)
	c := New(srv.URL, store, WithClassifier(authz.NewClassifier([]string{"Role mismatch"})))

	err := c.Get(context.Background(), "/finance/transactions", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrAuthorizationFailure))
	_, hasToken, _ := backend.Load(context.Background(), session.KeyToken)
	assert.True(t, hasToken)
}

func TestResolve(t *testing.T) {
	c := New("https://fitnix-backend.onrender.com/api/", nil)
	assert.Equal(t, "https://fitnix-backend.onrender.com/api/packages/", c.resolve("/packages/"))
	assert.Equal(t, "https://fitnix-backend.onrender.com/api/packages/", c.resolve("packages/"))
	assert.Equal(t, "http://other.test/x", c.resolve("http://other.test/x"))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
