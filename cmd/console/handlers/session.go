package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kimhsiao/fitnix/console/internal/models"
	"github.com/kimhsiao/fitnix/console/internal/session"
)

// Authenticator signs in, signs out and refreshes tokens against the gym API.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (session.Session, error)
	Logout(ctx context.Context) error
	RefreshToken(ctx context.Context) (string, error)
}

// SessionReader reads the stored session.
type SessionReader interface {
	Get(ctx context.Context) (session.Session, bool, error)
}

// SessionHandler exposes sign-in state. Tokens are never written to responses.
type SessionHandler struct {
	auth     Authenticator
	sessions SessionReader
	now      func() time.Time
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(auth Authenticator, sessions SessionReader) *SessionHandler {
	return &SessionHandler{auth: auth, sessions: sessions, now: time.Now}
}

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *models.User `json:"user,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	Expired       bool         `json:"expired,omitempty"`
}

func (h *SessionHandler) describe(sess session.Session) sessionResponse {
	user := sess.User
	resp := sessionResponse{Authenticated: true, User: &user}
	if claims, err := sess.Claims(); err == nil && claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time.UTC()
		resp.ExpiresAt = &exp
		resp.Expired = sess.Expired(h.now())
	}
	return resp
}

// Login handles POST /session/login.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	sess, err := h.auth.Login(r.Context(), request.Username, request.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.describe(sess))
}

// Logout handles POST /session/logout.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /session/refresh. The new token is stored, not
// returned.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.RefreshToken(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.Current(w, r)
}

// Current handles GET /session.
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	sess, ok, err := h.sessions.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}
	writeJSON(w, http.StatusOK, h.describe(sess))
}
