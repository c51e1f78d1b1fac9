package gym

import (
	"context"
	"net/http"

	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
	"github.com/kimhsiao/fitnix/console/internal/logging"
	"github.com/kimhsiao/fitnix/console/internal/models"
	"github.com/kimhsiao/fitnix/console/internal/session"
)

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	User        models.User `json:"user"`
}

// Login signs in and stores the session.
func (s *Service) Login(ctx context.Context, username, password string) (session.Session, error) {
	if username == "" || password == "" {
		return session.Session{}, apperrors.New(apperrors.ErrInvalid, "username and password are required")
	}

	var resp loginResponse
	err := s.api.Do(ctx, http.MethodPost, "/auth/login",
		map[string]string{"username": username, "password": password}, &resp)
	if err != nil {
		return session.Session{}, err
	}
	if resp.AccessToken == "" {
		return session.Session{}, apperrors.New(apperrors.ErrHTTP, "login response carried no token")
	}

	sess := session.Session{Token: resp.AccessToken, User: resp.User}
	if err := s.sessions.Set(ctx, sess); err != nil {
		return session.Session{}, err
	}
	logging.Info("Signed in", map[string]interface{}{"username": sess.User.Username, "role": string(sess.User.Role)})
	return sess, nil
}

// Logout tells the API and clears the session. The API call is best effort;
// the local session is cleared either way.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.api.Do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		logging.Warn("Logout request failed, clearing session anyway", map[string]interface{}{"error": err.Error()})
	}
	return s.sessions.Clear(ctx, session.ReasonLogout)
}

// RefreshToken exchanges the current token for a new one and stores it.
func (s *Service) RefreshToken(ctx context.Context) (string, error) {
	current, ok, err := s.sessions.Get(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.New(apperrors.ErrAuthenticationFailure, "not signed in")
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := s.api.Do(ctx, http.MethodPost, "/auth/refresh", nil, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", apperrors.New(apperrors.ErrHTTP, "refresh response carried no token")
	}

	current.Token = resp.AccessToken
	if err := s.sessions.Set(ctx, current); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}
