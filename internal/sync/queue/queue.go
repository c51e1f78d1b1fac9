// Package queue provides the durable store of API calls deferred while offline.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/fitnix/console/internal/db"
	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
	"github.com/kimhsiao/fitnix/console/internal/logging"
	"github.com/kimhsiao/fitnix/console/internal/models"
)

// NewAction describes a call to defer. Body is optional.
type NewAction struct {
	Method string
	URL    string
	Body   interface{}
}

// sealedPrefix marks a body stored encrypted. It can never start valid JSON.
const sealedPrefix = "sealed:"

// BodySealer encrypts bodies at rest. crypto.Sealer satisfies it.
type BodySealer interface {
	SealString(plaintext string) (string, error)
	OpenString(ciphertext string) (string, error)
}

// ActionStore persists QueuedActions in the offline_actions table.
//
// Every method is a single statement against SQLite; nothing is locked across
// calls, so an action listed by ListAll may already be gone by the time the
// caller removes it.
type ActionStore struct {
	handle *db.Handle
	now    func() time.Time
	sealer BodySealer

	mu     sync.Mutex
	opened *db.DB
}

// NewActionStore creates a store over the shared database handle. Nothing is
// opened until the first operation or an explicit Open.
func NewActionStore(handle *db.Handle) *ActionStore {
	return &ActionStore{
		handle: handle,
		now:    time.Now,
	}
}

// SetClock overrides the timestamp source.
func (s *ActionStore) SetClock(now func() time.Time) {
	s.now = now
}

// SetSealer encrypts bodies enqueued from now on. Call it before the store is
// shared. Bodies sealed earlier can only be listed while the same key is set.
func (s *ActionStore) SetSealer(sealer BodySealer) {
	s.sealer = sealer
}

// Open establishes the store. It is idempotent; after a failure the next call
// tries again.
func (s *ActionStore) Open(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

func (s *ActionStore) conn(ctx context.Context) (*db.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened != nil {
		return s.opened, nil
	}
	conn, err := s.handle.Get(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to open offline action store", err)
	}
	s.opened = conn
	return conn, nil
}

// Enqueue stamps the action with the current time, persists it and returns
// the assigned key.
func (s *ActionStore) Enqueue(ctx context.Context, action NewAction) (int64, error) {
	method := strings.ToUpper(strings.TrimSpace(action.Method))
	if !models.ValidMethod(method) {
		return 0, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unsupported method %q", action.Method))
	}
	if action.URL == "" {
		return 0, apperrors.New(apperrors.ErrInvalid, "url is required")
	}

	body, err := encodeBody(action.Body)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode body", err)
	}
	if text, ok := body.(string); ok && s.sealer != nil {
		sealed, err := s.sealer.SealString(text)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.ErrInternal, "failed to seal body", err)
		}
		body = sealedPrefix + sealed
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	timestamp := s.now().UTC().Format(models.TimestampLayout)
	res, err := conn.ExecContext(ctx,
		`INSERT INTO offline_actions (method, url, body, timestamp) VALUES (?, ?, ?, ?)`,
		method, action.URL, body, timestamp)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to queue action", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to read action key", err)
	}

	logging.Info("Queued offline action", map[string]interface{}{
		"id":     id,
		"method": method,
		"url":    action.URL,
		"sealed": s.sealer != nil && body != nil,
	})
	return id, nil
}

// ListAll returns every queued action in insertion order.
func (s *ActionStore) ListAll(ctx context.Context) ([]models.QueuedAction, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT id, method, url, body, timestamp FROM offline_actions ORDER BY id ASC`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to list actions", err)
	}
	defer rows.Close()

	actions := make([]models.QueuedAction, 0)
	for rows.Next() {
		var a models.QueuedAction
		var body sql.NullString
		if err := rows.Scan(&a.ID, &a.Method, &a.URL, &body, &a.Timestamp); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to read action", err)
		}
		if body.Valid {
			text, err := s.openBody(body.String)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable,
					fmt.Sprintf("queued action %d cannot be read", a.ID), err)
			}
			a.Body = json.RawMessage(text)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to list actions", err)
	}
	return actions, nil
}

func (s *ActionStore) openBody(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if s.sealer == nil {
		return "", fmt.Errorf("body is sealed and no key is configured")
	}
	return s.sealer.OpenString(strings.TrimPrefix(stored, sealedPrefix))
}

// Remove deletes the action with the given key. Unknown keys are ignored.
func (s *ActionStore) Remove(ctx context.Context, id int64) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM offline_actions WHERE id = ?`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to remove action", err)
	}
	return nil
}

// Clear deletes every queued action.
func (s *ActionStore) Clear(ctx context.Context) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res, err := conn.ExecContext(ctx, `DELETE FROM offline_actions`)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to clear actions", err)
	}
	n, _ := res.RowsAffected()
	logging.Info("Offline action queue cleared", map[string]interface{}{"removed": n})
	return nil
}

// Count returns the number of queued actions.
func (s *ActionStore) Count(ctx context.Context) (int, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_actions`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to count actions", err)
	}
	return n, nil
}

// encodeBody turns the caller's payload into the stored JSON text. A nil body,
// or a raw message holding JSON null, is stored as NULL.
func encodeBody(body interface{}) (interface{}, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(b) == 0 || string(b) == "null" {
			return nil, nil
		}
		if !json.Valid(b) {
			return nil, fmt.Errorf("body is not valid JSON")
		}
		return string(b), nil
	case []byte:
		return encodeBody(json.RawMessage(b))
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}
