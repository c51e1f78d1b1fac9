// Package gym exposes the Fitnix API calls the console makes, typed, and
// defers mutations to the offline queue when the API cannot be reached.
package gym

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
	"github.com/kimhsiao/fitnix/console/internal/logging"
	"github.com/kimhsiao/fitnix/console/internal/session"
	"github.com/kimhsiao/fitnix/console/internal/sync/queue"
)

// SyncTag names the background sync registered after an action is queued.
const SyncTag = "sync-offline-actions"

// API sends one request. The API client satisfies it.
type API interface {
	Do(ctx context.Context, method, path string, body, out interface{}) error
}

// Queue stores actions for later replay.
type Queue interface {
	Enqueue(ctx context.Context, action queue.NewAction) (int64, error)
}

// Sessions is the session store.
type Sessions interface {
	Get(ctx context.Context) (session.Session, bool, error)
	Set(ctx context.Context, sess session.Session) error
	Clear(ctx context.Context, reason session.Reason) error
}

// MutationResult reports what happened to a create, update or delete.
type MutationResult struct {
	// Queued is true when the API was unreachable and the call was stored
	// for replay instead.
	Queued  bool  `json:"queued"`
	QueueID int64 `json:"queue_id,omitempty"`
}

// Service is the console's view of the Fitnix API.
type Service struct {
	api      API
	queue    Queue
	sessions Sessions
	register func(tag string)
}

// NewService creates a Service.
func NewService(api API, q Queue, sessions Sessions) *Service {
	return &Service{api: api, queue: q, sessions: sessions}
}

// SetSyncRegistrar sets the function told about newly queued work, normally
// the scheduler's Register.
func (s *Service) SetSyncRegistrar(register func(tag string)) {
	s.register = register
}

// Mutate sends a mutating call. If no response arrives the call is queued
// and the result reports Queued; out is left untouched in that case. Any
// other failure is returned as is.
func (s *Service) Mutate(ctx context.Context, method, path string, body, out interface{}) (MutationResult, error) {
	err := s.api.Do(ctx, method, path, body, out)
	if err == nil {
		return MutationResult{}, nil
	}
	if !apperrors.Is(err, apperrors.ErrNetworkFailure) {
		return MutationResult{}, err
	}

	id, qerr := s.queue.Enqueue(ctx, queue.NewAction{Method: method, URL: path, Body: body})
	if qerr != nil {
		logging.Error("Offline action could not be queued and is lost", qerr, map[string]interface{}{
			"method": method,
			"url":    path,
		})
		return MutationResult{}, qerr
	}

	if s.register != nil {
		s.register(SyncTag)
	}
	return MutationResult{Queued: true, QueueID: id}, nil
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// ListOptions filters and paginates list calls. Zero values are omitted.
type ListOptions struct {
	Page       int
	PerPage    int
	Status     string
	MemberID   string
	ActiveOnly bool
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(o.PerPage))
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	if o.MemberID != "" {
		q.Set("member_id", o.MemberID)
	}
	if o.ActiveOnly {
		q.Set("active_only", "true")
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// list fetches a {key: [...], total, page, per_page} envelope.
func list[T any](ctx context.Context, api API, path, key string, opts ListOptions) (Page[T], error) {
	var envelope map[string]json.RawMessage
	if err := api.Do(ctx, http.MethodGet, path+opts.query(), nil, &envelope); err != nil {
		return Page[T]{}, err
	}

	page := Page[T]{Items: []T{}}
	if raw, ok := envelope[key]; ok {
		if err := json.Unmarshal(raw, &page.Items); err != nil {
			return Page[T]{}, apperrors.Wrap(apperrors.ErrHTTP, fmt.Sprintf("unexpected %s payload", key), err)
		}
		if page.Items == nil {
			page.Items = []T{}
		}
	}
	for field, dst := range map[string]*int{"total": &page.Total, "page": &page.Page, "per_page": &page.PerPage} {
		if raw, ok := envelope[field]; ok {
			_ = json.Unmarshal(raw, dst)
		}
	}
	return page, nil
}
