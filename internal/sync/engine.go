// Package sync replays queued offline actions against the API.
package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
	"github.com/kimhsiao/fitnix/console/internal/logging"
	"github.com/kimhsiao/fitnix/console/internal/models"
)

// SyncStatus represents the current sync status.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusFailed  SyncStatus = "failed"
)

// maxErrorHistory bounds the number of retained error entries.
const maxErrorHistory = 100

// ActionStore is the part of the offline action store the engine drains.
type ActionStore interface {
	ListAll(ctx context.Context) ([]models.QueuedAction, error)
	Remove(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// Dispatcher sends one request. The API client satisfies it.
type Dispatcher interface {
	Do(ctx context.Context, method, path string, body, out interface{}) error
}

// Result is the outcome of replaying one queued action.
type Result struct {
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SyncErrorEntry records a failed replay.
type SyncErrorEntry struct {
	ActionID  int64     `json:"action_id"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time view of the engine.
type Snapshot struct {
	Status      SyncStatus `json:"status"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastResults []Result   `json:"last_results"`
}

// Engine drains the action store through a Dispatcher, one action at a time
// in insertion order. Successful actions are removed; failed ones stay queued
// for the next run with no retry limit.
type Engine struct {
	store      ActionStore
	dispatcher Dispatcher
	now        func() time.Time

	mu           stdsync.RWMutex
	status       SyncStatus
	lastSync     *time.Time
	lastErr      error
	lastResults  []Result
	handler      SyncEventHandler
	errorHistory []SyncErrorEntry
}

// NewEngine creates an Engine.
func NewEngine(store ActionStore, dispatcher Dispatcher) *Engine {
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		now:        time.Now,
		status:     SyncStatusIdle,
	}
}

// Status returns the current sync status.
func (e *Engine) Status() SyncStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// LastSync returns when the last run finished with every action replayed.
func (e *Engine) LastSync() *time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSync
}

// LastError returns the error of the last run, if any.
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// PendingChanges returns the number of actions still queued.
func (e *Engine) PendingChanges(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

// Snapshot returns the engine's current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Snapshot{
		Status:      e.status,
		LastSync:    e.lastSync,
		LastResults: append([]Result(nil), e.lastResults...),
	}
	if s.LastResults == nil {
		s.LastResults = []Result{}
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}

// Sync replays every queued action and returns one Result per attempted
// action. A run already in progress yields SYNC_IN_PROGRESS. If the store
// cannot be listed, that error is returned and nothing is replayed. A
// cancelled context stops the run between actions and returns the results
// gathered so far together with the context error.
func (e *Engine) Sync(ctx context.Context) ([]Result, error) {
	e.mu.Lock()
	if e.status == SyncStatusSyncing {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}
	e.status = SyncStatusSyncing
	e.lastErr = nil
	e.mu.Unlock()

	start := e.now()
	e.emitEvent(SyncEvent{Type: SyncEventStarted, Message: "Sync started"})

	actions, err := e.store.ListAll(ctx)
	if err != nil {
		e.finish(nil, err)
		return nil, err
	}

	results := make([]Result, 0, len(actions))
	failed := 0
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			e.finish(results, err)
			return results, err
		}

		result := e.replay(ctx, action)
		if !result.Success {
			failed++
		}
		results = append(results, result)
	}

	var runErr error
	if failed > 0 {
		runErr = apperrors.New(apperrors.ErrSyncFailed,
			fmt.Sprintf("%d of %d queued actions failed", failed, len(actions)))
	}
	e.finish(results, runErr)

	logging.Info("Sync completed", map[string]interface{}{
		"replayed":    len(results),
		"failed":      failed,
		"duration_ms": e.now().Sub(start).Milliseconds(),
	})
	return results, nil
}

// replay dispatches one action and removes it on success.
func (e *Engine) replay(ctx context.Context, action models.QueuedAction) Result {
	result := Result{ID: action.ID, Method: action.Method, URL: action.URL}

	var body interface{}
	if action.HasBody() {
		body = action.Body
	}

	if err := e.dispatcher.Do(ctx, action.Method, action.URL, body, nil); err != nil {
		result.Error = err.Error()
		e.recordError(action, err)
		logging.Warn("Queued action failed, keeping it queued", map[string]interface{}{
			"id":     action.ID,
			"method": action.Method,
			"url":    action.URL,
			"error":  err.Error(),
		})
		e.emitEvent(SyncEvent{
			Type:    SyncEventAction,
			Message: "Action failed",
			Data:    map[string]interface{}{"result": result},
		})
		return result
	}

	result.Success = true
	if err := e.store.Remove(context.WithoutCancel(ctx), action.ID); err != nil {
		// The server has the change; a later run will send it again.
		logging.Error("Failed to remove replayed action", err, map[string]interface{}{
			"id": action.ID,
		})
		e.recordError(action, err)
	}
	e.emitEvent(SyncEvent{
		Type:    SyncEventAction,
		Message: "Action replayed",
		Data:    map[string]interface{}{"result": result},
	})
	return result
}

func (e *Engine) finish(results []Result, err error) {
	end := e.now()

	e.mu.Lock()
	e.lastResults = results
	e.lastErr = err
	if err != nil {
		e.status = SyncStatusFailed
	} else {
		e.status = SyncStatusIdle
		e.lastSync = &end
	}
	e.mu.Unlock()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	data := map[string]interface{}{
		"attempted": len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	}

	if err != nil {
		e.emitEvent(SyncEvent{Type: SyncEventFailed, Message: err.Error(), Data: data})
		return
	}
	e.emitEvent(SyncEvent{Type: SyncEventCompleted, Message: "Sync completed", Data: data})
}

// recordError appends to the bounded error history.
func (e *Engine) recordError(action models.QueuedAction, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errorHistory = append(e.errorHistory, SyncErrorEntry{
		ActionID:  action.ID,
		Method:    action.Method,
		URL:       action.URL,
		Error:     err.Error(),
		Timestamp: e.now(),
	})
	if len(e.errorHistory) > maxErrorHistory {
		e.errorHistory = e.errorHistory[len(e.errorHistory)-maxErrorHistory:]
	}
}

// GetErrorHistory returns a copy of the recorded errors, oldest first.
func (e *Engine) GetErrorHistory() []SyncErrorEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]SyncErrorEntry, len(e.errorHistory))
	copy(out, e.errorHistory)
	return out
}

// ClearErrorHistory drops every recorded error.
func (e *Engine) ClearErrorHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorHistory = nil
}
