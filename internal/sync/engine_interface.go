package sync

import (
	"context"
	"time"
)

// SyncEventType names a sync notification.
type SyncEventType string

const (
	SyncEventStarted   SyncEventType = "sync.started"
	SyncEventAction    SyncEventType = "sync.action"
	SyncEventCompleted SyncEventType = "sync.completed"
	SyncEventFailed    SyncEventType = "sync.failed"
)

// SyncEvent is delivered to the event handler during a run.
type SyncEvent struct {
	Type      SyncEventType          `json:"type"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// SyncEventHandler receives sync events.
type SyncEventHandler interface {
	OnSyncEvent(event SyncEvent)
}

// SyncEventHandlerFunc adapts a function to SyncEventHandler.
type SyncEventHandlerFunc func(SyncEvent)

// OnSyncEvent calls f(event).
func (f SyncEventHandlerFunc) OnSyncEvent(event SyncEvent) { f(event) }

// Syncer is what the scheduler and the control surface need from an engine.
type Syncer interface {
	// Sync replays the queue and reports each action's outcome.
	Sync(ctx context.Context) ([]Result, error)

	// SetEventHandler sets the handler for sync notifications.
	SetEventHandler(handler SyncEventHandler)

	// Status returns the current sync status.
	Status() SyncStatus

	// Snapshot returns status, last sync time, last error and last results.
	Snapshot() Snapshot
}

var _ Syncer = (*Engine)(nil)

// SetEventHandler sets the event handler. Nil disables events.
func (e *Engine) SetEventHandler(handler SyncEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// emitEvent stamps the event and hands it to the handler on the calling
// goroutine, outside the engine lock.
func (e *Engine) emitEvent(event SyncEvent) {
	e.mu.RLock()
	handler := e.handler
	e.mu.RUnlock()

	if handler == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	handler.OnSyncEvent(event)
}
