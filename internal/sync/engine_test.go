// Package sync tests for sync engine functionality.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/kimhsiao/fitnix/console/internal/db"
	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
	"github.com/kimhsiao/fitnix/console/internal/models"
	"github.com/kimhsiao/fitnix/console/internal/sync/queue"
)

// testEventHandler is a test implementation of SyncEventHandler.
type testEventHandler struct {
	mu     stdsync.Mutex
	events []SyncEvent
}

func (h *testEventHandler) OnSyncEvent(event SyncEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *testEventHandler) types() []SyncEventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]SyncEventType, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Type
	}
	return out
}

type call struct {
	Method string
	Path   string
	Body   string
}

// fakeDispatcher records calls and fails the paths listed in failures.
type fakeDispatcher struct {
	mu       stdsync.Mutex
	calls    []call
	failures map[string]error
	onCall   func(call)
}

func (d *fakeDispatcher) Do(ctx context.Context, method, path string, body, out interface{}) error {
	c := call{Method: method, Path: path}
	if raw, ok := body.(json.RawMessage); ok {
		c.Body = string(raw)
	}

	d.mu.Lock()
	d.calls = append(d.calls, c)
	err := d.failures[path]
	d.mu.Unlock()

	if d.onCall != nil {
		d.onCall(c)
	}
	return err
}

func newTestQueue(t *testing.T) *queue.ActionStore {
	t.Helper()
	handle := db.NewHandle(t.TempDir())
	t.Cleanup(func() { handle.Close() })
	return queue.NewActionStore(handle)
}

func enqueue(t *testing.T, q *queue.ActionStore, method, url string, body interface{}) int64 {
	t.Helper()
	id, err := q.Enqueue(context.Background(), queue.NewAction{Method: method, URL: url, Body: body})
	if err != nil {
		t.Fatalf("Enqueue(%s %s) error = %v", method, url, err)
	}
	return id
}

// TestNewEngine verifies engine creation.
func TestNewEngine(t *testing.T) {
	engine := NewEngine(nil, nil)

	if engine.Status() != SyncStatusIdle {
		t.Errorf("status = %v, want SyncStatusIdle", engine.Status())
	}
	if engine.LastSync() != nil {
		t.Error("lastSync should be nil initially")
	}
	if engine.LastError() != nil {
		t.Error("lastErr should be nil initially")
	}
	snap := engine.Snapshot()
	if snap.LastResults == nil || len(snap.LastResults) != 0 {
		t.Errorf("LastResults = %v, want empty slice", snap.LastResults)
	}
}

// TestSync_insertionOrder verifies actions replay in insertion order
// regardless of verb.
func TestSync_insertionOrder(t *testing.T) {
	q := newTestQueue(t)
	enqueue(t, q, "DELETE", "/admin/members/m1", nil)
	enqueue(t, q, "POST", "/packages/", map[string]interface{}{"name": "Gold"})
	enqueue(t, q, "PUT", "/packages/p2", map[string]interface{}{"price": 10})

	d := &fakeDispatcher{}
	engine := NewEngine(q, d)

	results, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	want := []call{
		{Method: "DELETE", Path: "/admin/members/m1"},
		{Method: "POST", Path: "/packages/", Body: `{"name":"Gold"}`},
		{Method: "PUT", Path: "/packages/p2", Body: `{"price":10}`},
	}
	if len(d.calls) != len(want) {
		t.Fatalf("calls = %d, want %d", len(d.calls), len(want))
	}
	for i := range want {
		if d.calls[i] != want[i] {
			t.Errorf("call[%d] = %+v, want %+v", i, d.calls[i], want[i])
		}
	}
	for i, r := range results {
		if r.ID != int64(i+1) || !r.Success {
			t.Errorf("result[%d] = %+v, want success for id %d", i, r, i+1)
		}
	}

	n, _ := q.Count(context.Background())
	if n != 0 {
		t.Errorf("queued after sync = %d, want 0", n)
	}
	if engine.Status() != SyncStatusIdle {
		t.Errorf("status = %v, want idle", engine.Status())
	}
	if engine.LastSync() == nil {
		t.Error("LastSync should be set after a clean run")
	}
}

// TestSync_partialFailure verifies a failed action stays queued while the
// others are removed.
func TestSync_partialFailure(t *testing.T) {
	q := newTestQueue(t)
	id1 := enqueue(t, q, "POST", "/packages/", map[string]string{"name": "A"})
	id2 := enqueue(t, q, "PUT", "/admin/members/gone", map[string]string{"full_name": "B"})
	id3 := enqueue(t, q, "DELETE", "/packages/p3", nil)

	d := &fakeDispatcher{failures: map[string]error{
		"/admin/members/gone": errors.New("Member not found"),
	}}
	engine := NewEngine(q, d)
	handler := &testEventHandler{}
	engine.SetEventHandler(handler)

	results, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	want := []Result{
		{ID: id1, Method: "POST", URL: "/packages/", Success: true},
		{ID: id2, Method: "PUT", URL: "/admin/members/gone", Success: false, Error: "Member not found"},
		{ID: id3, Method: "DELETE", URL: "/packages/p3", Success: true},
	}
	if len(results) != len(want) {
		t.Fatalf("results = %d, want %d", len(results), len(want))
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("result[%d] = %+v, want %+v", i, results[i], want[i])
		}
	}

	remaining, _ := q.ListAll(context.Background())
	if len(remaining) != 1 || remaining[0].ID != id2 {
		t.Fatalf("remaining = %+v, want only action %d", remaining, id2)
	}

	if engine.Status() != SyncStatusFailed {
		t.Errorf("status = %v, want failed", engine.Status())
	}
	if !apperrors.Is(engine.LastError(), apperrors.ErrSyncFailed) {
		t.Errorf("LastError = %v, want SYNC_FAILED", engine.LastError())
	}
	history := engine.GetErrorHistory()
	if len(history) != 1 || history[0].ActionID != id2 {
		t.Errorf("history = %+v, want one entry for %d", history, id2)
	}

	types := handler.types()
	wantTypes := []SyncEventType{SyncEventStarted, SyncEventAction, SyncEventAction, SyncEventAction, SyncEventFailed}
	if fmt.Sprint(types) != fmt.Sprint(wantTypes) {
		t.Errorf("events = %v, want %v", types, wantTypes)
	}
}

// TestSync_failedActionRetriedNextRun verifies there is no retry limit.
func TestSync_failedActionRetriedNextRun(t *testing.T) {
	q := newTestQueue(t)
	enqueue(t, q, "DELETE", "/packages/p9", nil)

	d := &fakeDispatcher{failures: map[string]error{"/packages/p9": errors.New("offline")}}
	engine := NewEngine(q, d)

	for i := 0; i < 3; i++ {
		if _, err := engine.Sync(context.Background()); err != nil {
			t.Fatalf("Sync() #%d error = %v", i, err)
		}
	}
	if len(d.calls) != 3 {
		t.Errorf("dispatches = %d, want 3", len(d.calls))
	}

	d.failures = nil
	results, _ := engine.Sync(context.Background())
	if len(results) != 1 || !results[0].Success {
		t.Errorf("results = %+v, want one success", results)
	}
}

// TestSync_emptyStore verifies an empty queue completes with no results.
func TestSync_emptyStore(t *testing.T) {
	engine := NewEngine(newTestQueue(t), &fakeDispatcher{})
	handler := &testEventHandler{}
	engine.SetEventHandler(handler)

	results, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("results = %v, want empty slice", results)
	}
	if fmt.Sprint(handler.types()) != fmt.Sprint([]SyncEventType{SyncEventStarted, SyncEventCompleted}) {
		t.Errorf("events = %v", handler.types())
	}
}

type failingStore struct{ err error }

func (s failingStore) ListAll(context.Context) ([]models.QueuedAction, error) { return nil, s.err }
func (s failingStore) Remove(context.Context, int64) error                    { return s.err }
func (s failingStore) Count(context.Context) (int, error)                     { return 0, s.err }

// TestSync_listFailure verifies a store failure is returned.
func TestSync_listFailure(t *testing.T) {
	storeErr := apperrors.New(apperrors.ErrStoreUnavailable, "disk gone")
	engine := NewEngine(failingStore{err: storeErr}, &fakeDispatcher{})

	results, err := engine.Sync(context.Background())
	if !errors.Is(err, storeErr) {
		t.Fatalf("Sync() error = %v, want %v", err, storeErr)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}
	if engine.Status() != SyncStatusFailed {
		t.Errorf("status = %v, want failed", engine.Status())
	}
}

// TestSync_alreadyInProgress verifies a concurrent run is refused.
func TestSync_alreadyInProgress(t *testing.T) {
	q := newTestQueue(t)
	enqueue(t, q, "POST", "/packages/", nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	d := &fakeDispatcher{onCall: func(call) {
		close(entered)
		<-release
	}}
	engine := NewEngine(q, d)

	done := make(chan error, 1)
	go func() {
		_, err := engine.Sync(context.Background())
		done <- err
	}()

	<-entered
	_, err := engine.Sync(context.Background())
	if !apperrors.Is(err, apperrors.ErrSyncInProgress) {
		t.Errorf("second Sync() error = %v, want SYNC_IN_PROGRESS", err)
	}
	if engine.Status() != SyncStatusSyncing {
		t.Errorf("status = %v, want syncing", engine.Status())
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Sync() error = %v", err)
	}
}

// TestSync_contextCancellation verifies the run stops between actions.
func TestSync_contextCancellation(t *testing.T) {
	q := newTestQueue(t)
	enqueue(t, q, "POST", "/one", nil)
	enqueue(t, q, "POST", "/two", nil)

	ctx, cancel := context.WithCancel(context.Background())
	d := &fakeDispatcher{onCall: func(call) { cancel() }}
	engine := NewEngine(q, d)

	results, err := engine.Sync(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sync() error = %v, want context.Canceled", err)
	}
	if len(results) != 1 || results[0].URL != "/one" {
		t.Errorf("results = %+v, want only /one", results)
	}

	n, _ := q.Count(context.Background())
	if n != 1 {
		t.Errorf("queued = %d, want 1", n)
	}
}

// TestRecordError verifies error recording with history limits.
func TestRecordError(t *testing.T) {
	engine := NewEngine(nil, nil)

	for i := 0; i < 150; i++ {
		engine.recordError(models.QueuedAction{ID: int64(i)}, errors.New("test error"))
	}

	history := engine.GetErrorHistory()
	if len(history) != maxErrorHistory {
		t.Fatalf("history length = %d, want %d", len(history), maxErrorHistory)
	}
	if history[0].ActionID != 50 {
		t.Errorf("oldest retained = %d, want 50", history[0].ActionID)
	}

	history[0] = SyncErrorEntry{}
	if engine.GetErrorHistory()[0].ActionID != 50 {
		t.Error("modifying returned history affected original")
	}

	engine.ClearErrorHistory()
	if len(engine.GetErrorHistory()) != 0 {
		t.Error("history not cleared")
	}
}

// TestEmitEvent verifies event emission with timestamp.
func TestEmitEvent(t *testing.T) {
	engine := NewEngine(nil, nil)
	fixed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }

	var got []SyncEvent
	engine.SetEventHandler(SyncEventHandlerFunc(func(ev SyncEvent) { got = append(got, ev) }))

	earlier := fixed.Add(-time.Hour)
	engine.emitEvent(SyncEvent{Type: SyncEventStarted, Message: "Test"})
	engine.emitEvent(SyncEvent{Type: SyncEventCompleted, Timestamp: earlier})

	if len(got) != 2 {
		t.Fatalf("events count = %d, want 2", len(got))
	}
	if !got[0].Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", got[0].Timestamp, fixed)
	}
	if !got[1].Timestamp.Equal(earlier) {
		t.Errorf("timestamp was not preserved, got %v, want %v", got[1].Timestamp, earlier)
	}

	engine.SetEventHandler(nil)
	engine.emitEvent(SyncEvent{Type: SyncEventStarted})
}
