// Package scheduler decides when queued offline actions are replayed: on a
// fixed interval while online, when connectivity returns, and when a
// background sync has been registered.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kimhsiao/fitnix/console/internal/errors"
	"github.com/kimhsiao/fitnix/console/internal/logging"
	syncpkg "github.com/kimhsiao/fitnix/console/internal/sync"
)

// syncTimeout bounds a single background run.
const syncTimeout = 5 * time.Minute

// PendingCounter reports how many actions are queued.
type PendingCounter interface {
	Count(ctx context.Context) (int, error)
}

// Scheduler manages background sync operations.
type Scheduler struct {
	engine        syncpkg.Syncer
	queue         PendingCounter
	prober        Prober
	syncInterval  time.Duration
	probeInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.RWMutex
	runCtx        context.Context
	isRunning     bool
	stopped       bool
	isOnline      bool
	lastSyncTime  time.Time
	lastErr       error
	syncing       bool
	registrations map[string]time.Time
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	SyncInterval  time.Duration // How often to sync while online (default: 5 minutes)
	ProbeInterval time.Duration // How often to check connectivity (default: 15 seconds)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SyncInterval:  5 * time.Minute,
		ProbeInterval: 15 * time.Second,
	}
}

// NewScheduler creates a new Scheduler. prober may be nil, in which case
// connectivity only changes through SetOnlineStatus.
func NewScheduler(engine syncpkg.Syncer, queue PendingCounter, prober Prober, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}

	return &Scheduler{
		engine:        engine,
		queue:         queue,
		prober:        prober,
		syncInterval:  config.SyncInterval,
		probeInterval: config.ProbeInterval,
		stopCh:        make(chan struct{}),
		runCtx:        context.Background(),
		isOnline:      true, // Assume online initially
		registrations: make(map[string]time.Time),
	}
}

// Start starts the background loops. Background runs use ctx for values
// and cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning || s.stopped {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.runCtx = ctx
	s.mu.Unlock()

	if s.syncInterval > 0 {
		s.wg.Add(1)
		go s.periodicSyncLoop(ctx)
	}

	if s.prober != nil && s.probeInterval > 0 {
		s.wg.Add(1)
		go s.probeLoop(ctx)
	}

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"sync_interval":  s.syncInterval.String(),
		"probe_interval": s.probeInterval.String(),
	})
}

// Stop stops the background loops and waits for them, including any run
// they started. A stopped scheduler starts no further background runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped", nil)
}

// SetOnlineStatus records connectivity. Coming back online starts a sync, as
// does any observation of being online while a registration is pending.
func (s *Scheduler) SetOnlineStatus(isOnline bool) {
	s.mu.Lock()
	wasOnline := s.isOnline
	s.isOnline = isOnline
	pending := len(s.registrations)
	ctx := s.runCtx
	s.mu.Unlock()

	if wasOnline != isOnline {
		logging.Info("Online status changed",
			map[string]interface{}{
				"was_online": wasOnline,
				"is_online":  isOnline,
			})
	}

	if isOnline && (!wasOnline || pending > 0) {
		s.TriggerSync(ctx)
	}
}

// Register records a named background sync request. It is honoured with one
// sync the next time the scheduler observes it is online, which is
// immediately if it is online now. Repeated tags collapse into one request.
// Nothing guarantees when, or that, the sync happens.
func (s *Scheduler) Register(tag string) {
	s.mu.Lock()
	s.registrations[tag] = time.Now()
	online := s.isOnline
	s.mu.Unlock()

	logging.Debug("Background sync registered", map[string]interface{}{
		"tag":    tag,
		"online": online,
	})

	if online {
		s.SetOnlineStatus(true)
	}
}

// periodicSyncLoop runs periodic sync when online.
func (s *Scheduler) periodicSyncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.IsOnline() {
				continue
			}
			if !s.TriggerSync(ctx) {
				logging.Debug("Sync already in progress, skipping", nil)
			}
		}
	}
}

// probeLoop checks connectivity immediately and then on every tick.
func (s *Scheduler) probeLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		s.SetOnlineStatus(s.prober.Probe(ctx))

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// begin marks a run as started, reporting false if one already is. A run
// replays the whole queue, so it satisfies every pending registration.
// Background runs are tracked by wg and refused once the scheduler stopped.
func (s *Scheduler) begin(background bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing || (background && s.stopped) {
		return false
	}
	s.syncing = true
	if len(s.registrations) > 0 {
		s.registrations = make(map[string]time.Time)
	}
	if background {
		s.wg.Add(1)
	}
	return true
}

func (s *Scheduler) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = false
	s.lastErr = err
	if err == nil {
		s.lastSyncTime = time.Now()
	}
}

// TriggerSync starts a sync in the background.
// Returns true if sync was started, false if sync is already in progress,
// the scheduler is offline or it has been stopped.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	if !s.IsOnline() {
		logging.Debug("Skipping sync - scheduler is offline", nil)
		return false
	}
	if !s.begin(true) {
		return false
	}

	// The run outlives the caller's request but not the scheduler.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncTimeout)
	go func() {
		defer s.wg.Done()
		defer cancel()

		stopped := make(chan struct{})
		defer close(stopped)
		go func() {
			select {
			case <-s.stopCh:
				cancel()
			case <-stopped:
			}
		}()

		s.runSync(runCtx, "Background sync")
	}()
	return true
}

// SyncNow runs a sync and waits for it.
func (s *Scheduler) SyncNow(ctx context.Context) ([]syncpkg.Result, error) {
	if !s.begin(false) {
		return nil, errors.New(errors.ErrSyncInProgress, "sync already in progress")
	}

	syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	return s.runSync(syncCtx, "Manual sync")
}

// runSync executes a sync operation; the caller must have called begin.
func (s *Scheduler) runSync(ctx context.Context, label string) ([]syncpkg.Result, error) {
	results, err := s.engine.Sync(ctx)
	s.end(err)

	if err != nil {
		logging.ErrorWithCode(label+" failed", string(errors.CodeOf(err)), err,
			map[string]interface{}{"interval_minutes": s.syncInterval.Minutes()})
		return results, err
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	logging.Info(label+" completed",
		map[string]interface{}{
			"replayed": len(results),
			"failed":   failed,
		})
	return results, nil
}

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	IsRunning            bool       `json:"is_running"`
	IsOnline             bool       `json:"is_online"`
	LastSyncTime         *time.Time `json:"last_sync_time,omitempty"`
	LastError            string     `json:"last_error,omitempty"`
	SyncInProgress       bool       `json:"sync_in_progress"`
	PendingItems         int        `json:"pending_items"`
	PendingRegistrations []string   `json:"pending_registrations"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus(ctx context.Context) SchedulerStatus {
	s.mu.RLock()
	status := SchedulerStatus{
		IsRunning:            s.isRunning,
		IsOnline:             s.isOnline,
		SyncInProgress:       s.syncing,
		PendingRegistrations: make([]string, 0, len(s.registrations)),
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	for tag := range s.registrations {
		status.PendingRegistrations = append(status.PendingRegistrations, tag)
	}
	s.mu.RUnlock()

	sort.Strings(status.PendingRegistrations)

	if s.queue != nil {
		n, err := s.queue.Count(ctx)
		if err != nil {
			logging.Warn("Failed to count pending actions", map[string]interface{}{"error": err.Error()})
		}
		status.PendingItems = n
	}
	return status
}

// IsOnline returns whether the scheduler is in online mode.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
