package handlers

import (
	"context"
	"net/http"

	syncpkg "github.com/kimhsiao/fitnix/console/internal/sync"
	"github.com/kimhsiao/fitnix/console/internal/sync/scheduler"
)

// SyncRunner is the part of the scheduler the handler uses.
type SyncRunner interface {
	SyncNow(ctx context.Context) ([]syncpkg.Result, error)
	GetStatus(ctx context.Context) scheduler.SchedulerStatus
}

// SyncHandler runs and reports queue replays.
type SyncHandler struct {
	runner SyncRunner
	engine syncpkg.Syncer
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(runner SyncRunner, engine syncpkg.Syncer) *SyncHandler {
	return &SyncHandler{runner: runner, engine: engine}
}

// Trigger handles POST /sync. The run happens inline; the response carries
// one result per queued action.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	results, err := h.runner.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []syncpkg.Result{}
	}

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":   results,
		"succeeded": len(results) - failed,
		"failed":    failed,
	})
}

// Status handles GET /sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scheduler": h.runner.GetStatus(r.Context()),
		"engine":    h.engine.Snapshot(),
	})
}
