package handlers

import (
	"net/http"
	"time"
)

// Health handles GET /health.
func Health(service string, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": service,
			"uptime":  time.Since(started).Round(time.Second).String(),
		})
	}
}
