// Package models provides data model definitions for the Fitnix console.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// HTTP verbs a QueuedAction may carry.
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
)

// TimestampLayout is the ISO-8601 layout used for QueuedAction timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// QueuedAction is a mutating API call deferred while the API was unreachable.
type QueuedAction struct {
	ID        int64           `db:"id" json:"id"`
	Method    string          `db:"method" json:"method"`
	URL       string          `db:"url" json:"url"`
	Body      json.RawMessage `db:"body" json:"body,omitempty"`
	Timestamp string          `db:"timestamp" json:"timestamp"`
}

// TableName returns the table name for QueuedAction.
func (QueuedAction) TableName() string {
	return "offline_actions"
}

// HasBody reports whether the action carries a request body.
func (a *QueuedAction) HasBody() bool {
	return len(a.Body) > 0 && string(a.Body) != "null"
}

// EnqueuedAt parses Timestamp. The zero time is returned if it is malformed.
func (a *QueuedAction) EnqueuedAt() time.Time {
	t, err := time.Parse(time.RFC3339Nano, a.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ValidMethod reports whether m is one of the verbs the sync engine replays.
func ValidMethod(m string) bool {
	switch strings.ToUpper(m) {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return true
	}
	return false
}
