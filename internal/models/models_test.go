// Package models tests for data model definitions.
package models

import (
	"encoding/json"
	"testing"
	"time"
)

// TestQueuedAction_TableName verifies the persisted table name.
func TestQueuedAction_TableName(t *testing.T) {
	if got := (QueuedAction{}).TableName(); got != "offline_actions" {
		t.Errorf("TableName() = %q, want offline_actions", got)
	}
}

// TestQueuedAction_HasBody verifies optional body detection.
func TestQueuedAction_HasBody(t *testing.T) {
	tests := []struct {
		name string
		body json.RawMessage
		want bool
	}{
		{"nil body", nil, false},
		{"json null", json.RawMessage("null"), false},
		{"object body", json.RawMessage(`{"name":"Gold"}`), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &QueuedAction{Body: tt.body}
			if got := a.HasBody(); got != tt.want {
				t.Errorf("HasBody() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestQueuedAction_EnqueuedAt verifies timestamp parsing.
func TestQueuedAction_EnqueuedAt(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 30, 0, 123000000, time.UTC)
	a := &QueuedAction{Timestamp: ts.Format(TimestampLayout)}

	if got := a.EnqueuedAt(); !got.Equal(ts) {
		t.Errorf("EnqueuedAt() = %v, want %v", got, ts)
	}

	bad := &QueuedAction{Timestamp: "yesterday"}
	if !bad.EnqueuedAt().IsZero() {
		t.Error("EnqueuedAt() should be zero for malformed timestamps")
	}
}

// TestQueuedAction_JSON verifies the body is omitted when absent.
func TestQueuedAction_JSON(t *testing.T) {
	a := QueuedAction{ID: 1, Method: MethodDelete, URL: "/packages/p1", Timestamp: "2024-01-01T00:00:00.000Z"}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"id":1,"method":"DELETE","url":"/packages/p1","timestamp":"2024-01-01T00:00:00.000Z"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

// TestValidMethod verifies verb validation.
func TestValidMethod(t *testing.T) {
	for _, m := range []string{"GET", "post", "Put", "DELETE"} {
		if !ValidMethod(m) {
			t.Errorf("ValidMethod(%q) = false, want true", m)
		}
	}
	for _, m := range []string{"PATCH", "HEAD", ""} {
		if ValidMethod(m) {
			t.Errorf("ValidMethod(%q) = true, want false", m)
		}
	}
}

// TestRole_Valid verifies role discrimination.
func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleTrainer, RoleMember} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("owner").Valid() {
		t.Error("owner should not be valid")
	}
}

// TestUser_decode verifies the login payload decodes.
func TestUser_decode(t *testing.T) {
	payload := `{"id":"u1","username":"admin","role":"admin","is_active":true,"created_at":"2024-01-01T00:00:00Z"}`
	var u User
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if u.Role != RoleAdmin || u.Username != "admin" || !u.IsActive {
		t.Errorf("decoded user = %+v", u)
	}
}
