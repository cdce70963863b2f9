package view

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/autoapply/syncbridge/internal/core/domain"
	"github.com/autoapply/syncbridge/internal/core/ports"
	"github.com/autoapply/syncbridge/internal/reconcile"
)

type staticConnection struct {
	state ports.ConnectionState
	err   error
}

func (c *staticConnection) State() ports.ConnectionState { return c.state }
func (c *staticConnection) Err() error                   { return c.err }
func (c *staticConnection) OnStateChange(fn func(ports.ConnectionState)) func() {
	return func() {}
}

type staticSessions struct {
	sessions []domain.Session
	err      error
}

func (s *staticSessions) List(resumableOnly bool) []domain.Session { return s.sessions }
func (s *staticSessions) Err() error                               { return s.err }

func TestAdapter_SnapshotLive(t *testing.T) {
	r := reconcile.New(nil)
	r.Replace(2, []domain.Intervention{
		{ID: "i1", Status: domain.InterventionPending},
		{ID: "i2", Status: domain.InterventionPending},
	})
	sessions := &staticSessions{sessions: []domain.Session{
		{ID: "s1", Status: domain.SessionInProgress, CreatedAt: time.Now().UTC()},
	}}

	a := NewAdapter(&staticConnection{state: ports.StateOpen}, r, sessions)
	snap := a.Snapshot()

	if snap.Connection != "live" || !snap.Live {
		t.Errorf("connection = %q live = %v, want live true", snap.Connection, snap.Live)
	}
	if snap.Error != "" {
		t.Errorf("error = %q, want empty", snap.Error)
	}
	if snap.PendingCount != 2 || len(snap.Interventions) != 2 {
		t.Errorf("pending = %d interventions = %d, want 2 and 2", snap.PendingCount, len(snap.Interventions))
	}
	if len(snap.Sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(snap.Sessions))
	}
	if snap.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
}

func TestAdapter_SnapshotDegraded(t *testing.T) {
	r := reconcile.New(nil)
	r.Replace(1, []domain.Intervention{{ID: "i1", Status: domain.InterventionPending}})

	conn := &staticConnection{
		state: ports.StateClosedError,
		err:   domain.ErrTransient("connection lost"),
	}
	sessions := &staticSessions{err: domain.ErrTransient("backend down")}

	a := NewAdapter(conn, r, sessions)
	snap := a.Snapshot()

	if snap.Connection != "offline" || snap.Live {
		t.Errorf("connection = %q live = %v, want offline false", snap.Connection, snap.Live)
	}
	if snap.Error != "connection lost" {
		t.Errorf("error = %q, want %q", snap.Error, "connection lost")
	}
	if snap.SessionsError != "backend down" {
		t.Errorf("sessions error = %q, want %q", snap.SessionsError, "backend down")
	}

	// Degradation never blanks the last-known data.
	if snap.PendingCount != 1 || len(snap.Interventions) != 1 {
		t.Errorf("pending = %d interventions = %d, want last-known 1 and 1", snap.PendingCount, len(snap.Interventions))
	}
}

func TestAdapter_SnapshotSerializesForDashboard(t *testing.T) {
	r := reconcile.New(nil)
	a := NewAdapter(&staticConnection{state: ports.StateConnecting}, r, &staticSessions{})

	data, err := json.Marshal(a.Snapshot())
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if decoded["connection"] != "connecting" {
		t.Errorf("connection = %v, want connecting", decoded["connection"])
	}
	if _, ok := decoded["pending_count"]; !ok {
		t.Error("snapshot JSON missing pending_count")
	}
}
