// Package view merges live-channel and polled data into the one shape the
// presentation layer reads.
//
// Source priority is enforced upstream: the fallback poller defers to the
// live channel for interventions while it is open, and every source writes
// with wholesale-replace semantics into a single reconciled store. A source
// switch therefore never flashes an empty list; the last-known list from the
// losing source stays visible until the winning source delivers its first
// snapshot.
package view

import (
	"time"

	"github.com/autoapply/syncbridge/internal/conn"
	"github.com/autoapply/syncbridge/internal/core/domain"
	"github.com/autoapply/syncbridge/internal/core/ports"
)

// InterventionSource is what the adapter reads from the reconciler.
type InterventionSource interface {
	PendingCount() int
	Interventions() []domain.Intervention
}

// SessionSource is what the adapter reads from the session tracker.
type SessionSource interface {
	List(resumableOnly bool) []domain.Session
	Err() error
}

// Snapshot is one consistent read of everything the dashboard renders.
type Snapshot struct {
	Connection    string                `json:"connection"` // live, connecting, offline
	Live          bool                  `json:"live"`
	Error         string                `json:"error,omitempty"`
	PendingCount  int                   `json:"pending_count"`
	Interventions []domain.Intervention `json:"interventions"`
	Sessions      []domain.Session      `json:"sessions"`
	SessionsError string                `json:"sessions_error,omitempty"`
	GeneratedAt   time.Time             `json:"generated_at"`
}

// Adapter assembles snapshots from the three state owners.
type Adapter struct {
	connection    ports.ConnectionSource
	interventions InterventionSource
	sessions      SessionSource
}

// NewAdapter creates an Adapter.
func NewAdapter(connection ports.ConnectionSource, interventions InterventionSource, sessions SessionSource) *Adapter {
	return &Adapter{
		connection:    connection,
		interventions: interventions,
		sessions:      sessions,
	}
}

// Interventions returns the display list: the reconciled pending set,
// whichever source last wrote it.
func (a *Adapter) Interventions() []domain.Intervention {
	return a.interventions.Interventions()
}

// Sessions returns the display session list. Sessions are never delivered
// over the live channel, so the tracker's polled and command-mutated state
// is always the source.
func (a *Adapter) Sessions() []domain.Session {
	return a.sessions.List(false)
}

// PendingCount returns the reconciled pending intervention count.
func (a *Adapter) PendingCount() int {
	return a.interventions.PendingCount()
}

// Snapshot assembles one consistent view. Loss of the live channel shows up
// only as the connection indicator flipping to offline, never as a blocking
// failure.
func (a *Adapter) Snapshot() Snapshot {
	state := a.connection.State()
	return Snapshot{
		Connection:    conn.StateLabel(state),
		Live:          state == ports.StateOpen,
		Error:         conn.ErrString(a.connection.Err()),
		PendingCount:  a.interventions.PendingCount(),
		Interventions: a.interventions.Interventions(),
		Sessions:      a.sessions.List(false),
		SessionsError: conn.ErrString(a.sessions.Err()),
		GeneratedAt:   time.Now().UTC(),
	}
}
