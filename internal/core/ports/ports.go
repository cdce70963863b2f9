// Package ports defines the interfaces between the sync bridge's components.
// Concrete implementations live under internal/; components accept these
// interfaces so tests can substitute fakes.
package ports

import (
	"context"

	"github.com/autoapply/syncbridge/internal/core/domain"
)

// BackendClient is the request/response contract with the automation backend.
type BackendClient interface {
	ListInterventions(ctx context.Context) ([]domain.Intervention, error)
	GetIntervention(ctx context.Context, id string) (*domain.Intervention, error)
	ResolveIntervention(ctx context.Context, id string, req domain.ResolveRequest) (*domain.ResolveResult, error)

	ListSessions(ctx context.Context, resumableOnly bool) ([]domain.Session, error)
	GetSession(ctx context.Context, id string) (*domain.SessionDetail, error)
	ResumeSession(ctx context.Context, id string, opts domain.ResumeOptions) (*domain.ApplicationResult, error)
	PauseSession(ctx context.Context, id string) (*domain.Session, error)
	DeleteSession(ctx context.Context, id string) error
	MarkApplied(ctx context.Context, id string) (*domain.Session, error)

	StartApplication(ctx context.Context, req domain.StartRequest) (*domain.ApplicationResult, error)
}

// EventSink receives inbound channel envelopes in arrival order. Apply never
// returns an error; undecodable payloads are dropped at the boundary.
type EventSink interface {
	Apply(env domain.Envelope)
}

// ConnectionState is the transient per-channel connection status.
type ConnectionState string

const (
	StateConnecting  ConnectionState = "connecting"
	StateOpen        ConnectionState = "open"
	StateClosedClean ConnectionState = "closed_clean"
	StateClosedError ConnectionState = "closed_error"
)

// ConnectionSource exposes the live channel's observable state to consumers
// that switch behavior on it (the fallback poller, the view adapter).
type ConnectionSource interface {
	State() ConnectionState
	Err() error
	// OnStateChange registers a listener invoked on every state
	// transition. The returned func unregisters it.
	OnStateChange(fn func(ConnectionState)) (unregister func())
}

// SnapshotStore persists the last reconciled view so a restarted bridge can
// show last-known data before its first poll or connect.
type SnapshotStore interface {
	SaveInterventions(ctx context.Context, items []domain.Intervention) error
	LoadInterventions(ctx context.Context) ([]domain.Intervention, error)
	SaveSessions(ctx context.Context, items []domain.Session) error
	LoadSessions(ctx context.Context) ([]domain.Session, error)
	Close() error
}
