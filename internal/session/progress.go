package session

import (
	"encoding/json"
	"sync"

	"github.com/autoapply/syncbridge/internal/core/domain"
	"github.com/autoapply/syncbridge/internal/core/ports"
)

// Progress is the sink for one session-scoped channel. It folds connected,
// status and progress events into the last-known progress for that session.
type Progress struct {
	sessionID string

	mu       sync.RWMutex
	current  domain.SessionProgress
	received bool
}

// NewProgress creates a Progress sink for one session id.
func NewProgress(sessionID string) *Progress {
	return &Progress{
		sessionID: sessionID,
		current:   domain.SessionProgress{SessionID: sessionID},
	}
}

// Apply folds one envelope into the progress view. Malformed payloads and
// unrelated event types are dropped.
func (p *Progress) Apply(env domain.Envelope) {
	var payload domain.ProgressPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch env.Type {
	case domain.EventConnected, domain.EventStatus:
		p.current.Status = domain.SessionStatus(payload.Status)
		p.current.CurrentStep = payload.CurrentStep
		p.current.FieldsFilled = payload.FieldsFilled
		p.current.BlockerType = payload.BlockerType
		p.received = true
	case domain.EventProgress:
		// Each progress event carries the full count; a missing details
		// block means zero, not "keep the old value".
		p.current.CurrentStep = payload.ProgressPercent
		p.current.FieldsFilled = payload.Details.FieldsFilled
		p.received = true
	}
}

// Snapshot returns the last-known progress and whether any event arrived.
func (p *Progress) Snapshot() (domain.SessionProgress, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.received
}

var _ ports.EventSink = (*Progress)(nil)
