package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/autoapply/syncbridge/internal/core/domain"
	"github.com/autoapply/syncbridge/internal/core/ports"
)

// FakeBackend is an in-memory BackendClient for tests. Behavior is
// overridable per call via the function fields; unset fields fall back to
// serving the stored state.
type FakeBackend struct {
	mu            sync.Mutex
	Interventions []domain.Intervention
	Sessions      []domain.Session
	Details       map[string]*domain.SessionDetail

	ListInterventionsFn func(ctx context.Context) ([]domain.Intervention, error)
	ListSessionsFn      func(ctx context.Context, resumableOnly bool) ([]domain.Session, error)
	ResumeFn            func(ctx context.Context, id string, opts domain.ResumeOptions) (*domain.ApplicationResult, error)
	ResolveFn           func(ctx context.Context, id string, req domain.ResolveRequest) (*domain.ResolveResult, error)
	PauseFn             func(ctx context.Context, id string) (*domain.Session, error)
	DeleteFn            func(ctx context.Context, id string) error
	MarkAppliedFn       func(ctx context.Context, id string) (*domain.Session, error)

	ListSessionCalls int
}

var _ ports.BackendClient = (*FakeBackend)(nil)

func (f *FakeBackend) ListInterventions(ctx context.Context) ([]domain.Intervention, error) {
	if f.ListInterventionsFn != nil {
		return f.ListInterventionsFn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Intervention(nil), f.Interventions...), nil
}

func (f *FakeBackend) GetIntervention(ctx context.Context, id string) (*domain.Intervention, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Interventions {
		if f.Interventions[i].ID == id {
			iv := f.Interventions[i]
			return &iv, nil
		}
	}
	return nil, domain.ErrNotFound("intervention not found").WithResource(id)
}

func (f *FakeBackend) ResolveIntervention(ctx context.Context, id string, req domain.ResolveRequest) (*domain.ResolveResult, error) {
	if f.ResolveFn != nil {
		return f.ResolveFn(ctx, id, req)
	}
	return &domain.ResolveResult{Status: "resolved", InterventionID: id, Action: req.Action}, nil
}

func (f *FakeBackend) ListSessions(ctx context.Context, resumableOnly bool) ([]domain.Session, error) {
	f.mu.Lock()
	f.ListSessionCalls++
	f.mu.Unlock()
	if f.ListSessionsFn != nil {
		return f.ListSessionsFn(ctx, resumableOnly)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Session, 0, len(f.Sessions))
	for _, s := range f.Sessions {
		if resumableOnly && !s.CanResume {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *FakeBackend) GetSession(ctx context.Context, id string) (*domain.SessionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.Details[id]; ok {
		return d, nil
	}
	for _, s := range f.Sessions {
		if s.ID == id {
			return &domain.SessionDetail{Session: s}, nil
		}
	}
	return nil, domain.ErrNotFound("session not found").WithResource(id)
}

func (f *FakeBackend) ResumeSession(ctx context.Context, id string, opts domain.ResumeOptions) (*domain.ApplicationResult, error) {
	if f.ResumeFn != nil {
		return f.ResumeFn(ctx, id, opts)
	}
	return &domain.ApplicationResult{SessionID: id, Status: "in_progress", Success: true}, nil
}

func (f *FakeBackend) PauseSession(ctx context.Context, id string) (*domain.Session, error) {
	if f.PauseFn != nil {
		return f.PauseFn(ctx, id)
	}
	now := time.Now().UTC()
	return &domain.Session{ID: id, Status: domain.SessionPaused, PausedAt: &now}, nil
}

func (f *FakeBackend) DeleteSession(ctx context.Context, id string) error {
	if f.DeleteFn != nil {
		return f.DeleteFn(ctx, id)
	}
	return nil
}

func (f *FakeBackend) MarkApplied(ctx context.Context, id string) (*domain.Session, error) {
	if f.MarkAppliedFn != nil {
		return f.MarkAppliedFn(ctx, id)
	}
	return &domain.Session{ID: id, Status: domain.SessionSubmitted}, nil
}

func (f *FakeBackend) StartApplication(ctx context.Context, req domain.StartRequest) (*domain.ApplicationResult, error) {
	return &domain.ApplicationResult{SessionID: "new-session", Status: "in_progress", Success: true}, nil
}

// SetSessions swaps the stored session list.
func (f *FakeBackend) SetSessions(sessions []domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sessions = append([]domain.Session(nil), sessions...)
}
