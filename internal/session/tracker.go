// Package session tracks application sessions: the local session list, the
// pause/resume/delete commands against the backend, and the optimistic
// updates those commands imply. Sessions are never delivered over the live
// intervention channel, so this state is fed by the fallback poller's
// coarser refresh plus explicit command results.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/autoapply/syncbridge/internal/core/domain"
	"github.com/autoapply/syncbridge/internal/core/ports"
)

const (
	defaultReconcileDelay = 2 * time.Second
	defaultDetailCache    = 64
)

// Options configures a Tracker.
type Options struct {
	Client ports.BackendClient

	// ReconcileDelay is how long after a successful resume the tracker
	// waits before re-fetching authoritative state. Resume is
	// asynchronous server-side, so the optimistic status may not match
	// final reality.
	ReconcileDelay time.Duration

	// DetailCacheSize bounds the LRU of session details.
	DetailCacheSize int

	Logger *slog.Logger
}

// Tracker owns the local session set.
type Tracker struct {
	client         ports.BackendClient
	reconcileDelay time.Duration
	logger         *slog.Logger

	details *lru.Cache[string, *domain.SessionDetail]

	mu       sync.RWMutex
	sessions map[string]domain.Session
	err      error
	timers   map[*time.Timer]struct{}
	closed   bool

	nextID   int
	onChange map[int]func()
}

// NewTracker creates a Tracker.
func NewTracker(opts Options) (*Tracker, error) {
	if opts.ReconcileDelay <= 0 {
		opts.ReconcileDelay = defaultReconcileDelay
	}
	if opts.DetailCacheSize <= 0 {
		opts.DetailCacheSize = defaultDetailCache
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	details, err := lru.New[string, *domain.SessionDetail](opts.DetailCacheSize)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		client:         opts.Client,
		reconcileDelay: opts.ReconcileDelay,
		logger:         logger,
		details:        details,
		sessions:       make(map[string]domain.Session),
		timers:         make(map[*time.Timer]struct{}),
		onChange:       make(map[int]func()),
	}, nil
}

// ReplaceAll installs an authoritative session snapshot, unconditionally
// overwriting any optimistic values. Cached details whose summary status
// moved are evicted so the next detail fetch sees fresh state.
func (t *Tracker) ReplaceAll(sessions []domain.Session) {
	t.mu.Lock()
	next := make(map[string]domain.Session, len(sessions))
	for _, s := range sessions {
		next[s.ID] = s
		if prev, ok := t.sessions[s.ID]; ok && prev.Status != s.Status {
			t.details.Remove(s.ID)
		}
	}
	t.sessions = next
	t.err = nil
	t.mu.Unlock()

	t.notifyChange()
}

// List returns tracked sessions, newest first.
func (t *Tracker) List(resumableOnly bool) []domain.Session {
	t.mu.RLock()
	out := make([]domain.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		if resumableOnly && !s.CanResume {
			continue
		}
		out = append(out, s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Get fetches the full detail for one session, serving repeats from the LRU.
func (t *Tracker) Get(ctx context.Context, id string) (*domain.SessionDetail, error) {
	if d, ok := t.details.Get(id); ok {
		return d, nil
	}
	d, err := t.client.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	t.details.Add(id, d)
	return d, nil
}

// Refresh re-fetches the authoritative session list.
func (t *Tracker) Refresh(ctx context.Context) error {
	sessions, err := t.client.ListSessions(ctx, false)
	if err != nil {
		t.setErr(err)
		return err
	}
	t.ReplaceAll(sessions)
	return nil
}

// Resume requests the backend resume a paused or blocked session. On request
// success the local session goes optimistically to in_progress with
// resumable=false, and a delayed re-fetch reconciles with the authoritative
// state, overwriting the guess whether or not it matched. On request failure
// the tracker re-fetches immediately so a wrong optimistic status never
// lingers.
func (t *Tracker) Resume(ctx context.Context, id string, opts domain.ResumeOptions) (*domain.ApplicationResult, error) {
	res, err := t.client.ResumeSession(ctx, id, opts)
	if err != nil {
		if rerr := t.Refresh(ctx); rerr != nil {
			t.logger.Warn("post-failure refresh failed", slog.String("error", rerr.Error()))
		}
		return nil, err
	}

	t.apply(id, func(s *domain.Session) {
		s.Status = domain.SessionInProgress
		s.CanResume = false
		s.Unconfirmed = true
	})
	t.details.Remove(id)
	t.scheduleReconcile()

	return res, nil
}

// Pause requests the backend pause an in-progress session and mirrors the
// result locally.
func (t *Tracker) Pause(ctx context.Context, id string) error {
	updated, err := t.client.PauseSession(ctx, id)
	if err != nil {
		if rerr := t.Refresh(ctx); rerr != nil {
			t.logger.Warn("post-failure refresh failed", slog.String("error", rerr.Error()))
		}
		return err
	}

	if updated != nil && updated.ID != "" {
		t.apply(id, func(s *domain.Session) { *s = *updated })
	} else {
		now := time.Now().UTC()
		t.apply(id, func(s *domain.Session) {
			s.Status = domain.SessionPaused
			s.PausedAt = &now
		})
	}
	t.details.Remove(id)
	return nil
}

// MarkApplied records a manual completion: any non-terminal session goes
// straight to submitted with resumable=false. This is a pure status write,
// no automation side effect.
func (t *Tracker) MarkApplied(ctx context.Context, id string) error {
	t.mu.RLock()
	current, tracked := t.sessions[id]
	t.mu.RUnlock()
	if tracked && current.Status.Terminal() {
		return domain.ErrCommand("session already in a terminal state").WithResource(id)
	}

	if _, err := t.client.MarkApplied(ctx, id); err != nil {
		return err
	}

	t.apply(id, func(s *domain.Session) {
		s.Status = domain.SessionSubmitted
		s.CanResume = false
		s.Unconfirmed = false
	})
	t.details.Remove(id)
	return nil
}

// Delete removes a session from the tracked set entirely. Unlike cancel,
// deletion discards history.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	if err := t.client.DeleteSession(ctx, id); err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
	t.details.Remove(id)

	t.notifyChange()
	return nil
}

// Err returns the last snapshot-refresh error, nil while healthy.
func (t *Tracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// OnChange registers an observer invoked after any session-set mutation.
func (t *Tracker) OnChange(fn func()) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.onChange[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.onChange, id)
		t.mu.Unlock()
	}
}

// Close cancels pending reconcile timers. No timer fires after Close.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	for timer := range t.timers {
		timer.Stop()
	}
	t.timers = make(map[*time.Timer]struct{})
	t.mu.Unlock()
}

// apply mutates one tracked session in place; unknown ids are inserted so a
// command on a not-yet-polled session still shows up.
func (t *Tracker) apply(id string, mutate func(*domain.Session)) {
	t.mu.Lock()
	s, ok := t.sessions[id]
	if !ok {
		s = domain.Session{ID: id, CreatedAt: time.Now().UTC()}
	}
	mutate(&s)
	s.ID = id
	t.sessions[id] = s
	t.mu.Unlock()

	t.notifyChange()
}

func (t *Tracker) scheduleReconcile() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(t.reconcileDelay, func() {
		t.mu.Lock()
		delete(t.timers, timer)
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := t.Refresh(ctx); err != nil {
			t.logger.Warn("reconcile refresh failed", slog.String("error", err.Error()))
		}
	})
	t.timers[timer] = struct{}{}
	t.mu.Unlock()
}

func (t *Tracker) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

func (t *Tracker) notifyChange() {
	t.mu.RLock()
	fns := make([]func(), 0, len(t.onChange))
	for _, fn := range t.onChange {
		fns = append(fns, fn)
	}
	t.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
