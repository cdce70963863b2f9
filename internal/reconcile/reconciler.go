// Package reconcile applies inbound channel events to the in-memory pending
// intervention set and keeps the pending count consistent with it.
package reconcile

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/autoapply/syncbridge/internal/core/domain"
	"github.com/autoapply/syncbridge/internal/core/ports"
)

// Reconciler holds the client-side cache of pending interventions. The
// backend is the source of truth; snapshot events (initial_state, refresh)
// replace state wholesale, incremental events mutate it. All mutations keep
// the pending count equal to what the last reconciliation implies, and the
// count never goes negative.
type Reconciler struct {
	logger *slog.Logger

	mu            sync.RWMutex
	pendingCount  int
	interventions []domain.Intervention // newest first

	nextID     int
	onNew      map[int]func(domain.Intervention)
	onResolved map[int]func(id, action string)
	onChange   map[int]func()
}

// New creates an empty Reconciler.
func New(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		logger:     logger,
		onNew:      make(map[int]func(domain.Intervention)),
		onResolved: make(map[int]func(id, action string)),
		onChange:   make(map[int]func()),
	}
}

// Apply interprets one envelope. Undecodable payloads are dropped silently;
// unknown event types are ignored. Fire-and-forget by design: the channel
// must never crash on backend garbage.
func (r *Reconciler) Apply(env domain.Envelope) {
	switch env.Type {
	case domain.EventInitialState, domain.EventRefresh:
		var p domain.SnapshotPayload
		if !r.decode(env, &p) {
			return
		}
		r.Replace(p.PendingCount, p.Interventions)

	case domain.EventIntervention:
		var p domain.InterventionPayload
		if !r.decode(env, &p) {
			return
		}
		r.add(domain.Intervention{
			ID:          p.InterventionID,
			SessionID:   p.SessionID,
			Type:        domain.InterventionType(p.Type),
			Status:      domain.InterventionPending,
			Title:       p.Title,
			Description: p.Description,
			CurrentURL:  p.CurrentURL,
			CreatedAt:   time.Now().UTC(),
		})

	case domain.EventInterventionResolved:
		var p domain.ResolvedPayload
		if !r.decode(env, &p) {
			return
		}
		r.MarkResolved(p.InterventionID, p.Action)

	case domain.EventPong:
		// Heartbeat acknowledgment, no state effect.

	default:
		r.logger.Debug("ignoring event", slog.String("type", string(env.Type)))
	}
}

func (r *Reconciler) decode(env domain.Envelope, out interface{}) bool {
	if err := json.Unmarshal(env.Payload, out); err != nil {
		r.logger.Debug("dropping malformed payload",
			slog.String("type", string(env.Type)),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// Replace installs an authoritative snapshot wholesale. This is the only
// path that may shrink state to zero from a large backlog. The fallback
// poller uses it with count derived from the fetched list.
func (r *Reconciler) Replace(pendingCount int, interventions []domain.Intervention) {
	r.mu.Lock()
	r.pendingCount = pendingCount
	if r.pendingCount < 0 {
		r.pendingCount = 0
	}
	r.interventions = append([]domain.Intervention(nil), interventions...)
	r.mu.Unlock()

	r.notifyChange()
}

// add prepends a new pending intervention (newest-first ordering) and
// notifies intervention observers exactly once.
func (r *Reconciler) add(iv domain.Intervention) {
	r.mu.Lock()
	r.interventions = append([]domain.Intervention{iv}, r.interventions...)
	r.pendingCount++
	fns := make([]func(domain.Intervention), 0, len(r.onNew))
	for _, fn := range r.onNew {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(iv)
	}
	r.notifyChange()
}

// MarkResolved removes the intervention with the given id. Duplicate
// resolutions are no-ops: the count only moves when an entry is actually
// removed, so a resolve command's HTTP response and the matching channel
// event converge to the same state in either arrival order.
func (r *Reconciler) MarkResolved(id, action string) {
	r.mu.Lock()
	removed := false
	kept := r.interventions[:0]
	for _, iv := range r.interventions {
		if iv.ID == id {
			removed = true
			continue
		}
		kept = append(kept, iv)
	}
	r.interventions = kept

	var fns []func(string, string)
	if removed {
		if r.pendingCount > 0 {
			r.pendingCount--
		}
		fns = make([]func(string, string), 0, len(r.onResolved))
		for _, fn := range r.onResolved {
			fns = append(fns, fn)
		}
	}
	r.mu.Unlock()

	if !removed {
		return
	}
	for _, fn := range fns {
		fn(id, action)
	}
	r.notifyChange()
}

// PendingCount returns the reconciled pending count.
func (r *Reconciler) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingCount
}

// Interventions returns a copy of the pending set, newest first.
func (r *Reconciler) Interventions() []domain.Intervention {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Intervention(nil), r.interventions...)
}

// OnIntervention registers an observer for newly arrived interventions.
// The returned func unregisters it.
func (r *Reconciler) OnIntervention(fn func(domain.Intervention)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.onNew[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.onNew, id)
		r.mu.Unlock()
	}
}

// OnResolved registers an observer invoked when an intervention leaves the
// pending set, with the action taken.
func (r *Reconciler) OnResolved(fn func(id, action string)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.onResolved[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.onResolved, id)
		r.mu.Unlock()
	}
}

// OnChange registers an observer invoked after any state mutation. Used for
// snapshot persistence and view invalidation.
func (r *Reconciler) OnChange(fn func()) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.onChange[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.onChange, id)
		r.mu.Unlock()
	}
}

func (r *Reconciler) notifyChange() {
	r.mu.RLock()
	fns := make([]func(), 0, len(r.onChange))
	for _, fn := range r.onChange {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

var _ ports.EventSink = (*Reconciler)(nil)
