// Package poller provides the request/response fallback that keeps the view
// fresh while the live channel is down. Interventions are polled only when
// the channel is not open; sessions are always polled, since they are never
// delivered over the live channel.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/autoapply/syncbridge/internal/core/domain"
	"github.com/autoapply/syncbridge/internal/core/ports"
)

const (
	defaultInterventionInterval = 10 * time.Second
	defaultSessionInterval      = 30 * time.Second
)

// InterventionSink receives polled intervention snapshots with refresh
// semantics (wholesale replace).
type InterventionSink interface {
	Replace(pendingCount int, interventions []domain.Intervention)
}

// SessionSink receives polled session snapshots.
type SessionSink interface {
	ReplaceAll(sessions []domain.Session)
}

// Options configures a Poller.
type Options struct {
	Client        ports.BackendClient
	Connection    ports.ConnectionSource
	Interventions InterventionSink
	Sessions      SessionSink

	InterventionInterval time.Duration
	SessionInterval      time.Duration

	Logger *slog.Logger
}

// Poller periodically fetches interventions and sessions. A failed poll is
// logged and the loop keeps its schedule; polling errors are never fatal.
type Poller struct {
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	unregister func()
	running    bool
	wg         sync.WaitGroup
}

// New creates a Poller.
func New(opts Options) *Poller {
	if opts.InterventionInterval <= 0 {
		opts.InterventionInterval = defaultInterventionInterval
	}
	if opts.SessionInterval <= 0 {
		opts.SessionInterval = defaultSessionInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{opts: opts, logger: logger}
}

// Start launches the polling loops and polls once immediately so the view
// is never stale-forever before the first tick. Idempotent while running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	ctx, p.cancel = context.WithCancel(ctx)

	// Poll the moment the live channel degrades instead of waiting out
	// the current tick.
	if p.opts.Connection != nil {
		p.unregister = p.opts.Connection.OnStateChange(func(s ports.ConnectionState) {
			if s != ports.StateClosedError {
				return
			}
			// Track the poll so Stop waits for it. Skip once Stop has
			// flipped running; nothing may apply after Stop returns.
			p.mu.Lock()
			if !p.running {
				p.mu.Unlock()
				return
			}
			p.wg.Add(1)
			p.mu.Unlock()
			go func() {
				defer p.wg.Done()
				p.pollInterventions(ctx)
			}()
		})
	}

	p.wg.Add(2)
	go p.interventionLoop(ctx)
	go p.sessionLoop(ctx)
	p.mu.Unlock()
}

// Stop cancels the loops and waits for them to exit. No poll applies after
// Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	if p.unregister != nil {
		p.unregister()
		p.unregister = nil
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) interventionLoop(ctx context.Context) {
	defer p.wg.Done()

	p.pollInterventions(ctx)

	ticker := time.NewTicker(p.opts.InterventionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollInterventions(ctx)
		}
	}
}

func (p *Poller) sessionLoop(ctx context.Context) {
	defer p.wg.Done()

	p.pollSessions(ctx)

	ticker := time.NewTicker(p.opts.SessionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollSessions(ctx)
		}
	}
}

// pollInterventions fetches the pending list unless the live channel is
// open, in which case the channel is authoritative and the poll is skipped.
func (p *Poller) pollInterventions(ctx context.Context) {
	if p.opts.Connection != nil && p.opts.Connection.State() == ports.StateOpen {
		return
	}

	items, err := p.opts.Client.ListInterventions(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("intervention poll failed", slog.String("error", err.Error()))
		return
	}
	p.opts.Interventions.Replace(len(items), items)
}

func (p *Poller) pollSessions(ctx context.Context) {
	sessions, err := p.opts.Client.ListSessions(ctx, false)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("session poll failed", slog.String("error", err.Error()))
		return
	}
	p.opts.Sessions.ReplaceAll(sessions)
}
