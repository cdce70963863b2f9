// Package runtime provides the core Bridge struct and lifecycle management
// for the sync bridge: one live channel, one reconciler, one fallback
// poller, one session tracker, and the local view server, wired together
// and torn down as a unit.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/autoapply/syncbridge/internal/api/backend"
	"github.com/autoapply/syncbridge/internal/conn"
	"github.com/autoapply/syncbridge/internal/core/ports"
	"github.com/autoapply/syncbridge/internal/pkg/config"
	"github.com/autoapply/syncbridge/internal/poller"
	"github.com/autoapply/syncbridge/internal/reconcile"
	"github.com/autoapply/syncbridge/internal/server"
	"github.com/autoapply/syncbridge/internal/session"
	"github.com/autoapply/syncbridge/internal/storage/snapshot"
	"github.com/autoapply/syncbridge/internal/view"
)

// Bridge is the main entry point for running the sync bridge. It can be
// embedded in a larger application or run standalone via cmd/syncbridge.
type Bridge struct {
	cfg       *config.Config
	client    ports.BackendClient
	snapshots ports.SnapshotStore
	logger    *slog.Logger

	channel    *conn.Manager
	reconciler *reconcile.Reconciler
	tracker    *session.Tracker
	poll       *poller.Poller
	adapter    *view.Adapter
	srv        *server.Server

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unregisters []func()
	started     bool
}

// New creates a Bridge with the given options. Defaults: config loaded from
// config.yaml/env, a fresh backend client against the configured base URL,
// and the snapshot store named by the config.
func New(opts ...Option) (*Bridge, error) {
	b := &Bridge{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if b.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		b.cfg = cfg
	}

	if b.client == nil {
		b.client = backend.NewClient(
			backend.WithBaseURL(b.cfg.Backend.BaseURL),
			backend.WithAPIKey(b.cfg.Backend.APIKey),
		)
	}

	if b.snapshots == nil {
		switch b.cfg.Storage.Type {
		case "none":
			// Snapshots disabled; the view starts empty until the
			// first poll or channel snapshot.
		case "memory":
			b.snapshots = snapshot.NewMemory()
		default:
			store, err := snapshot.NewSQLite(b.cfg.Storage.SQLite.Path)
			if err != nil {
				return nil, fmt.Errorf("open snapshot store: %w", err)
			}
			b.snapshots = store
		}
	}

	b.reconciler = reconcile.New(b.logger)

	tracker, err := session.NewTracker(session.Options{
		Client:          b.client,
		ReconcileDelay:  b.cfg.Session.ReconcileDelay,
		DetailCacheSize: b.cfg.Session.DetailCache,
		Logger:          b.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create session tracker: %w", err)
	}
	b.tracker = tracker

	b.channel = conn.NewManager(conn.Options{
		URL:               b.cfg.Backend.WSURL + b.cfg.Channel.Path,
		Sink:              b.reconciler,
		AutoReconnect:     b.cfg.Channel.AutoReconnect,
		ReconnectInterval: b.cfg.Channel.ReconnectInterval,
		HeartbeatInterval: b.cfg.Channel.HeartbeatInterval,
		Logger:            b.logger,
	})

	b.poll = poller.New(poller.Options{
		Client:               b.client,
		Connection:           b.channel,
		Interventions:        b.reconciler,
		Sessions:             b.tracker,
		InterventionInterval: b.cfg.Poll.InterventionInterval,
		SessionInterval:      b.cfg.Poll.SessionInterval,
		Logger:               b.logger,
	})

	b.adapter = view.NewAdapter(b.channel, b.reconciler, b.tracker)

	b.srv = server.New(server.Options{
		Port:       b.cfg.Server.Port,
		Adapter:    b.adapter,
		Client:     b.client,
		Tracker:    b.tracker,
		Resolver:   b.reconciler,
		Connection: b.channel,
		Channel:    b.channel,
		Logger:     b.logger,
	})

	return b, nil
}

// Start restores persisted snapshots, opens the live channel, and launches
// the poller and view server.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil
	}
	b.started = true
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.restoreSnapshots(b.ctx)
	b.persistOnChange()

	b.channel.Connect(b.ctx)
	b.poll.Start(b.ctx)
	b.srv.Start()

	b.logger.Info("bridge started",
		slog.String("backend", b.cfg.Backend.BaseURL),
		slog.Int("port", b.cfg.Server.Port))
	return nil
}

// Shutdown tears the bridge down cleanly: the channel closes with a
// normal-closure code (suppressing reconnect) and every timer is cancelled
// before Shutdown returns.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("shutting down bridge")

	if b.cancel != nil {
		b.cancel()
	}

	if err := b.srv.Shutdown(ctx); err != nil {
		b.logger.Error("failed to shutdown view server", slog.String("error", err.Error()))
	}

	b.poll.Stop()
	b.channel.Close()
	b.tracker.Close()

	for _, unregister := range b.unregisters {
		unregister()
	}
	b.unregisters = nil

	if b.snapshots != nil {
		if err := b.snapshots.Close(); err != nil {
			b.logger.Error("failed to close snapshot store", slog.String("error", err.Error()))
		}
	}

	b.logger.Info("bridge shutdown complete")
	return nil
}

// restoreSnapshots seeds local state with the last persisted view so the
// dashboard shows last-known data before the first poll or connect.
func (b *Bridge) restoreSnapshots(ctx context.Context) {
	if b.snapshots == nil {
		return
	}

	if items, err := b.snapshots.LoadInterventions(ctx); err != nil {
		b.logger.Warn("restore interventions failed", slog.String("error", err.Error()))
	} else if len(items) > 0 {
		b.reconciler.Replace(len(items), items)
	}

	if sessions, err := b.snapshots.LoadSessions(ctx); err != nil {
		b.logger.Warn("restore sessions failed", slog.String("error", err.Error()))
	} else if len(sessions) > 0 {
		b.tracker.ReplaceAll(sessions)
	}
}

// persistOnChange writes state back to the snapshot store after every
// mutation. Write-behind with a short timeout; persistence failures only
// log.
func (b *Bridge) persistOnChange() {
	if b.snapshots == nil {
		return
	}

	persist := func(save func(context.Context) error, what string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := save(ctx); err != nil {
			b.logger.Warn("snapshot persist failed",
				slog.String("kind", what),
				slog.String("error", err.Error()))
		}
	}

	b.unregisters = append(b.unregisters,
		b.reconciler.OnChange(func() {
			persist(func(ctx context.Context) error {
				return b.snapshots.SaveInterventions(ctx, b.reconciler.Interventions())
			}, "interventions")
		}),
		b.tracker.OnChange(func() {
			persist(func(ctx context.Context) error {
				return b.snapshots.SaveSessions(ctx, b.tracker.List(false))
			}, "sessions")
		}),
	)
}

// Adapter returns the view model adapter the presentation layer reads.
func (b *Bridge) Adapter() *view.Adapter {
	return b.adapter
}

// Tracker returns the session lifecycle tracker.
func (b *Bridge) Tracker() *session.Tracker {
	return b.tracker
}

// Channel returns the live intervention channel manager.
func (b *Bridge) Channel() *conn.Manager {
	return b.channel
}

// Reconciler returns the event reconciler, mainly for observer
// registration (notifications on new interventions).
func (b *Bridge) Reconciler() *reconcile.Reconciler {
	return b.reconciler
}

// SessionWatch is one open session-detail channel with its progress view.
type SessionWatch struct {
	Progress *session.Progress
	manager  *conn.Manager
}

// State exposes the channel state for the watched session.
func (w *SessionWatch) State() ports.ConnectionState { return w.manager.State() }

// Err exposes the channel error; "Session not found" is terminal.
func (w *SessionWatch) Err() error { return w.manager.Err() }

// Close shuts the session channel with a clean close code.
func (w *SessionWatch) Close() { w.manager.Close() }

// WatchSession opens a session-scoped channel. Unlike the long-lived
// intervention channel, these use a bounded retry budget with linearly
// increasing delay, and the reserved not-found close code surfaces as a
// terminal error with no redial. Independent watches share no state.
func (b *Bridge) WatchSession(ctx context.Context, sessionID string) *SessionWatch {
	progress := session.NewProgress(sessionID)
	manager := conn.NewManager(conn.Options{
		URL:             fmt.Sprintf("%s%s/%s", b.cfg.Backend.WSURL, b.cfg.Session.ChannelPath, sessionID),
		Sink:            progress,
		AutoReconnect:   true,
		MaxRetries:      b.cfg.Session.MaxRetries,
		RetryDelay:      b.cfg.Session.RetryDelay,
		NotFoundMessage: "Session not found",
		Logger:          b.logger,
	})
	manager.Connect(ctx)
	return &SessionWatch{Progress: progress, manager: manager}
}
