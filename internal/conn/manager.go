// Package conn owns the live duplex channels to the automation backend: the
// long-lived intervention stream and short-lived per-session channels. It
// handles dialing, heartbeats, reconnection, and clean shutdown; inbound
// envelopes are forwarded to an EventSink in arrival order.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autoapply/syncbridge/internal/core/domain"
	"github.com/autoapply/syncbridge/internal/core/ports"
)

const (
	defaultReconnectInterval = 5 * time.Second
	defaultHeartbeatInterval = 30 * time.Second

	// reconnectJitter spreads redials of a fixed interval by +/-20%.
	reconnectJitter = 0.2
)

// Options configures a Manager.
type Options struct {
	// URL is the full websocket endpoint.
	URL string

	// Sink receives decoded envelopes. Required.
	Sink ports.EventSink

	// AutoReconnect redials after a non-clean close.
	AutoReconnect bool

	// ReconnectInterval is the base redial delay when MaxRetries is zero.
	ReconnectInterval time.Duration

	// HeartbeatInterval is the ping cadence while open.
	HeartbeatInterval time.Duration

	// MaxRetries bounds consecutive failed redials. Zero retries forever
	// with a jittered fixed interval; a positive value switches to a
	// linearly increasing delay (RetryDelay * attempt) and surfaces a
	// terminal error once exhausted. Session-scoped channels use this.
	MaxRetries int

	// RetryDelay is the linear-backoff unit when MaxRetries is positive.
	RetryDelay time.Duration

	// NotFoundMessage is the terminal error surfaced on the reserved
	// not-found close code.
	NotFoundMessage string

	Logger *slog.Logger
}

// Manager owns one websocket to the backend. Connect is idempotent; all
// failures surface through State and Err rather than returned errors, so a
// broken backend degrades the view instead of crashing callers.
type Manager struct {
	opts   Options
	dialer *websocket.Dialer
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	state     ports.ConnectionState
	err       error
	retries   int
	gen       int // connection generation, guards stale read loops
	closing   bool
	torndown  bool
	redial    *time.Timer
	listeners map[int]func(ports.ConnectionState)
	nextID    int

	// writeMu serializes frame writes; gorilla allows one writer at a time.
	writeMu sync.Mutex
}

// NewManager creates a Manager. It does not dial until Connect.
func NewManager(opts Options) *Manager {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.NotFoundMessage == "" {
		opts.NotFoundMessage = "resource not found"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:      opts,
		dialer:    websocket.DefaultDialer,
		logger:    logger,
		state:     ports.StateClosedClean,
		listeners: make(map[int]func(ports.ConnectionState)),
	}
}

// Connect establishes the channel. Calling it while the channel is open or
// a dial is in flight is a no-op. Dial failures never surface here; they
// arrive asynchronously via State and Err.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.torndown || m.state == ports.StateOpen || m.state == ports.StateConnecting {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(ports.StateConnecting)
	gen := m.gen
	m.mu.Unlock()

	go m.dial(ctx, gen)
}

func (m *Manager) dial(ctx context.Context, gen int) {
	conn, _, err := m.dialer.DialContext(ctx, m.opts.URL, nil)

	m.mu.Lock()
	if m.torndown || gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		m.logger.Warn("channel dial failed",
			slog.String("url", m.opts.URL),
			slog.String("error", err.Error()))
		m.err = domain.ErrTransient("failed to connect")
		m.setStateLocked(ports.StateClosedError)
		m.scheduleReconnectLocked(ctx)
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.err = nil
	m.retries = 0
	m.setStateLocked(ports.StateOpen)
	m.mu.Unlock()

	m.logger.Info("channel open", slog.String("url", m.opts.URL))

	go m.readLoop(ctx, conn, gen)
	go m.heartbeat(ctx, conn, gen)
}

// readLoop is the single reader for one connection. Envelopes are decoded
// and forwarded in arrival order; undecodable frames are dropped.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(ctx, gen, err)
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.logger.Debug("dropping malformed frame", slog.String("error", err.Error()))
			continue
		}
		m.opts.Sink.Apply(env)
	}
}

// heartbeat sends the plain ping control frame on a fixed cadence while the
// connection it was started for is still current.
func (m *Manager) heartbeat(ctx context.Context, conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			current := !m.torndown && gen == m.gen && m.state == ports.StateOpen
			m.mu.Unlock()
			if !current {
				return
			}
			m.write(conn, domain.FramePing)
		}
	}
}

func (m *Manager) handleDisconnect(ctx context.Context, gen int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.torndown || gen != m.gen {
		return
	}
	m.gen++
	m.conn = nil

	if m.closing {
		m.closing = false
		m.setStateLocked(ports.StateClosedClean)
		return
	}

	if ce, ok := err.(*websocket.CloseError); ok {
		switch ce.Code {
		case websocket.CloseNormalClosure:
			// Only a closure this client requested, or the server's
			// normal closure, ends the channel for good. Going-away
			// (server restart) falls through to the redial path.
			m.setStateLocked(ports.StateClosedClean)
			return
		case domain.CloseSessionNotFound:
			// Server-signaled not-found: terminal, never redial.
			m.err = domain.ErrNotFound(m.opts.NotFoundMessage)
			m.setStateLocked(ports.StateClosedError)
			return
		}
	}

	m.logger.Warn("channel closed", slog.String("error", err.Error()))
	m.err = domain.ErrTransient("connection lost")
	m.setStateLocked(ports.StateClosedError)
	m.scheduleReconnectLocked(ctx)
}

// scheduleReconnectLocked arms the redial timer. Caller holds mu.
func (m *Manager) scheduleReconnectLocked(ctx context.Context) {
	if !m.opts.AutoReconnect || m.torndown {
		return
	}

	if m.opts.MaxRetries > 0 && m.retries >= m.opts.MaxRetries {
		m.err = domain.ErrTerminal("connection failed")
		m.logger.Warn("retry budget exhausted", slog.Int("retries", m.retries))
		return
	}
	m.retries++

	delay := m.redialDelay()
	m.redial = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.torndown || m.state == ports.StateOpen || m.state == ports.StateConnecting {
			m.mu.Unlock()
			return
		}
		m.setStateLocked(ports.StateConnecting)
		gen := m.gen
		m.mu.Unlock()
		m.dial(ctx, gen)
	})

	m.logger.Info("reconnect scheduled",
		slog.Duration("delay", delay),
		slog.Int("attempt", m.retries))
}

// redialDelay picks the next delay: jittered fixed interval for unbounded
// channels, linearly increasing for bounded session channels.
func (m *Manager) redialDelay() time.Duration {
	if m.opts.MaxRetries > 0 {
		unit := m.opts.RetryDelay
		if unit <= 0 {
			unit = defaultReconnectInterval
		}
		return unit * time.Duration(m.retries)
	}
	base := float64(m.opts.ReconnectInterval)
	jitter := 1 + reconnectJitter*(2*rand.Float64()-1)
	return time.Duration(base * jitter)
}

// Close performs a clean shutdown: close frame with the normal-closure code,
// redial timer cancelled, no further state mutations. Safe to call twice.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.torndown {
		m.mu.Unlock()
		return
	}
	m.torndown = true
	m.closing = true
	m.gen++
	if m.redial != nil {
		m.redial.Stop()
		m.redial = nil
	}
	conn := m.conn
	m.conn = nil
	m.setStateLocked(ports.StateClosedClean)
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown"),
			time.Now().Add(time.Second))
		m.writeMu.Unlock()
		conn.Close()
	}
}

// Ping sends the heartbeat control frame. Fire-and-forget.
func (m *Manager) Ping() { m.send(domain.FramePing) }

// Refresh asks the backend to resend the authoritative snapshot.
// Fire-and-forget.
func (m *Manager) Refresh() { m.send(domain.FrameRefresh) }

func (m *Manager) send(frame string) {
	m.mu.Lock()
	conn := m.conn
	open := m.state == ports.StateOpen
	m.mu.Unlock()
	if !open || conn == nil {
		return
	}
	m.write(conn, frame)
}

func (m *Manager) write(conn *websocket.Conn, frame string) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		m.logger.Debug("frame write failed",
			slog.String("frame", frame),
			slog.String("error", err.Error()))
	}
}

// State returns the current connection state.
func (m *Manager) State() ports.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the last observed error, nil while healthy.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// OnStateChange registers a state listener. Listeners run outside the state
// lock and must not block for long.
func (m *Manager) OnStateChange(fn func(ports.ConnectionState)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// setStateLocked transitions state and notifies listeners. Caller holds mu;
// notification happens on a copy after transition so listeners may call back
// into the manager.
func (m *Manager) setStateLocked(s ports.ConnectionState) {
	if m.state == s {
		return
	}
	m.state = s
	fns := make([]func(ports.ConnectionState), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	go func() {
		for _, fn := range fns {
			fn(s)
		}
	}()
}

var _ ports.ConnectionSource = (*Manager)(nil)

// StateLabel renders a state as the indicator string shown to users.
func StateLabel(s ports.ConnectionState) string {
	switch s {
	case ports.StateOpen:
		return "live"
	case ports.StateConnecting:
		return "connecting"
	default:
		return "offline"
	}
}

// ErrString flattens an error for observable error fields, preferring the
// bridge error's bare message over the decorated Error() form.
func ErrString(err error) string {
	if err == nil {
		return ""
	}
	var be *domain.BridgeError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
