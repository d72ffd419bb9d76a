package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Manager errors.
var (
	ErrManagerClosed    = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// DefaultConnectTimeout bounds a single reconnection attempt.
const DefaultConnectTimeout = 10 * time.Second

// State represents the managed connection state.
type State uint8

const (
	// StateDisconnected indicates no connection and no retry pending.
	StateDisconnected State = iota

	// StateConnecting indicates an explicit Connect is in progress.
	StateConnecting

	// StateConnected indicates the port is open.
	StateConnected

	// StateReconnecting indicates the backoff loop is retrying.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes the connection. It returns nil on success.
type ConnectFunc func(ctx context.Context) error

// Config configures a Manager.
type Config struct {
	// Backoff controls the delay between attempts.
	Backoff BackoffConfig

	// ConnectTimeout bounds each reconnection attempt (default: 10s).
	ConnectTimeout time.Duration

	// Logger receives reconnection logs (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		Backoff:        DefaultBackoffConfig(),
		ConnectTimeout: DefaultConnectTimeout,
		Logger:         slog.Default(),
	}
}

// Manager manages a connection lifecycle with automatic reconnection.
type Manager struct {
	mu sync.RWMutex

	state         State
	backoff       *Backoff
	connectFn     ConnectFunc
	autoReconnect bool
	timeout       time.Duration
	logger        *slog.Logger
	lastErr       error

	// lostEarly records a loss reported while connectFn was still running.
	lostEarly bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnectCh chan struct{}

	onStateChange  func(oldState, newState State)
	onConnected    func()
	onDisconnected func()
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a manager with the default configuration.
func NewManager(connectFn ConnectFunc) *Manager {
	return NewManagerWithConfig(connectFn, DefaultConfig())
}

// NewManagerWithConfig creates a manager.
func NewManagerWithConfig(connectFn ConnectFunc, cfg Config) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:         StateDisconnected,
		backoff:       NewBackoffWithConfig(cfg.Backoff),
		connectFn:     connectFn,
		autoReconnect: true,
		timeout:       cfg.ConnectTimeout,
		logger:        cfg.Logger,
		ctx:           ctx,
		cancel:        cancel,
		reconnectCh:   make(chan struct{}, 1),
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the connection is up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// LastError returns the error of the most recent failed attempt, or nil.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// SetAutoReconnect enables or disables automatic reconnection.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// Connect makes one connection attempt.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrManagerClosed
	}
	oldState := m.state
	m.state = StateConnecting
	m.lostEarly = false
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateConnecting)

	err := m.connectFn(ctx)

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if err != nil {
		m.state = StateDisconnected
		m.lastErr = err
		m.mu.Unlock()
		m.notifyStateChange(StateConnecting, StateDisconnected)
		return err
	}
	m.state = StateConnected
	m.lastErr = nil
	m.backoff.Reset()
	lost := m.takeLostEarly()
	m.mu.Unlock()

	m.notifyStateChange(StateConnecting, StateConnected)
	m.notifyConnected()
	if lost {
		m.connectionLost()
	}
	return nil
}

// ConnectOrRetry makes one connection attempt and, if it fails, hands over
// to the reconnect loop instead of returning the error. Use it when the
// device may simply not be plugged in yet.
func (m *Manager) ConnectOrRetry(ctx context.Context) error {
	err := m.Connect(ctx)
	if err == nil || errors.Is(err, ErrAlreadyConnected) || errors.Is(err, ErrManagerClosed) {
		return err
	}

	m.logger.Warn("connect failed, retrying in background", "error", err)
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateReconnecting
	m.mu.Unlock()

	m.notifyStateChange(StateDisconnected, StateReconnecting)
	m.triggerReconnect()
	return nil
}

// Disconnect marks the connection as intentionally dropped.
// If autoReconnect is enabled, reconnection is attempted.
func (m *Manager) Disconnect() {
	m.connectionLost()
}

// NotifyConnectionLost reports that the connection dropped on its own.
// This triggers automatic reconnection if enabled.
func (m *Manager) NotifyConnectionLost() {
	m.connectionLost()
}

func (m *Manager) connectionLost() {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
	case StateConnecting, StateReconnecting:
		// The connection died before connectFn returned; act on it once
		// the attempt is recorded as successful.
		m.lostEarly = true
		m.mu.Unlock()
		return
	default:
		m.mu.Unlock()
		return
	}

	oldState := m.state
	autoReconnect := m.autoReconnect
	if autoReconnect {
		m.state = StateReconnecting
	} else {
		m.state = StateDisconnected
	}
	newState := m.state
	m.mu.Unlock()

	m.notifyStateChange(oldState, newState)
	m.mu.RLock()
	onDisconnected := m.onDisconnected
	m.mu.RUnlock()
	if onDisconnected != nil {
		onDisconnected()
	}

	if autoReconnect {
		m.triggerReconnect()
	}
}

// StartReconnectLoop starts the background reconnection loop.
// Call once before reconnection can happen.
func (m *Manager) StartReconnectLoop() {
	m.wg.Add(1)
	go m.reconnectLoop()
}

// Close stops the manager and waits for the reconnect loop to exit.
// It does not close the managed connection.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	m.state = StateClosed
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateClosed)

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

// attemptReconnect retries with backoff until connected or closed.
func (m *Manager) attemptReconnect() {
	for {
		m.mu.RLock()
		state := m.state
		onReconnecting := m.onReconnecting
		m.mu.RUnlock()

		if state != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		attempt := m.backoff.Attempts()

		m.logger.Debug("reconnecting", "attempt", attempt, "delay", delay)
		if onReconnecting != nil {
			onReconnecting(attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		m.mu.Lock()
		m.lostEarly = false
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
		err := m.connectFn(ctx)
		cancel()

		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		if err != nil {
			m.lastErr = err
			m.mu.Unlock()
			m.logger.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}
		m.state = StateConnected
		m.lastErr = nil
		m.backoff.Reset()
		lost := m.takeLostEarly()
		m.mu.Unlock()

		m.logger.Info("reconnected", "attempts", attempt)
		m.notifyStateChange(StateReconnecting, StateConnected)
		m.notifyConnected()
		if lost {
			m.connectionLost()
		}
		return
	}
}

// takeLostEarly must be called with m.mu held.
func (m *Manager) takeLostEarly() bool {
	lost := m.lostEarly
	m.lostEarly = false
	if lost {
		m.logger.Debug("connection lost during connect")
	}
	return lost
}

func (m *Manager) notifyStateChange(oldState, newState State) {
	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(oldState, newState)
	}
}

func (m *Manager) notifyConnected() {
	m.mu.RLock()
	fn := m.onConnected
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback for successful connections.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected sets a callback for connection loss.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnReconnecting sets a callback invoked before each reconnection attempt.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// BackoffAttempts returns the number of attempts since the last success.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}
