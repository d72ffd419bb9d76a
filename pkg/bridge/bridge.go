package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/moppy-project/moppy-go/pkg/log"
	"github.com/moppy-project/moppy-go/pkg/transport"
	"github.com/moppy-project/moppy-go/pkg/wire"
)

// Bridge errors.
var (
	// ErrConnectFailed wraps the port error when Connect cannot open the port.
	ErrConnectFailed = errors.New("connect failed")

	// ErrNotConnected is returned by Send in strict mode while disconnected.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned by Connect on a connected bridge.
	ErrAlreadyConnected = errors.New("already connected")
)

// Consumer receives every message read from the port.
type Consumer func(wire.Message)

// Stats holds bridge counters. They accumulate across reconnects.
type Stats struct {
	FramesIn       uint64
	FramesOut      uint64
	BytesDiscarded uint64
	ConsumerPanics uint64
}

// contextOpener is implemented by ports that can abandon a slow open.
type contextOpener interface {
	OpenContext(ctx context.Context) error
}

// session is one Connect/Close cycle.
type session struct {
	connID string
	ctx    context.Context
	cancel context.CancelFunc
	framer *transport.Framer
	done   chan struct{}
	err    error // guarded by Bridge.mu; final once done is closed
}

type consumerEntry struct {
	id uint64
	fn Consumer
}

// Bridge reads and writes Moppy messages on one port.
type Bridge struct {
	port   transport.Port
	config Config
	id     string
	logger *slog.Logger

	state atomic.Int32

	mu            sync.Mutex
	session       *session
	cancelConnect context.CancelFunc // set while Connect is in progress

	consumersMu  sync.RWMutex
	consumers    []consumerEntry
	nextID       uint64
	onTerminated []func(error)

	framesIn       atomic.Uint64
	framesOut      atomic.Uint64
	discarded      atomic.Uint64
	consumerPanics atomic.Uint64
}

// New creates a bridge for port. The port is not opened until Connect.
func New(port transport.Port, config Config) *Bridge {
	config.applyDefaults()

	id := config.ID
	if id == "" {
		id = uuid.New().String()
	}

	b := &Bridge{
		port:   port,
		config: config,
		id:     id,
		logger: config.Logger.With("bridge", id, "port", port.Name()),
	}
	b.state.Store(int32(StateDisconnected))
	return b
}

// ID returns the bridge identifier used in logs.
func (b *Bridge) ID() string {
	return b.id
}

// Port returns the underlying port.
func (b *Bridge) Port() transport.Port {
	return b.port
}

// State returns the current connection state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// IsConnected reports whether the bridge is connected.
func (b *Bridge) IsConnected() bool {
	return b.State() == StateConnected
}

// ConnectionID returns the identifier of the current (or last) connection,
// or "" if the bridge was never connected.
func (b *Bridge) ConnectionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return ""
	}
	return b.session.connID
}

// Connect opens the port and starts the background reader.
//
// If a previous reader is still draining after Close, Connect waits for it
// (bounded by ctx) so two readers never share the port. A Close issued
// while Connect is in progress aborts it; Connect then returns an error
// wrapping ErrConnectFailed and leaves the port closed.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if !b.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		b.mu.Unlock()
		return ErrAlreadyConnected
	}
	connectCtx, cancelConnect := context.WithCancel(ctx)
	defer cancelConnect()
	b.cancelConnect = cancelConnect
	prev := b.session
	b.mu.Unlock()

	if prev != nil {
		select {
		case <-prev.done:
		case <-connectCtx.Done():
			b.abortConnect()
			return fmt.Errorf("%w: %w", ErrConnectFailed, connectCtx.Err())
		}
	}

	var err error
	if opener, ok := b.port.(contextOpener); ok {
		err = opener.OpenContext(connectCtx)
	} else {
		err = b.port.Open()
	}
	if err != nil {
		b.abortConnect()
		b.logger.Warn("connect failed", "error", err)
		b.logError(log.LayerTransport, "", err, "open port")
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	// The reader outlives the Connect call; only Close cancels it.
	readerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		connID: uuid.New().String(),
		ctx:    readerCtx,
		cancel: cancel,
		framer: transport.NewFramer(b.port, b.config.Framing),
		done:   make(chan struct{}),
	}
	if b.config.ProtocolLogger != nil {
		s.framer.SetLogger(b.config.ProtocolLogger, s.connID, b.port.Name())
	}

	// Publish the session as connected before the reader runs, so a stream
	// that ends immediately is torn down by the reader itself.
	b.mu.Lock()
	b.cancelConnect = nil
	if err := connectCtx.Err(); err != nil {
		cancel()
		_ = b.port.Close()
		b.state.Store(int32(StateDisconnected))
		b.mu.Unlock()
		b.logger.Info("connect aborted", "error", err)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	b.session = s
	b.state.Store(int32(StateConnected))
	b.mu.Unlock()

	b.logger.Info("connected", "conn_id", s.connID)
	b.logStateChange(s.connID, StateConnecting, StateConnected, "")

	go b.readLoop(s)
	return nil
}

func (b *Bridge) abortConnect() {
	b.mu.Lock()
	b.cancelConnect = nil
	b.state.Store(int32(StateDisconnected))
	b.mu.Unlock()
}

// Send writes m to the port.
//
// While disconnected Send returns nil without writing, unless StrictSend
// is set. Write failures are returned.
func (b *Bridge) Send(m wire.Message) error {
	s := b.currentSession()
	if b.State() != StateConnected || s == nil {
		if b.config.StrictSend {
			return ErrNotConnected
		}
		return nil
	}

	if err := s.framer.WriteMessage(m); err != nil {
		// Lost a race with Close: same outcome as sending after it.
		if b.State() != StateConnected && !b.config.StrictSend {
			return nil
		}
		return fmt.Errorf("send %s: %w", m, err)
	}
	b.framesOut.Add(1)
	return nil
}

// Close stops the reader and closes the port. It does not wait for the
// reader to exit; use Done for that. Closing a disconnected bridge
// returns nil. Closing while Connect is in progress makes that Connect
// fail.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.State() == StateConnecting && b.cancelConnect != nil {
		b.cancelConnect()
		b.mu.Unlock()
		return nil
	}
	s := b.session
	if s == nil || !b.state.CompareAndSwap(int32(StateConnected), int32(StateClosing)) {
		b.mu.Unlock()
		return nil
	}

	// Cancel first so the reader treats the port error as an orderly stop.
	s.cancel()
	err := b.port.Close()
	b.state.Store(int32(StateDisconnected))
	b.mu.Unlock()

	b.logger.Info("disconnected", "conn_id", s.connID)
	b.logStateChange(s.connID, StateConnected, StateDisconnected, "closed")

	if err != nil {
		return fmt.Errorf("close port: %w", err)
	}
	return nil
}

// Done returns a channel that is closed when the current reader exits.
// Before the first Connect the channel is already closed.
func (b *Bridge) Done() <-chan struct{} {
	if s := b.currentSession(); s != nil {
		return s.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Err returns why the last reader stopped: nil after Close, io.EOF when
// the stream ended, an error wrapping transport.ErrFrameTruncated when it
// ended mid-frame, or the port's read error. It returns nil while the
// reader is running.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	return b.session.err
}

// Subscribe registers a consumer and returns a function that removes it.
// Consumers are called in registration order. Subscribing during dispatch
// takes effect from the next message.
func (b *Bridge) Subscribe(c Consumer) (unsubscribe func()) {
	if c == nil {
		return func() {}
	}

	b.consumersMu.Lock()
	b.nextID++
	id := b.nextID
	b.consumers = append(b.consumers, consumerEntry{id: id, fn: c})
	b.consumersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.removeConsumer(id) })
	}
}

// OnTerminated registers a callback invoked each time a reader exits,
// with the same error Err reports.
func (b *Bridge) OnTerminated(fn func(error)) {
	b.consumersMu.Lock()
	defer b.consumersMu.Unlock()
	b.onTerminated = append(b.onTerminated, fn)
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		FramesIn:       b.framesIn.Load(),
		FramesOut:      b.framesOut.Load(),
		BytesDiscarded: b.discarded.Load(),
		ConsumerPanics: b.consumerPanics.Load(),
	}
}

func (b *Bridge) currentSession() *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

func (b *Bridge) removeConsumer(id uint64) {
	b.consumersMu.Lock()
	defer b.consumersMu.Unlock()
	for i, e := range b.consumers {
		if e.id == id {
			// Copy so snapshots held by a running dispatch stay intact.
			next := make([]consumerEntry, 0, len(b.consumers)-1)
			next = append(next, b.consumers[:i]...)
			b.consumers = append(next, b.consumers[i+1:]...)
			return
		}
	}
}

func (b *Bridge) readLoop(s *session) {
	defer close(s.done)

	var lastDiscarded uint64
	for {
		m, err := s.framer.ReadMessage()

		if d := s.framer.Discarded(); d != lastDiscarded {
			b.discarded.Add(d - lastDiscarded)
			lastDiscarded = d
		}

		if err != nil {
			b.terminate(s, err)
			return
		}

		b.framesIn.Add(1)
		b.dispatch(m)
	}
}

// terminate records why the reader stopped and, when the stream ended on
// its own, closes the port.
func (b *Bridge) terminate(s *session, readErr error) {
	var err error
	if s.ctx.Err() == nil {
		err = readErr
	}

	b.mu.Lock()
	s.err = err
	ownsPort := err != nil && b.session == s &&
		b.state.CompareAndSwap(int32(StateConnected), int32(StateClosing))
	b.mu.Unlock()

	switch {
	case err == nil:
		b.logger.Debug("reader stopped", "conn_id", s.connID)
	case errors.Is(err, io.EOF):
		b.logger.Info("stream ended", "conn_id", s.connID)
	case errors.Is(err, transport.ErrFrameTruncated):
		b.logger.Warn("stream ended mid-frame", "conn_id", s.connID, "error", err)
		b.logError(log.LayerTransport, s.connID, err, "read loop")
	default:
		b.logger.Warn("read failed", "conn_id", s.connID, "error", err)
		b.logError(log.LayerTransport, s.connID, err, "read loop")
	}

	if ownsPort {
		s.cancel()
		if cerr := b.port.Close(); cerr != nil {
			b.logger.Debug("close after read error", "conn_id", s.connID, "error", cerr)
		}
		b.state.Store(int32(StateDisconnected))
		b.logStateChange(s.connID, StateConnected, StateDisconnected, err.Error())
	}

	b.consumersMu.RLock()
	callbacks := b.onTerminated
	b.consumersMu.RUnlock()
	for _, fn := range callbacks {
		fn(err)
	}
}

func (b *Bridge) dispatch(m wire.Message) {
	b.consumersMu.RLock()
	consumers := b.consumers
	b.consumersMu.RUnlock()

	for _, e := range consumers {
		b.deliver(e, m)
	}
}

func (b *Bridge) deliver(e consumerEntry, m wire.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.consumerPanics.Add(1)
			b.logger.Warn("consumer panicked", "consumer", e.id, "message", m.String(), "panic", r)
		}
	}()
	e.fn(m)
}

func (b *Bridge) logStateChange(connID string, oldState, newState State, reason string) {
	if b.config.ProtocolLogger == nil {
		return
	}
	b.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerBridge,
		Category:     log.CategoryState,
		PortName:     b.port.Name(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})
}

func (b *Bridge) logError(layer log.Layer, connID string, err error, op string) {
	if b.config.ProtocolLogger == nil {
		return
	}
	b.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        layer,
		Category:     log.CategoryError,
		PortName:     b.port.Name(),
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: op,
		},
	})
}
