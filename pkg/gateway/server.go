package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/moppy-project/moppy-go/pkg/bridge"
	"github.com/moppy-project/moppy-go/pkg/log"
	"github.com/moppy-project/moppy-go/pkg/transport"
	"github.com/moppy-project/moppy-go/pkg/wire"
)

// Defaults.
const (
	DefaultAddress     = ":7272"
	DefaultMaxClients  = 8
	DefaultClientQueue = 256
)

// Gateway errors.
var (
	ErrAlreadyRunning = errors.New("gateway already running")
	ErrTooManyClients = errors.New("too many clients")
)

// Upstream is the device side of the gateway. *bridge.Bridge implements it.
type Upstream interface {
	Send(m wire.Message) error
	Subscribe(c bridge.Consumer) (unsubscribe func())
}

// Config configures a gateway server.
type Config struct {
	// Address to listen on (default ":7272").
	Address string

	// MaxClients limits concurrent clients (default 8).
	MaxClients int

	// ClientQueue is the per-client outbound buffer in messages (default 256).
	ClientQueue int

	// Framing must match the devices behind the bridge.
	Framing wire.Framing

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger captures client traffic. Nil disables capture.
	ProtocolLogger log.Logger

	// ResetOnLastDisconnect sends a system reset to the devices when the
	// last client goes away, so no drive keeps playing a dangling note.
	ResetOnLastDisconnect bool

	// OnConnect is called when a client connects.
	OnConnect func(*Client)

	// OnDisconnect is called when a client disconnects.
	OnDisconnect func(*Client)
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		Address:     DefaultAddress,
		MaxClients:  DefaultMaxClients,
		ClientQueue: DefaultClientQueue,
		Framing:     wire.DefaultFraming,
		Logger:      slog.Default(),
	}
}

// Server relays messages between an Upstream and TCP clients.
type Server struct {
	config   Config
	upstream Upstream
	logger   *slog.Logger

	listener    net.Listener
	unsubscribe func()

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	clientsMu sync.RWMutex
	clients   map[*Client]struct{}

	relayedIn  atomic.Uint64
	relayedOut atomic.Uint64
	dropped    atomic.Uint64
}

// Stats holds gateway counters.
type Stats struct {
	// FromClients counts messages forwarded from clients to the devices.
	FromClients uint64

	// ToClients counts message deliveries to clients.
	ToClients uint64

	// Dropped counts messages discarded because a client queue was full.
	Dropped uint64
}

// New creates a gateway server for upstream.
func New(upstream Upstream, config Config) *Server {
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.MaxClients <= 0 {
		config.MaxClients = DefaultMaxClients
	}
	if config.ClientQueue <= 0 {
		config.ClientQueue = DefaultClientQueue
	}
	if config.Framing == (wire.Framing{}) {
		config.Framing = wire.DefaultFraming
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Server{
		config:   config,
		upstream: upstream,
		logger:   config.Logger.With("component", "gateway"),
		clients:  make(map[*Client]struct{}),
	}
}

// Start listens and begins relaying.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrAlreadyRunning
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Address, err)
	}

	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)
	s.unsubscribe = s.upstream.Subscribe(s.broadcast)

	s.logger.Info("gateway listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and every client and waits for them to finish.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}

	s.cancel()
	s.unsubscribe()
	s.listener.Close()

	s.clientsMu.Lock()
	for c := range s.clients {
		c.Close()
	}
	s.clientsMu.Unlock()

	s.wg.Wait()
	s.logger.Info("gateway stopped")
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Stats returns a snapshot of the gateway counters.
func (s *Server) Stats() Stats {
	return Stats{
		FromClients: s.relayedIn.Load(),
		ToClients:   s.relayedOut.Load(),
		Dropped:     s.dropped.Load(),
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	c := newClient(conn, s.config)

	s.clientsMu.Lock()
	if len(s.clients) >= s.config.MaxClients || !s.running.Load() {
		s.clientsMu.Unlock()
		s.logger.Warn("rejecting client", "remote", c.remoteAddr, "error", ErrTooManyClients)
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	s.logger.Info("client connected", "client", c.id, "remote", c.remoteAddr)
	s.logClientState(c, "", "CONNECTED")
	if s.config.OnConnect != nil {
		s.config.OnConnect(c)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.writeLoop(s)
	}()

	s.readLoop(c)
	c.Close()

	s.clientsMu.Lock()
	delete(s.clients, c)
	remaining := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Info("client disconnected", "client", c.id, "remote", c.remoteAddr)
	if remaining == 0 && s.config.ResetOnLastDisconnect && s.running.Load() {
		if err := s.upstream.Send(s.config.Framing.Reset()); err != nil {
			s.logger.Warn("reset after last client failed", "error", err)
		}
	}
	s.logClientState(c, "CONNECTED", "DISCONNECTED")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(c)
	}
}

// readLoop forwards client frames to the devices until the client goes away.
func (s *Server) readLoop(c *Client) {
	for {
		m, err := c.framer.ReadMessage()
		if err != nil {
			if errors.Is(err, transport.ErrFrameTruncated) && !c.isClosed() {
				s.logger.Debug("client sent truncated frame", "client", c.id, "error", err)
			}
			return
		}
		if err := s.upstream.Send(m); err != nil {
			s.logger.Warn("relay to devices failed", "client", c.id, "error", err)
			continue
		}
		s.relayedIn.Add(1)
	}
}

// broadcast queues m for every client. It runs on the bridge reader.
func (s *Server) broadcast(m wire.Message) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for c := range s.clients {
		select {
		case c.out <- m:
		default:
			s.dropped.Add(1)
			s.logger.Debug("client queue full, dropping message", "client", c.id)
		}
	}
}

func (s *Server) logClientState(c *Client, oldState, newState string) {
	if s.config.ProtocolLogger == nil {
		return
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerBridge,
		Category:     log.CategoryState,
		PortName:     c.remoteAddr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityGatewayClient,
			OldState: oldState,
			NewState: newState,
		},
	})
}

// Client is one network client of a gateway.
type Client struct {
	conn       net.Conn
	id         string
	remoteAddr string
	framer     *transport.Framer
	out        chan wire.Message

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn net.Conn, config Config) *Client {
	c := &Client{
		conn:       conn,
		id:         uuid.New().String(),
		remoteAddr: conn.RemoteAddr().String(),
		framer:     transport.NewFramer(conn, config.Framing),
		out:        make(chan wire.Message, config.ClientQueue),
		done:       make(chan struct{}),
	}
	if config.ProtocolLogger != nil {
		c.framer.SetLogger(config.ProtocolLogger, c.id, c.remoteAddr)
	}
	return c
}

// ID returns the client's connection ID.
func (c *Client) ID() string { return c.id }

// RemoteAddr returns the client's address.
func (c *Client) RemoteAddr() string { return c.remoteAddr }

// Close disconnects the client.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) writeLoop(s *Server) {
	for {
		select {
		case <-c.done:
			return
		case m := <-c.out:
			if err := c.framer.WriteMessage(m); err != nil {
				s.logger.Debug("write to client failed", "client", c.id, "error", err)
				c.Close()
				return
			}
			s.relayedOut.Add(1)
		}
	}
}
