package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultDialTimeout bounds how long TCPPort.Open waits for a gateway.
const DefaultDialTimeout = 5 * time.Second

// TCPPort is a Port that talks to a network gateway (moppy-bridge gateway,
// ser2net and similar) over TCP.
type TCPPort struct {
	address     string
	dialTimeout time.Duration

	mu   sync.RWMutex
	conn net.Conn
}

// NewTCPPort creates a TCP port for address ("host:port").
func NewTCPPort(address string) *TCPPort {
	return &TCPPort{
		address:     address,
		dialTimeout: DefaultDialTimeout,
	}
}

// NewConnPort wraps an established connection. The returned port is
// already open; Open returns ErrPortOpen until it is closed.
func NewConnPort(conn net.Conn) *TCPPort {
	return &TCPPort{
		address: conn.RemoteAddr().String(),
		conn:    conn,
	}
}

// Name returns the remote address.
func (p *TCPPort) Name() string {
	return p.address
}

// Open dials the gateway.
func (p *TCPPort) Open() error {
	return p.OpenContext(context.Background())
}

// OpenContext dials the gateway, giving up when ctx is done or the dial
// timeout expires.
func (p *TCPPort) OpenContext(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return ErrPortOpen
	}

	dialer := &net.Dialer{Timeout: p.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Notes are tiny and latency matters more than throughput.
		_ = tcp.SetNoDelay(true)
	}

	p.conn = conn
	return nil
}

// Close closes the connection, unblocking a pending Read.
func (p *TCPPort) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsOpen reports whether the connection is established.
func (p *TCPPort) IsOpen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn != nil
}

// Read reads from the connection.
func (p *TCPPort) Read(b []byte) (int, error) {
	conn := p.current()
	if conn == nil {
		return 0, ErrPortClosed
	}
	return conn.Read(b)
}

// Write writes to the connection.
func (p *TCPPort) Write(b []byte) (int, error) {
	conn := p.current()
	if conn == nil {
		return 0, ErrPortClosed
	}
	return conn.Write(b)
}

func (p *TCPPort) current() net.Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}
