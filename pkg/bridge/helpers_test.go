package bridge

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moppy-project/moppy-go/pkg/log"
	"github.com/moppy-project/moppy-go/pkg/transport"
	"github.com/moppy-project/moppy-go/pkg/wire"
)

// pipePort is an in-memory Port. Every Open creates a fresh net.Pipe and
// hands the far end to the test through peers.
type pipePort struct {
	mu    sync.Mutex
	conn  net.Conn
	opens int
	peers chan net.Conn
}

func newPipePort() *pipePort {
	return &pipePort{peers: make(chan net.Conn, 4)}
}

func (p *pipePort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return transport.ErrPortOpen
	}
	a, b := net.Pipe()
	p.conn = a
	p.opens++
	p.peers <- b
	return nil
}

func (p *pipePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *pipePort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

func (p *pipePort) Name() string { return "pipe" }

func (p *pipePort) Read(b []byte) (int, error) {
	conn := p.current()
	if conn == nil {
		return 0, transport.ErrPortClosed
	}
	return conn.Read(b)
}

func (p *pipePort) Write(b []byte) (int, error) {
	conn := p.current()
	if conn == nil {
		return 0, transport.ErrPortClosed
	}
	return conn.Write(b)
}

func (p *pipePort) current() net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *pipePort) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

// peer returns the device side of the most recent Open.
func (p *pipePort) peer(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-p.peers:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("port was not opened")
		return nil
	}
}

// eofPort is a device that hangs up as soon as it is opened: every Read
// reports the end of the stream. If release is set, Open blocks until it
// is closed.
type eofPort struct {
	mu      sync.Mutex
	open    bool
	opens   int
	release chan struct{}
	opening chan struct{}
}

func (p *eofPort) Open() error {
	if p.release != nil {
		close(p.opening)
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return transport.ErrPortOpen
	}
	p.open = true
	p.opens++
	return nil
}

func (p *eofPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	return nil
}

func (p *eofPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *eofPort) Name() string { return "eof" }

func (p *eofPort) Read([]byte) (int, error) { return 0, io.EOF }

func (p *eofPort) Write(b []byte) (int, error) { return len(b), nil }

// collector records consumed messages.
type collector struct {
	mu   sync.Mutex
	msgs []wire.Message
}

func (c *collector) consume(m wire.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) messages() []wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.Message(nil), c.msgs...)
}

func (c *collector) wait(t *testing.T, n int) []wire.Message {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.messages()) >= n
	}, 5*time.Second, 5*time.Millisecond, "waiting for %d messages", n)
	return c.messages()
}

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(ev log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingLogger) snapshot() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.events...)
}

func waitDone(t *testing.T, b *Bridge) {
	t.Helper()
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop")
	}
}

func writeFrames(t *testing.T, conn net.Conn, msgs ...wire.Message) {
	t.Helper()
	w := transport.NewFrameWriter(conn)
	for _, m := range msgs {
		require.NoError(t, w.WriteMessage(m))
	}
}
