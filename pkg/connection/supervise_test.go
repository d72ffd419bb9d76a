package connection

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moppy-project/moppy-go/pkg/bridge"
	"github.com/moppy-project/moppy-go/pkg/transport"
	"github.com/moppy-project/moppy-go/pkg/wire"
)

var errUnplugged = errors.New("device not present")

// hotplugPort behaves like a USB serial adapter that can be unplugged.
type hotplugPort struct {
	mu      sync.Mutex
	present bool
	conn    net.Conn
	peers   chan net.Conn
}

func newHotplugPort() *hotplugPort {
	return &hotplugPort{present: true, peers: make(chan net.Conn, 8)}
}

func (p *hotplugPort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present {
		return errUnplugged
	}
	if p.conn != nil {
		return transport.ErrPortOpen
	}
	a, b := net.Pipe()
	p.conn = a
	p.peers <- b
	return nil
}

func (p *hotplugPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *hotplugPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

func (p *hotplugPort) Name() string { return "/dev/ttyHOTPLUG" }

func (p *hotplugPort) Read(b []byte) (int, error) {
	conn := p.current()
	if conn == nil {
		return 0, transport.ErrPortClosed
	}
	return conn.Read(b)
}

func (p *hotplugPort) Write(b []byte) (int, error) {
	conn := p.current()
	if conn == nil {
		return 0, transport.ErrPortClosed
	}
	return conn.Write(b)
}

func (p *hotplugPort) current() net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *hotplugPort) setPresent(present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.present = present
}

func (p *hotplugPort) peer(t *testing.T) net.Conn {
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

func TestSuperviseReconnectsAfterUnplug(t *testing.T) {
	port := newHotplugPort()
	b := bridge.New(port, bridge.DefaultConfig())

	var mu sync.Mutex
	var got []wire.Message
	b.Subscribe(func(m wire.Message) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})

	m := Supervise(b, fastConfig())
	defer m.Close()
	defer b.Close()

	require.NoError(t, m.Connect(context.Background()))
	first := port.peer(t)

	// Unplug: the device side vanishes and the adapter is gone for a while.
	port.setPresent(false)
	require.NoError(t, first.Close())
	waitState(t, m, StateReconnecting)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, b.IsConnected())
	assert.NoError(t, b.Send(wire.PingMessage()), "sends while unplugged are dropped")

	port.setPresent(true)
	waitState(t, m, StateConnected)
	assert.True(t, b.IsConnected())

	second := port.peer(t)
	_, err := second.Write(wire.ResetMessage().Encode())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSuperviseIgnoresOrderlyClose(t *testing.T) {
	port := newHotplugPort()
	b := bridge.New(port, bridge.DefaultConfig())

	m := Supervise(b, fastConfig())
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	port.peer(t)

	require.NoError(t, b.Close())
	<-b.Done()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateConnected, m.State(), "manager is not told about intentional closes")
	assert.False(t, b.IsConnected())
}

func TestSuperviseInitialConnectRetries(t *testing.T) {
	port := newHotplugPort()
	port.setPresent(false)
	b := bridge.New(port, bridge.DefaultConfig())

	m := Supervise(b, fastConfig())
	defer m.Close()
	defer b.Close()

	require.NoError(t, m.ConnectOrRetry(context.Background()))
	assert.ErrorIs(t, m.LastError(), bridge.ErrConnectFailed)
	assert.ErrorIs(t, m.LastError(), errUnplugged)

	port.setPresent(true)
	waitState(t, m, StateConnected)
	assert.True(t, b.IsConnected())
}

// hangupPort opens fine but the device hangs up immediately every time.
type hangupPort struct {
	open  atomic.Bool
	opens atomic.Int32
}

func (p *hangupPort) Open() error {
	if !p.open.CompareAndSwap(false, true) {
		return transport.ErrPortOpen
	}
	p.opens.Add(1)
	return nil
}

func (p *hangupPort) Close() error {
	p.open.Store(false)
	return nil
}

func (p *hangupPort) IsOpen() bool { return p.open.Load() }
func (p *hangupPort) Name() string { return "/dev/ttyHANGUP" }
func (p *hangupPort) Read([]byte) (int, error) { return 0, io.EOF }
func (p *hangupPort) Write(b []byte) (int, error) { return len(b), nil }

func TestSuperviseRetriesImmediateHangup(t *testing.T) {
	port := &hangupPort{}
	b := bridge.New(port, bridge.DefaultConfig())

	cfg := fastConfig()
	cfg.Backoff = BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Jitter: -1}
	m := Supervise(b, cfg)
	defer b.Close()
	defer m.Close()

	require.NoError(t, m.ConnectOrRetry(context.Background()))

	// A supervisor that missed a loss would sit in CONNECTED after the
	// first open.
	require.Eventually(t, func() bool {
		return port.opens.Load() >= 20
	}, 5*time.Second, time.Millisecond, "supervisor stopped retrying")
}

func TestSuperviseTreatsLiveBridgeAsConnected(t *testing.T) {
	port := newHotplugPort()
	b := bridge.New(port, bridge.DefaultConfig())
	defer b.Close()

	require.NoError(t, b.Connect(context.Background()))
	port.peer(t)

	m := Supervise(b, fastConfig())
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, StateConnected, m.State())
}
