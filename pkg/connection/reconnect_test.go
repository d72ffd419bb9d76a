package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fastConfig keeps reconnect tests quick and deterministic.
func fastConfig() Config {
	return Config{
		Backoff: BackoffConfig{
			Initial:    10 * time.Millisecond,
			Max:        40 * time.Millisecond,
			Multiplier: 2.0,
			Jitter:     -1,
		},
		ConnectTimeout: time.Second,
	}
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("State() = %v, want %v", m.State(), want)
}

func TestManager(t *testing.T) {
	t.Run("InitialState", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil })
		defer m.Close()

		if m.State() != StateDisconnected {
			t.Errorf("Initial state = %v, want StateDisconnected", m.State())
		}
		if m.IsConnected() {
			t.Error("IsConnected() = true initially")
		}
	})

	t.Run("ConnectSuccess", func(t *testing.T) {
		var onConnected atomic.Bool
		m := NewManager(func(ctx context.Context) error { return nil })
		m.OnConnected(func() { onConnected.Store(true) })
		defer m.Close()

		if err := m.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if !m.IsConnected() {
			t.Error("IsConnected() = false after Connect")
		}
		if !onConnected.Load() {
			t.Error("OnConnected not called")
		}
		if err := m.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
			t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
		}
	})

	t.Run("ConnectFailure", func(t *testing.T) {
		boom := errors.New("no such device")
		m := NewManager(func(ctx context.Context) error { return boom })
		defer m.Close()

		if err := m.Connect(context.Background()); !errors.Is(err, boom) {
			t.Fatalf("Connect() error = %v, want %v", err, boom)
		}
		if m.State() != StateDisconnected {
			t.Errorf("State() = %v, want StateDisconnected", m.State())
		}
		if !errors.Is(m.LastError(), boom) {
			t.Errorf("LastError() = %v, want %v", m.LastError(), boom)
		}
	})

	t.Run("ConnectAfterClose", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil })
		m.Close()
		m.Close()

		if err := m.Connect(context.Background()); !errors.Is(err, ErrManagerClosed) {
			t.Errorf("Connect() error = %v, want ErrManagerClosed", err)
		}
	})

	t.Run("StateTransitions", func(t *testing.T) {
		type transition struct{ old, new State }
		var mu sync.Mutex
		var transitions []transition

		m := NewManager(func(ctx context.Context) error { return nil })
		m.SetAutoReconnect(false)
		m.OnStateChange(func(old, new State) {
			mu.Lock()
			transitions = append(transitions, transition{old, new})
			mu.Unlock()
		})

		_ = m.Connect(context.Background())
		m.Disconnect()
		m.Close()

		expected := []transition{
			{StateDisconnected, StateConnecting},
			{StateConnecting, StateConnected},
			{StateConnected, StateDisconnected},
			{StateDisconnected, StateClosed},
		}

		mu.Lock()
		defer mu.Unlock()
		if len(transitions) != len(expected) {
			t.Fatalf("got %d transitions %v, want %d", len(transitions), transitions, len(expected))
		}
		for i, exp := range expected {
			if transitions[i] != exp {
				t.Errorf("Transition %d: got %v->%v, want %v->%v",
					i, transitions[i].old, transitions[i].new, exp.old, exp.new)
			}
		}
	})
}

func TestManagerReconnect(t *testing.T) {
	t.Run("AutoReconnectOnLoss", func(t *testing.T) {
		var connectCount atomic.Int32
		var disconnected atomic.Bool
		m := NewManagerWithConfig(func(ctx context.Context) error {
			connectCount.Add(1)
			return nil
		}, fastConfig())
		m.OnDisconnected(func() { disconnected.Store(true) })
		m.StartReconnectLoop()
		defer m.Close()

		if err := m.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}

		m.NotifyConnectionLost()
		waitState(t, m, StateConnected)

		if connectCount.Load() != 2 {
			t.Errorf("connect called %d times, want 2", connectCount.Load())
		}
		if !disconnected.Load() {
			t.Error("OnDisconnected not called")
		}
	})

	t.Run("LossDuringConnect", func(t *testing.T) {
		var connectCount atomic.Int32
		var m *Manager
		m = NewManagerWithConfig(func(ctx context.Context) error {
			if connectCount.Add(1) == 1 {
				// The link dies before connectFn has returned.
				m.NotifyConnectionLost()
			}
			return nil
		}, fastConfig())
		m.StartReconnectLoop()
		defer m.Close()

		if err := m.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for connectCount.Load() < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if connectCount.Load() != 2 {
			t.Fatalf("connect called %d times, want 2", connectCount.Load())
		}
		waitState(t, m, StateConnected)
	})

	t.Run("LossDuringReconnect", func(t *testing.T) {
		var connectCount atomic.Int32
		var m *Manager
		m = NewManagerWithConfig(func(ctx context.Context) error {
			switch connectCount.Add(1) {
			case 1:
				return errors.New("not yet")
			case 2:
				m.NotifyConnectionLost()
			}
			return nil
		}, fastConfig())
		m.StartReconnectLoop()
		defer m.Close()

		if err := m.ConnectOrRetry(context.Background()); err != nil {
			t.Fatalf("ConnectOrRetry() error = %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for connectCount.Load() < 3 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if connectCount.Load() != 3 {
			t.Fatalf("connect called %d times, want 3", connectCount.Load())
		}
		waitState(t, m, StateConnected)
	})

	t.Run("BackoffOnFailure", func(t *testing.T) {
		var connectCount atomic.Int32
		var mu sync.Mutex
		var delays []time.Duration

		m := NewManagerWithConfig(func(ctx context.Context) error {
			if connectCount.Add(1) < 4 {
				return errors.New("not yet")
			}
			return nil
		}, fastConfig())
		m.OnReconnecting(func(attempt int, delay time.Duration) {
			mu.Lock()
			delays = append(delays, delay)
			mu.Unlock()
		})
		m.StartReconnectLoop()
		defer m.Close()

		if err := m.ConnectOrRetry(context.Background()); err != nil {
			t.Fatalf("ConnectOrRetry() error = %v", err)
		}
		waitState(t, m, StateConnected)

		mu.Lock()
		defer mu.Unlock()
		want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
		if len(delays) != len(want) {
			t.Fatalf("delays = %v, want %v", delays, want)
		}
		for i := range want {
			if delays[i] != want[i] {
				t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
			}
		}
		if m.BackoffAttempts() != 0 {
			t.Errorf("BackoffAttempts() = %d after success, want 0", m.BackoffAttempts())
		}
		if m.LastError() != nil {
			t.Errorf("LastError() = %v after success, want nil", m.LastError())
		}
	})

	t.Run("DisabledAutoReconnect", func(t *testing.T) {
		var connectCount atomic.Int32
		m := NewManagerWithConfig(func(ctx context.Context) error {
			connectCount.Add(1)
			return nil
		}, fastConfig())
		m.SetAutoReconnect(false)
		m.StartReconnectLoop()
		defer m.Close()

		_ = m.Connect(context.Background())
		m.NotifyConnectionLost()

		time.Sleep(100 * time.Millisecond)

		if m.State() != StateDisconnected {
			t.Errorf("State() = %v, want StateDisconnected", m.State())
		}
		if connectCount.Load() != 1 {
			t.Errorf("connect called %d times, want 1", connectCount.Load())
		}
	})

	t.Run("CloseStopsRetrying", func(t *testing.T) {
		var connectCount atomic.Int32
		m := NewManagerWithConfig(func(ctx context.Context) error {
			connectCount.Add(1)
			return errors.New("unplugged")
		}, fastConfig())
		m.StartReconnectLoop()

		_ = m.ConnectOrRetry(context.Background())
		time.Sleep(50 * time.Millisecond)
		m.Close()

		after := connectCount.Load()
		time.Sleep(100 * time.Millisecond)
		if connectCount.Load() != after {
			t.Errorf("connect called after Close: %d -> %d", after, connectCount.Load())
		}
		if m.State() != StateClosed {
			t.Errorf("State() = %v, want StateClosed", m.State())
		}
	})
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateReconnecting, "RECONNECTING"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
