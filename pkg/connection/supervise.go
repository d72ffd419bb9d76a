package connection

import (
	"context"
	"errors"
	"log/slog"

	"github.com/moppy-project/moppy-go/pkg/bridge"
)

// Supervise returns a started Manager that keeps b connected.
//
// The manager connects b through Bridge.Connect and starts retrying as soon
// as b's reader stops on its own (stream end, truncated frame, read error).
// An orderly Bridge.Close is not treated as a loss. Call Manager.Close
// before closing the bridge to stop retries.
func Supervise(b *bridge.Bridge, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("bridge", b.ID())

	connect := func(ctx context.Context) error {
		err := b.Connect(ctx)
		if errors.Is(err, bridge.ErrAlreadyConnected) && b.IsConnected() {
			return nil
		}
		return err
	}

	m := NewManagerWithConfig(connect, cfg)
	b.OnTerminated(func(err error) {
		if err == nil {
			return
		}
		m.logger.Warn("connection lost", "error", err)
		m.NotifyConnectionLost()
	})
	m.StartReconnectLoop()
	return m
}
