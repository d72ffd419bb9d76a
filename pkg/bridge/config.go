package bridge

import (
	"log/slog"

	"github.com/moppy-project/moppy-go/pkg/log"
	"github.com/moppy-project/moppy-go/pkg/wire"
)

// Config configures a Bridge.
type Config struct {
	// Framing selects the start byte and system address (default: Moppy values).
	Framing wire.Framing

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger captures frames, messages and state changes.
	// Nil disables capture.
	ProtocolLogger log.Logger

	// StrictSend makes Send return ErrNotConnected instead of silently
	// dropping messages while disconnected.
	StrictSend bool

	// ID names the bridge in logs (default: random UUID).
	ID string
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return Config{
		Framing: wire.DefaultFraming,
		Logger:  slog.Default(),
	}
}

func (c *Config) applyDefaults() {
	if c.Framing == (wire.Framing{}) {
		c.Framing = wire.DefaultFraming
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
