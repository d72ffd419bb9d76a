package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/moppy-project/moppy-go/pkg/connection"
	"github.com/moppy-project/moppy-go/pkg/gateway"
	"github.com/moppy-project/moppy-go/pkg/transport"
	"github.com/moppy-project/moppy-go/pkg/wire"
)

// Config holds the bridge configuration. It is read from an optional YAML
// file and then overridden by command-line flags.
type Config struct {
	// Device is the serial device, e.g. /dev/ttyUSB0.
	Device string `yaml:"device"`

	// Remote dials a network gateway (host:port) instead of a serial device.
	Remote string `yaml:"remote"`

	BaudRate   int    `yaml:"baud"`
	StartByte  int    `yaml:"start_byte"`
	StrictSend bool   `yaml:"strict_send"`
	LogLevel   string `yaml:"log_level"`

	// ProtocolLog is the path of a .mlog capture file. Empty disables capture.
	ProtocolLog string `yaml:"protocol_log"`

	// Reconnect keeps retrying when the device goes away.
	Reconnect bool                     `yaml:"reconnect"`
	Backoff   connection.BackoffConfig `yaml:"backoff"`

	Gateway GatewayConfig `yaml:"gateway"`
}

// GatewayConfig configures the gateway subcommand.
type GatewayConfig struct {
	Listen     string `yaml:"listen"`
	MaxClients int    `yaml:"max_clients"`

	// ResetOnDisconnect silences the devices when the last client leaves.
	ResetOnDisconnect bool `yaml:"reset_on_disconnect"`

	// Advertise publishes the gateway over mDNS.
	Advertise bool   `yaml:"advertise"`
	Name      string `yaml:"name"`
	Interface string `yaml:"interface"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		BaudRate:  wire.DefaultBaudRate,
		StartByte: int(wire.StartByte),
		LogLevel:  "info",
		Reconnect: true,
		Backoff:   connection.DefaultBackoffConfig(),
		Gateway: GatewayConfig{
			Listen:            gateway.DefaultAddress,
			MaxClients:        gateway.DefaultMaxClients,
			ResetOnDisconnect: true,
			Advertise:         true,
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// findConfigPath scans args for -config/--config before the flag set is
// built, so file values can become flag defaults.
func findConfigPath(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// bindFlags registers the connection flags shared by all subcommands.
// Current values of cfg act as defaults.
func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.String("config", "", "Configuration file path (YAML)")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "Serial device (e.g. /dev/ttyUSB0)")
	fs.StringVar(&cfg.Remote, "remote", cfg.Remote, "Network gateway address host:port (instead of -device)")
	fs.IntVar(&cfg.BaudRate, "baud", cfg.BaudRate, "Serial baud rate")
	fs.IntVar(&cfg.StartByte, "start-byte", cfg.StartByte, "Frame start byte")
	fs.BoolVar(&cfg.StrictSend, "strict", cfg.StrictSend, "Fail sends while disconnected instead of dropping them")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.ProtocolLog, "protocol-log", cfg.ProtocolLog, "Write a protocol capture (.mlog) to this file")
	fs.BoolVar(&cfg.Reconnect, "reconnect", cfg.Reconnect, "Reconnect automatically when the device goes away")
}

// bindGatewayFlags registers the gateway subcommand flags.
func bindGatewayFlags(fs *flag.FlagSet, cfg *GatewayConfig) {
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "TCP listen address")
	fs.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "Maximum concurrent clients")
	fs.BoolVar(&cfg.ResetOnDisconnect, "reset-on-disconnect", cfg.ResetOnDisconnect, "Reset all devices when the last client disconnects")
	fs.BoolVar(&cfg.Advertise, "advertise", cfg.Advertise, "Advertise the gateway over mDNS")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "mDNS instance name (default: derived from hostname)")
	fs.StringVar(&cfg.Interface, "interface", cfg.Interface, "Network interface for mDNS (default: all)")
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Device == "" && c.Remote == "" {
		return errors.New("one of -device or -remote is required")
	}
	if c.Device != "" && c.Remote != "" {
		return errors.New("-device and -remote are mutually exclusive")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if c.StartByte < 0 || c.StartByte > 0xFF {
		return fmt.Errorf("start byte must be 0-255, got %d", c.StartByte)
	}
	if byte(c.StartByte) == wire.SystemAddress {
		return fmt.Errorf("start byte 0x%02X collides with the system address", c.StartByte)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Framing returns the wire framing selected by the configuration.
func (c Config) Framing() wire.Framing {
	f := wire.DefaultFraming
	f.StartByte = byte(c.StartByte)
	return f
}

// PortName is the device or remote address used in logs.
func (c Config) PortName() string {
	if c.Remote != "" {
		return c.Remote
	}
	return c.Device
}

// NewPort builds the transport selected by the configuration.
func (c Config) NewPort() transport.Port {
	if c.Remote != "" {
		return transport.NewTCPPort(c.Remote)
	}
	sc := transport.DefaultSerialConfig(c.Device)
	sc.BaudRate = c.BaudRate
	return transport.NewSerialPort(sc)
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (use: debug, info, warn, error)", s)
	}
}
