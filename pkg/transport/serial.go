package transport

import (
	"fmt"
	"sync"

	"go.bug.st/serial"

	"github.com/moppy-project/moppy-go/pkg/wire"
)

// SerialConfig configures a serial port.
type SerialConfig struct {
	// Device is the OS device name (e.g. /dev/ttyUSB0 or COM3).
	Device string

	// BaudRate defaults to 57600, the rate Moppy firmware listens on.
	BaudRate int
}

// DefaultSerialConfig returns the Moppy serial settings for device.
func DefaultSerialConfig(device string) SerialConfig {
	return SerialConfig{
		Device:   device,
		BaudRate: wire.DefaultBaudRate,
	}
}

// SerialPort is a Port backed by a local serial device (8N1).
type SerialPort struct {
	config SerialConfig

	// open replaces the device opener in tests.
	open func(name string, mode *serial.Mode) (serial.Port, error)

	mu   sync.RWMutex
	port serial.Port
}

// NewSerialPort creates a serial port. The device is not opened yet.
func NewSerialPort(config SerialConfig) *SerialPort {
	if config.BaudRate == 0 {
		config.BaudRate = wire.DefaultBaudRate
	}
	return &SerialPort{
		config: config,
		open:   serial.Open,
	}
}

// ListSerialPorts returns the serial devices present on this machine.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// Name returns the device name.
func (p *SerialPort) Name() string {
	return p.config.Device
}

// Open opens the serial device.
func (p *SerialPort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port != nil {
		return ErrPortOpen
	}

	mode := &serial.Mode{
		BaudRate: p.config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := p.open(p.config.Device, mode)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.config.Device, err)
	}

	// Drop whatever the device sent before we were listening; the framer
	// would resynchronize anyway, but this keeps captures clean.
	_ = port.ResetInputBuffer()

	p.port = port
	return nil
}

// Close closes the serial device, unblocking a pending Read.
func (p *SerialPort) Close() error {
	p.mu.Lock()
	port := p.port
	p.port = nil
	p.mu.Unlock()

	if port == nil {
		return nil
	}
	return port.Close()
}

// IsOpen reports whether the device is open.
func (p *SerialPort) IsOpen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.port != nil
}

// Read reads from the device, blocking until data arrives.
func (p *SerialPort) Read(b []byte) (int, error) {
	port := p.current()
	if port == nil {
		return 0, ErrPortClosed
	}
	return port.Read(b)
}

// Write writes to the device.
func (p *SerialPort) Write(b []byte) (int, error) {
	port := p.current()
	if port == nil {
		return 0, ErrPortClosed
	}
	return port.Write(b)
}

func (p *SerialPort) current() serial.Port {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.port
}
