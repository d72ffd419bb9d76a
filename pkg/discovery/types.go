package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/moppy-project/moppy-go/pkg/wire"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of Moppy gateways.
	ServiceType = "_moppy._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default gateway TCP port.
	DefaultPort = 7272
)

// TXT record keys.
const (
	TXTKeyDevice    = "dev"
	TXTKeyBaudRate  = "baud"
	TXTKeyStartByte = "sb"
	TXTKeyVersion   = "ver"
)

// Limits and timing.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// BrowseTimeout is the default time FindAll listens for answers.
	BrowseTimeout = 3 * time.Second

	// DefaultTTL is the default record TTL.
	DefaultTTL = 120 * time.Second
)

// Discovery errors.
var (
	ErrNotFound            = errors.New("gateway not found")
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidTXT          = errors.New("invalid TXT record")
	ErrInstanceNameTooLong = errors.New("invalid instance name")
)

// GatewayInfo is what a gateway advertises.
type GatewayInfo struct {
	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// Port is the TCP port clients connect to (default DefaultPort).
	Port uint16

	// Device is the serial device being relayed.
	Device string

	// BaudRate is the serial speed (default wire.DefaultBaudRate).
	BaudRate int

	// StartByte is the frame start byte (default wire.StartByte).
	StartByte byte

	// Version is the gateway software version (optional).
	Version string
}

// GatewayService is a gateway found on the network.
type GatewayService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Device    string
	BaudRate  int
	StartByte byte
	Version   string
}

// Address returns a dialable "host:port", preferring the first resolved
// address over the host name.
func (s *GatewayService) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// Framing returns the framing the gateway's devices speak.
func (s *GatewayService) Framing() wire.Framing {
	f := wire.DefaultFraming
	if s.StartByte != 0 {
		f.StartByte = s.StartByte
	}
	return f
}
