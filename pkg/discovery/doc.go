// Package discovery implements mDNS/DNS-SD discovery of Moppy network
// gateways.
//
// A gateway (see package gateway) relays one serial port to TCP clients.
// It advertises itself as:
//
// # Gateway Discovery (_moppy._tcp)
//
// Instance name: a user-chosen name, "moppy-<hostname>" by default.
// TXT records:
//   - dev: serial device the gateway relays (e.g. /dev/ttyUSB0)
//   - baud: serial speed
//   - sb: start byte in hex (omitted for the default 4d)
//   - ver: gateway software version (optional)
//
// Clients browse for the service, pick an instance and dial Address()
// with a transport.TCPPort.
package discovery
