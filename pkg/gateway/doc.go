// Package gateway shares one Moppy bridge with network clients.
//
// The gateway listens on TCP. Every message the bridge reads from the
// serial port is relayed to every connected client, and every complete
// frame a client sends is written to the port. Clients speak the plain
// Moppy frame format, so a transport.TCPPort on another machine can drive
// the devices as if the serial adapter were local.
//
// A slow client never stalls the serial reader: each client has a bounded
// queue and messages that do not fit are dropped for that client only.
//
// Gateways can advertise themselves over mDNS (see package discovery).
package gateway
