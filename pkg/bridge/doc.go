// Package bridge connects a Moppy port to the rest of the program.
//
// A Bridge owns one transport.Port. After Connect it runs a background
// reader that turns the inbound byte stream into wire.Message values and
// hands each one, in wire order, to every subscribed consumer. Send writes
// a message to the port from any goroutine.
//
// # Lifecycle
//
//	Disconnected ──Connect──▶ Connected ──Close / stream end──▶ Disconnected
//
// Close cancels the reader and closes the port; it does not wait for the
// reader to exit. Use Done to wait, and Err to see why the reader stopped.
// A closed bridge may be connected again.
//
// # Sending while disconnected
//
// By default Send on a disconnected bridge does nothing and returns nil, so
// a sequencer can keep playing while a device is unplugged. Set
// Config.StrictSend to get ErrNotConnected instead.
//
// # Consumers
//
// Consumers run on the reader goroutine and should return quickly. A
// consumer that panics is recovered and logged; the other consumers and
// the reader keep running.
package bridge
