// Package connection keeps a Moppy bridge connected.
//
// USB serial adapters disappear when a cable is pulled and come back under
// the same device name when it is plugged in again; network gateways
// restart. The Manager in this package notices the loss (through the
// bridge's termination callback) and reopens the port with exponential
// backoff until it succeeds or the manager is closed.
//
// # Reconnection Strategy
//
//  1. Initial delay: 250 milliseconds
//  2. Exponential increase: 500ms, 1s, 2s, 4s, 8s
//  3. Maximum delay: 10 seconds
//  4. Continue at 10s until successful
//  5. Reset to 250ms once the port is open again
//
// # Jitter
//
// Several bridges on one host (one per serial adapter) would otherwise
// retry in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.2)
//
// Messages sent while reconnecting are dropped by the bridge (or rejected
// with ErrNotConnected in strict mode); nothing is queued for replay.
package connection
