// Package log provides structured protocol capture for Moppy bridges.
//
// This package defines the Logger interface and Event types for recording
// what happens on a serial link at the transport, wire and bridge layers.
// It is separate from operational logging (slog): protocol capture gives a
// complete machine-readable trace of every frame for debugging devices.
//
// # Basic Usage
//
// Bridges accept an optional protocol logger:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For bench sessions: write to a binary capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/moppy/bridge.mlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded messages (MessageEvent)
//   - Bridge: connection and reader state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with the .mlog
// extension. The moppy-log CLI provides viewing, filtering and export.
package log
