// Package transport moves Moppy frames over a byte stream.
//
// The transport layer handles:
//   - Opening and closing the underlying port (serial device or TCP gateway)
//   - Detecting frame boundaries in the inbound byte stream
//   - Resynchronizing after garbage or a truncated frame
//   - Serializing outbound writes
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      Moppy messages (wire)     │
//	├────────────────────────────────┤
//	│   Start-byte framing (≤259B)   │
//	├────────────────────────────────┤
//	│  Serial 57600 8N1  │   TCP     │
//	└────────────────────────────────┘
//
// # Resynchronization
//
// The reader skips every byte until it sees the start byte. From there on
// it is driven purely by offsets: address, optional sub-address, length,
// then exactly length body bytes. This lets a reader attach in the middle
// of a stream, or recover after line noise, without any escaping.
//
// # Truncation
//
// If the stream ends in the middle of a frame, ReadMessage returns
// ErrFrameTruncated and the partial frame is dropped. It is never delivered
// as a shorter message.
package transport
