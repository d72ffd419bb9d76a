// Package wire defines the Moppy serial message format.
//
// Every message on the wire is a frame that starts with a fixed start byte,
// followed by an address, an optional sub-address, a body length and the
// body itself. All fields are single bytes, so there are no endianness
// concerns.
//
// # Frame Layout
//
//	┌───────┬─────────┬────────────┬────────┬──────────────┐
//	│ START │ address │ subAddress │ length │ body[length] │
//	└───────┴─────────┴────────────┴────────┴──────────────┘
//
// The sub-address is omitted for system messages (address equal to the
// system address). Device messages always carry one. The body holds 0-255
// bytes, so a frame is never longer than 259 bytes.
//
// # Escaping
//
// The start byte is not escaped. A body byte with the same value as the
// start byte is plain payload: once a frame has started, the reader is
// driven by offsets and the declared length, never by byte values.
//
// # Commands
//
// By convention the first body byte is a command byte (see commands.go) and
// the remaining bytes are its payload. The framing layer does not depend on
// this convention.
package wire
