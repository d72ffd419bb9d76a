package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moppy-project/moppy-go/pkg/log"
	"github.com/moppy-project/moppy-go/pkg/wire"
)

// ErrFrameTruncated is returned when the stream ends in the middle of a frame.
var ErrFrameTruncated = errors.New("frame truncated")

// readBufferSize holds at least one maximum-size frame.
const readBufferSize = 512

// FrameWriter writes Moppy frames to an io.Writer.
// WriteMessage is safe for concurrent use; every frame is written whole.
type FrameWriter struct {
	w       io.Writer
	framing wire.Framing
	mu      sync.Mutex

	frames atomic.Uint64

	// Protocol logging (optional)
	logger   log.Logger
	connID   string
	portName string
}

// NewFrameWriter creates a frame writer using the default Moppy framing.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return NewFrameWriterWithFraming(w, wire.DefaultFraming)
}

// NewFrameWriterWithFraming creates a frame writer using framing.
func NewFrameWriterWithFraming(w io.Writer, framing wire.Framing) *FrameWriter {
	return &FrameWriter{
		w:       w,
		framing: framing,
	}
}

// SetLogger sets the protocol logger for this writer.
// Each written frame is logged as a transport frame event followed by a
// wire message event.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID, portName string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.logger = logger
	fw.connID = connID
	fw.portName = portName
}

// WriteMessage encodes m and writes the complete frame. Messages whose
// shape disagrees with the writer's framing are rejected unwritten.
func (fw *FrameWriter) WriteMessage(m wire.Message) error {
	if err := fw.framing.Check(m); err != nil {
		return err
	}
	frame := fw.framing.Encode(m)

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	fw.frames.Add(1)

	if fw.logger != nil {
		now := time.Now()
		fw.logger.Log(frameEvent(now, fw.connID, fw.portName, log.DirectionOut, frame, 0))
		fw.logger.Log(messageEvent(now, fw.connID, fw.portName, log.DirectionOut, m))
	}
	return nil
}

// Frames returns the number of frames written.
func (fw *FrameWriter) Frames() uint64 {
	return fw.frames.Load()
}

// FrameReader extracts Moppy frames from a byte stream.
// ReadMessage must not be called concurrently; the counters may be read
// from any goroutine.
type FrameReader struct {
	r       *bufio.Reader
	framing wire.Framing

	frames    atomic.Uint64
	discarded atomic.Uint64

	// Protocol logging (optional)
	logger   log.Logger
	connID   string
	portName string
}

// NewFrameReader creates a frame reader using the default Moppy framing.
func NewFrameReader(r io.Reader) *FrameReader {
	return NewFrameReaderWithFraming(r, wire.DefaultFraming)
}

// NewFrameReaderWithFraming creates a frame reader using framing.
func NewFrameReaderWithFraming(r io.Reader, framing wire.Framing) *FrameReader {
	return &FrameReader{
		r:       bufio.NewReaderSize(r, readBufferSize),
		framing: framing,
	}
}

// SetLogger sets the protocol logger for this reader.
// Call before the first ReadMessage.
func (fr *FrameReader) SetLogger(logger log.Logger, connID, portName string) {
	fr.logger = logger
	fr.connID = connID
	fr.portName = portName
}

// ReadMessage reads the next complete frame and returns its message.
//
// Bytes before a start byte are discarded. Once a start byte is seen the
// frame is read by position, so a start byte inside the body is payload.
//
// ReadMessage returns the underlying error (io.EOF for a clean end of
// stream) when the stream ends between frames, and an error wrapping
// ErrFrameTruncated when it ends inside one.
func (fr *FrameReader) ReadMessage() (wire.Message, error) {
	var skipped int
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			fr.discarded.Add(uint64(skipped))
			return wire.Message{}, err
		}
		if b == fr.framing.StartByte {
			break
		}
		skipped++
	}
	fr.discarded.Add(uint64(skipped))

	address, err := fr.r.ReadByte()
	if err != nil {
		return wire.Message{}, truncated("address", err)
	}

	var sub byte
	if !fr.framing.IsSystem(address) {
		if sub, err = fr.r.ReadByte(); err != nil {
			return wire.Message{}, truncated("sub-address", err)
		}
	}

	length, err := fr.r.ReadByte()
	if err != nil {
		return wire.Message{}, truncated("length", err)
	}

	body := make([]byte, int(length))
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return wire.Message{}, truncated("body", err)
	}

	m, err := fr.framing.DecodeFields(address, sub, body)
	if err != nil {
		return wire.Message{}, err
	}
	fr.frames.Add(1)

	if fr.logger != nil {
		now := time.Now()
		fr.logger.Log(frameEvent(now, fr.connID, fr.portName, log.DirectionIn, fr.framing.Encode(m), skipped))
		fr.logger.Log(messageEvent(now, fr.connID, fr.portName, log.DirectionIn, m))
	}
	return m, nil
}

// Frames returns the number of complete frames read.
func (fr *FrameReader) Frames() uint64 {
	return fr.frames.Load()
}

// Discarded returns the number of bytes skipped while looking for a start byte.
func (fr *FrameReader) Discarded() uint64 {
	return fr.discarded.Load()
}

func truncated(field string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrFrameTruncated, field)
	}
	return fmt.Errorf("%w: reading %s: %w", ErrFrameTruncated, field, err)
}

func frameEvent(ts time.Time, connID, portName string, dir log.Direction, frame []byte, discarded int) log.Event {
	data := make([]byte, len(frame))
	copy(data, frame)
	return log.Event{
		Timestamp:    ts,
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		PortName:     portName,
		Frame: &log.FrameEvent{
			Size:      len(frame),
			Data:      data,
			Discarded: discarded,
		},
	}
}

func messageEvent(ts time.Time, connID, portName string, dir log.Direction, m wire.Message) log.Event {
	return log.Event{
		Timestamp:    ts,
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		PortName:     portName,
		Message:      log.NewMessageEvent(m),
	}
}

// Framer combines a FrameReader and FrameWriter over one port.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer for rw using framing.
func NewFramer(rw io.ReadWriter, framing wire.Framing) *Framer {
	return &Framer{
		FrameReader: NewFrameReaderWithFraming(rw, framing),
		FrameWriter: NewFrameWriterWithFraming(rw, framing),
	}
}

// SetLogger sets the protocol logger for both directions.
func (f *Framer) SetLogger(logger log.Logger, connID, portName string) {
	f.FrameReader.SetLogger(logger, connID, portName)
	f.FrameWriter.SetLogger(logger, connID, portName)
}

// FramesIn returns the number of frames read.
func (f *Framer) FramesIn() uint64 { return f.FrameReader.Frames() }

// FramesOut returns the number of frames written.
func (f *Framer) FramesOut() uint64 { return f.FrameWriter.Frames() }
