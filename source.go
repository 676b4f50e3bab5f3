// Package camview fetches frames from camera sources and turns them into
// images ready for display.
package camview

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source is a capture source that produces one frame per call to Next. A
// Source is owned by a single goroutine; it is not safe for concurrent use.
type Source interface {
	// Next blocks until a frame is available, ctx is done, or an error
	// occurs. The returned Frame.Data is only valid until the next call to
	// Next or Close.
	Next(ctx context.Context) (Frame, error)

	// Close releases the device or session. Next returns ErrEndOfStream
	// after Close.
	Close() error
}

// Frame is a single frame as delivered by a Source, before decoding.
type Frame struct {
	Data      []byte
	Seq       uint64    // Strictly increasing per source, starting at 1.
	Timestamp time.Time // When the frame was received.

	// Format is the FourCC of Data as negotiated with the device, e.g.
	// "MJPG" or "YUYV". Empty means encoded data of any format understood
	// by DecodeBytes.
	Format string

	// Width and Height are the negotiated frame size, zero if the source
	// does not know it. Required for raw formats.
	Width  int
	Height int

	// Session identifies the source that produced this frame.
	Session string
}

// String returns a short description of the frame, without its data.
func (f Frame) String() string {
	format := f.Format
	if format == "" {
		format = "encoded"
	}
	session := f.Session
	if len(session) > 8 {
		session = session[:8]
	}
	return fmt.Sprintf("frame %d of %s (%s, %d bytes) at %s", f.Seq, session, format, len(f.Data), f.Timestamp.Format(time.RFC3339Nano))
}

// NewSessionID returns an identifier for a newly opened source, for use in
// log lines and Frame.Session.
func NewSessionID() string {
	return uuid.NewString()
}
