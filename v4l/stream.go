// Package v4l reads frames from Video4Linux capture devices through
// memory-mapped streaming I/O.
package v4l

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/camview/camview"

	"github.com/blackjack/webcam"
)

// device is the part of *webcam.Webcam used by Stream.
type device interface {
	GetSupportedFormats() map[webcam.PixelFormat]string
	SetImageFormat(f webcam.PixelFormat, width, height uint32) (webcam.PixelFormat, uint32, uint32, error)
	SetBufferCount(count uint32) error
	StartStreaming() error
	WaitForFrame(timeout uint32) error
	GetFrame() ([]byte, uint32, error)
	ReleaseFrame(index uint32) error
	StopStreaming() error
	Close() error
}

var openDevice = func(path string) (device, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, err
	}
	return cam, nil
}

// Formats that Decode can handle after negotiation.
var decodable = map[string]bool{
	"MJPG": true,
	"JPEG": true,
	"YUYV": true,
}

// StreamOpts has options for opening a Stream.
type StreamOpts struct {
	Verbose bool
	Device  string // Device node, e.g. /dev/video0.

	// Requested capture format. The driver may pick a different one, see
	// Stream.Format.
	Width  int
	Height int
	Format string // FourCC, e.g. MJPG.

	Buffers      int           // Number of mmap buffers, 4 if zero.
	FrameTimeout time.Duration // Wait for a frame before failing transiently, 2s if zero.
}

// Stream is an open capture device streaming into memory-mapped buffers.
type Stream struct {
	opts    StreamOpts
	session string
	dev     device

	format string // Negotiated FourCC.
	width  int
	height int

	seq       uint64
	streaming bool
	eos       bool

	// Buffer backing the last returned frame, requeued on the next call
	// to Next or Close.
	held    uint32
	holding bool
}

// Check that Stream implements interface Source.
var _ camview.Source = (*Stream)(nil)

// Open opens the device, negotiates the capture format and starts streaming.
// The driver may substitute a different size or pixel format; the actual
// values are available through Format. A negotiated format that cannot be
// decoded is an error.
//
// Callers must call Close to stop streaming and release the device.
func Open(opts StreamOpts) (stream *Stream, rerr error) {
	s := &Stream{opts: opts, session: camview.NewSessionID()}
	if s.opts.Buffers <= 0 {
		s.opts.Buffers = 4
	}
	if s.opts.FrameTimeout <= 0 {
		s.opts.FrameTimeout = 2 * time.Second
	}
	pixfmt, err := camview.ParseFourCC(s.opts.Format)
	if err != nil {
		return nil, camview.Wrap(camview.KindNegotiation, "open", err)
	}

	dev, err := openDevice(s.opts.Device)
	if err != nil {
		return nil, camview.Wrap(camview.KindDeviceNotFound, "open "+s.opts.Device, err)
	}
	s.dev = dev

	// Ensure cleanup in case of failure.
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()

	s.logf("v4l %s: opened %s", s.session, s.opts.Device)

	f, w, h, err := s.dev.SetImageFormat(webcam.PixelFormat(pixfmt), uint32(s.opts.Width), uint32(s.opts.Height))
	if err != nil {
		return nil, camview.Wrap(camview.KindNegotiation, "set format", err)
	}
	s.format = camview.FourCC(uint32(f))
	s.width = int(w)
	s.height = int(h)
	if s.format != s.opts.Format || s.width != s.opts.Width || s.height != s.opts.Height {
		log.Printf("v4l %s: requested %s %dx%d, driver negotiated %s %dx%d (device offers %s)", s.opts.Device, s.opts.Format, s.opts.Width, s.opts.Height, s.format, s.width, s.height, s.offers())
	}
	if !decodable[s.format] {
		return nil, camview.Errorf(camview.KindNegotiation, "set format", "negotiated format %s cannot be decoded, device offers %s", s.format, s.offers())
	}
	if s.width <= 0 || s.height <= 0 {
		return nil, camview.Errorf(camview.KindNegotiation, "set format", "negotiated invalid size %dx%d", s.width, s.height)
	}

	if err := s.dev.SetBufferCount(uint32(s.opts.Buffers)); err != nil {
		return nil, camview.Wrap(camview.KindNegotiation, "set buffer count", err)
	}
	if err := s.dev.StartStreaming(); err != nil {
		return nil, camview.Wrap(camview.KindNegotiation, "start streaming", err)
	}
	s.streaming = true
	s.logf("v4l %s: streaming %s %dx%d with %d buffers", s.session, s.format, s.width, s.height, s.opts.Buffers)

	return s, nil
}

func (s *Stream) logf(format string, args ...interface{}) {
	if s.opts.Verbose {
		log.Printf(format, args...)
	}
}

// Format returns the negotiated FourCC and frame size.
func (s *Stream) Format() (fourcc string, width, height int) {
	return s.format, s.width, s.height
}

// SupportedFormats returns the pixel formats offered by the device, as
// FourCC and description, sorted by FourCC.
func (s *Stream) SupportedFormats() [][2]string {
	if s.dev == nil {
		return nil
	}
	var r [][2]string
	for f, desc := range s.dev.GetSupportedFormats() {
		r = append(r, [2]string{camview.FourCC(uint32(f)), desc})
	}
	sort.Slice(r, func(i, j int) bool {
		return r[i][0] < r[j][0]
	})
	return r
}

// offers lists SupportedFormats for log and error messages.
func (s *Stream) offers() string {
	var l []string
	for _, f := range s.SupportedFormats() {
		l = append(l, f[0]+": "+f[1])
	}
	return strings.Join(l, ", ")
}

// Next waits for the next filled buffer and returns it. The frame data refers
// to a memory-mapped buffer that is handed back to the driver on the next
// call to Next or Close, so it is only valid until then.
//
// Next returns an error of kind camview.KindTransient when no frame arrived
// within the frame timeout or the read was empty, and camview.ErrEndOfStream
// when the stream was closed or the device disappeared. End of stream is
// permanent.
func (s *Stream) Next(ctx context.Context) (camview.Frame, error) {
	if s.eos || !s.streaming {
		return camview.Frame{}, camview.ErrEndOfStream
	}
	if err := s.release(); err != nil {
		if gone(err) {
			return camview.Frame{}, s.endOfStream("release frame", err)
		}
		s.logf("v4l %s: release frame: %v", s.session, err)
	}

	// WaitForFrame takes whole seconds. Wait in one second steps so a
	// cancelled ctx is noticed quickly.
	deadline := time.Now().Add(s.opts.FrameTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return camview.Frame{}, err
		}
		err := s.dev.WaitForFrame(1)
		if err == nil {
			break
		}
		var timeout *webcam.Timeout
		switch {
		case errors.As(err, &timeout), errors.Is(err, syscall.EINTR), errors.Is(err, syscall.EAGAIN):
			if time.Now().Before(deadline) {
				continue
			}
			return camview.Frame{}, camview.Errorf(camview.KindTransient, "wait for frame", "no frame within %v", s.opts.FrameTimeout)
		default:
			return camview.Frame{}, s.endOfStream("wait for frame", err)
		}
	}

	buf, index, err := s.dev.GetFrame()
	if err != nil {
		if gone(err) {
			return camview.Frame{}, s.endOfStream("read frame", err)
		}
		return camview.Frame{}, camview.Wrap(camview.KindTransient, "read frame", err)
	}
	s.held, s.holding = index, true
	if len(buf) == 0 {
		return camview.Frame{}, camview.Errorf(camview.KindTransient, "read frame", "empty buffer")
	}

	s.seq++
	return camview.Frame{
		Data:      buf,
		Seq:       s.seq,
		Timestamp: time.Now(),
		Format:    s.format,
		Width:     s.width,
		Height:    s.height,
		Session:   s.session,
	}, nil
}

// release requeues the buffer of the previously returned frame.
func (s *Stream) release() error {
	if !s.holding {
		return nil
	}
	s.holding = false
	return s.dev.ReleaseFrame(s.held)
}

func (s *Stream) endOfStream(op string, err error) error {
	s.eos = true
	s.logf("v4l %s: end of stream: %v", s.session, err)
	return camview.Wrap(camview.KindEndOfStream, op, err)
}

// gone reports whether err indicates the device was unplugged or broke.
func gone(err error) bool {
	return errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed)
}

// Close stops streaming and closes the device. Close is safe to call more
// than once.
func (s *Stream) Close() error {
	if s.dev == nil {
		return nil
	}
	var errs []error
	if s.streaming {
		if err := s.release(); err != nil {
			errs = append(errs, fmt.Errorf("release frame: %w", err))
		}
		if err := s.dev.StopStreaming(); err != nil {
			errs = append(errs, fmt.Errorf("stop streaming: %w", err))
		}
		s.streaming = false
	}
	if err := s.dev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing device: %w", err))
	}
	s.dev = nil
	s.eos = true
	s.logf("v4l %s: closed", s.session)
	return errors.Join(errs...)
}
