// Package gphoto reads frames from tethered cameras with the gphoto2 command
// line tool. Session fetches live-view preview frames, Tether delivers full
// captures as the shutter is released.
package gphoto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/camview/camview"
)

var errInstallHint = errors.New("executable not found, install with: sudo apt install -y gphoto2")

// gphoto2 runs the gphoto2 command with args and returns its standard output.
// Replaced in tests.
var gphoto2 = func(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "gphoto2", args...).Output()
}

// Camera is a camera found on a protocol bus.
type Camera struct {
	Model string // E.g. "Canon EOS 550D".
	Port  string // E.g. "usb:001,005".
}

// cameraArgs returns the arguments selecting a specific camera.
func (c Camera) cameraArgs() []string {
	var args []string
	if c.Port != "" {
		args = append(args, "--port", c.Port)
	}
	if c.Model != "" {
		args = append(args, "--camera", c.Model)
	}
	return args
}

// Autodetect returns the cameras connected to this machine. Autodetect
// returns an error of kind camview.KindDeviceNotFound if there are none.
func Autodetect(ctx context.Context) ([]Camera, error) {
	buf, err := gphoto2(ctx, "--auto-detect")
	if err != nil {
		return nil, commandError("autodetect", camview.KindDeviceNotFound, err)
	}
	return parseAutodetect(string(buf))
}

// parseAutodetect parses the table printed by "gphoto2 --auto-detect": a
// header, a line of dashes, then one camera per line with the model name
// (which may contain spaces) followed by the port.
func parseAutodetect(s string) ([]Camera, error) {
	cams := []Camera{}
	inTable := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "---") {
			inTable = true
			continue
		}
		if !inTable || line == "" {
			continue
		}
		i := strings.LastIndexAny(line, " \t")
		if i < 0 {
			continue
		}
		cams = append(cams, Camera{
			Model: strings.TrimSpace(line[:i]),
			Port:  line[i+1:],
		})
	}
	if len(cams) == 0 {
		return nil, camview.Errorf(camview.KindDeviceNotFound, "autodetect", "no camera found")
	}
	return cams, nil
}

// SessionOpts has options for a new preview session.
type SessionOpts struct {
	Verbose bool

	// Camera to use. If Port is empty, the first camera returned by
	// Autodetect is used.
	Camera Camera
}

// Session fetches preview frames from a tethered camera. Every call to Next
// is a synchronous round-trip to the camera.
type Session struct {
	opts    SessionOpts
	session string
	seq     uint64
	closed  bool
}

// Check that Session implements interface Source.
var _ camview.Source = (*Session)(nil)

// NewSession finds the camera and checks it responds. Errors have kind
// camview.KindDeviceNotFound.
//
// Callers must call Close when done.
func NewSession(ctx context.Context, opts SessionOpts) (*Session, error) {
	s := &Session{opts: opts, session: camview.NewSessionID()}

	if s.opts.Camera.Port == "" {
		cams, err := Autodetect(ctx)
		if err != nil {
			return nil, err
		}
		s.opts.Camera = cams[0]
	}

	args := append(s.opts.Camera.cameraArgs(), "--summary")
	if _, err := gphoto2(ctx, args...); err != nil {
		// Whatever gphoto2 reports, a camera that does not answer here is
		// not usable.
		_, err = commandOutput(err)
		return nil, camview.Wrap(camview.KindDeviceNotFound, "handshake with "+s.opts.Camera.Model, err)
	}
	s.logf("gphoto %s: connected to %s on %s", s.session, s.opts.Camera.Model, s.opts.Camera.Port)
	return s, nil
}

func (s *Session) logf(format string, args ...interface{}) {
	if s.opts.Verbose {
		log.Printf(format, args...)
	}
}

// Camera returns the camera this session talks to.
func (s *Session) Camera() Camera {
	return s.opts.Camera
}

// Next captures one preview frame. It blocks until the camera responds or
// ctx is done. A camera that is busy or returns no image gives an error of
// kind camview.KindTransient, a camera that went away gives
// camview.ErrEndOfStream.
func (s *Session) Next(ctx context.Context) (camview.Frame, error) {
	if s.closed {
		return camview.Frame{}, camview.ErrEndOfStream
	}

	t0 := time.Now()
	args := append(s.opts.Camera.cameraArgs(), "--capture-preview", "--stdout")
	buf, err := gphoto2(ctx, args...)
	if err != nil {
		if ctx.Err() != nil {
			return camview.Frame{}, ctx.Err()
		}
		return camview.Frame{}, commandError("capture preview", camview.KindTransient, err)
	}
	if !isImage(buf) {
		return camview.Frame{}, camview.Errorf(camview.KindTransient, "capture preview", "gphoto2 returned %d bytes that are not an image", len(buf))
	}

	s.seq++
	s.logf("gphoto %s: preview %d, %d bytes in %v", s.session, s.seq, len(buf), time.Since(t0))
	return camview.Frame{
		Data:      buf,
		Seq:       s.seq,
		Timestamp: time.Now(),
		Session:   s.session,
	}, nil
}

// Close ends the session. The camera itself is released by gphoto2 after
// each command.
func (s *Session) Close() error {
	s.closed = true
	return nil
}

var (
	jpegSOI      = []byte{0xff, 0xd8}
	pngSignature = []byte("\x89PNG\r\n\x1a\n")
)

func isImage(buf []byte) bool {
	return bytes.HasPrefix(buf, jpegSOI) || bytes.HasPrefix(buf, pngSignature)
}

// isComplete reports whether buf is a fully written JPEG or PNG file, by
// decoding it. End markers are not enough: a JPEG written up to the end of
// its embedded thumbnail already ends in EOI.
func isComplete(buf []byte) bool {
	if !isImage(buf) {
		return false
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(buf)); err != nil {
		return false
	}
	_, err := camview.DecodeBytes(buf)
	return err == nil
}

// commandError turns a failed gphoto2 invocation into an error of a Kind
// derived from its error output, or of kind fallback if the output is not
// recognized.
func commandError(op string, fallback camview.Kind, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return camview.Wrap(camview.KindDeviceNotFound, op, errInstallHint)
	}
	msg, err := commandOutput(err)
	return camview.Wrap(classify(msg, fallback), op, err)
}

// commandOutput returns the error output of a failed gphoto2 invocation, and
// err extended with that output.
func commandOutput(err error) (string, error) {
	if errors.Is(err, exec.ErrNotFound) {
		return "", errInstallHint
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return "", err
	}
	msg := strings.TrimSpace(string(exitErr.Stderr))
	if msg == "" {
		return "", err
	}
	return msg, fmt.Errorf("%v: %s", err, msg)
}

// classify maps gphoto2 error output to a Kind.
func classify(msg string, fallback camview.Kind) camview.Kind {
	msg = strings.ToLower(msg)
	contains := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(msg, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("camera is busy", "device busy", "could not claim", "timeout"):
		return camview.KindTransient
	case contains("could not detect any camera", "no camera found", "unknown port", "could not find the requested device", "no such device"):
		if fallback == camview.KindDeviceNotFound {
			return camview.KindDeviceNotFound
		}
		return camview.KindEndOfStream
	case contains("not supported", "unsupported operation"):
		return camview.KindNegotiation
	}
	return fallback
}
