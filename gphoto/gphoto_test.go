package gphoto

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"os/exec"
	"reflect"
	"strings"
	"testing"

	"github.com/camview/camview"
)

func TestParseAutodetect(t *testing.T) {
	const s = `Model                          Port
----------------------------------------------------------
Canon EOS 550D                 usb:001,005
Nikon DSC D5300                usb:002,011
`

	cams, err := parseAutodetect(s)
	if err != nil {
		t.Fatalf("parsing autodetect output: %v", err)
	}
	exp := []Camera{
		{Model: "Canon EOS 550D", Port: "usb:001,005"},
		{Model: "Nikon DSC D5300", Port: "usb:002,011"},
	}
	if !reflect.DeepEqual(cams, exp) {
		t.Fatalf("cameras, got %v, expected %v", cams, exp)
	}

	const empty = `Model                          Port
----------------------------------------------------------
`
	_, err = parseAutodetect(empty)
	if !errors.Is(err, camview.ErrDeviceNotFound) {
		t.Fatalf("got %v for empty table, expected device not found", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg      string
		fallback camview.Kind
		exp      camview.Kind
	}{
		{"*** Error (-110: 'I/O in progress') ***\nCamera is busy", camview.KindDeviceNotFound, camview.KindTransient},
		{"*** Error: No camera found. ***", camview.KindDeviceNotFound, camview.KindDeviceNotFound},
		{"*** Error: No camera found. ***", camview.KindTransient, camview.KindEndOfStream},
		{"*** Error (-6: 'Unsupported operation') ***", camview.KindTransient, camview.KindNegotiation},
		{"something else entirely", camview.KindTransient, camview.KindTransient},
	}
	for _, tc := range tests {
		if k := classify(tc.msg, tc.fallback); k != tc.exp {
			t.Fatalf("classify %q, got %v, expected %v", tc.msg, k, tc.exp)
		}
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding jpeg: %v", err)
	}
	return buf.Bytes()
}

// cameraJPEG returns a jpeg with an EXIF thumbnail, as written by cameras,
// and the length of its prefix that ends with the thumbnail.
func cameraJPEG(t *testing.T) ([]byte, int) {
	t.Helper()
	full := encodeJPEG(t, 64, 48)
	payload := append([]byte("Exif\x00\x00"), encodeJPEG(t, 8, 8)...)
	app1 := []byte{0xff, 0xe1, byte((len(payload) + 2) >> 8), byte(len(payload) + 2)}
	app1 = append(app1, payload...)

	var buf []byte
	buf = append(buf, full[:2]...)
	buf = append(buf, app1...)
	buf = append(buf, full[2:]...)
	return buf, 2 + len(app1)
}

func TestIsComplete(t *testing.T) {
	full := testPNG(t)
	if !isImage(full) || !isComplete(full) {
		t.Fatalf("complete png not recognized")
	}
	if isComplete(full[:len(full)-4]) {
		t.Fatalf("truncated png reported complete")
	}
	if isComplete([]byte("text")) || isImage([]byte("text")) {
		t.Fatalf("text recognized as image")
	}

	jpg, thumbEnd := cameraJPEG(t)
	if !isComplete(jpg) {
		t.Fatalf("complete jpeg with thumbnail not recognized")
	}
	if !isComplete(append(jpg, 0, 0, 0)) {
		t.Fatalf("jpeg with trailing padding not complete")
	}
	partial := jpg[:thumbEnd]
	if !bytes.HasSuffix(partial, []byte{0xff, 0xd9}) {
		t.Fatalf("partial jpeg does not end with the thumbnail end marker")
	}
	if isComplete(partial) {
		t.Fatalf("jpeg written up to its thumbnail reported complete")
	}
}

// stubGphoto2 replaces the gphoto2 command with fn for the duration of the
// test.
func stubGphoto2(t *testing.T, fn func(args []string) ([]byte, error)) {
	t.Helper()
	orig := gphoto2
	gphoto2 = func(ctx context.Context, args ...string) ([]byte, error) {
		return fn(args)
	}
	t.Cleanup(func() {
		gphoto2 = orig
	})
}

func TestSession(t *testing.T) {
	img := testPNG(t)
	var previews int
	stubGphoto2(t, func(args []string) ([]byte, error) {
		joined := strings.Join(args, " ")
		switch {
		case joined == "--auto-detect":
			return []byte("Model   Port\n------\nCanon EOS 550D   usb:001,005\n"), nil
		case strings.HasSuffix(joined, "--summary"):
			if !strings.HasPrefix(joined, "--port usb:001,005 --camera Canon EOS 550D") {
				t.Errorf("handshake with unexpected args %q", joined)
			}
			return []byte("Camera summary:\n"), nil
		case strings.HasSuffix(joined, "--capture-preview --stdout"):
			previews++
			if previews == 2 {
				return []byte("garbage"), nil
			}
			return img, nil
		}
		t.Errorf("unexpected gphoto2 args %q", joined)
		return nil, errors.New("unexpected")
	})

	ctx := context.Background()
	s, err := NewSession(ctx, SessionOpts{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()
	if s.Camera().Model != "Canon EOS 550D" {
		t.Fatalf("session uses camera %v", s.Camera())
	}

	f, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if f.Seq != 1 || !bytes.Equal(f.Data, img) {
		t.Fatalf("unexpected frame %v", f)
	}
	if _, err := camview.Decode(f); err != nil {
		t.Fatalf("decoding preview: %v", err)
	}

	_, err = s.Next(ctx)
	if !camview.IsTransient(err) {
		t.Fatalf("got %v for garbage preview, expected transient error", err)
	}

	f, err = s.Next(ctx)
	if err != nil {
		t.Fatalf("next after transient error: %v", err)
	}
	if f.Seq != 2 {
		t.Fatalf("got sequence %d, expected 2", f.Seq)
	}

	s.Close()
	if _, err := s.Next(ctx); !errors.Is(err, camview.ErrEndOfStream) {
		t.Fatalf("got %v after close, expected end of stream", err)
	}
}

func TestSessionNoCamera(t *testing.T) {
	stubGphoto2(t, func(args []string) ([]byte, error) {
		return nil, &exec.ExitError{Stderr: []byte("*** Error: No camera found. ***")}
	})

	_, err := NewSession(context.Background(), SessionOpts{Camera: Camera{Port: "usb:001,005"}})
	if !errors.Is(err, camview.ErrDeviceNotFound) {
		t.Fatalf("got %v, expected device not found", err)
	}
}

func TestSessionHandshakeTimeout(t *testing.T) {
	stubGphoto2(t, func(args []string) ([]byte, error) {
		return nil, &exec.ExitError{Stderr: []byte("*** Error (-10: 'Timeout reading from or writing to the port') ***")}
	})

	_, err := NewSession(context.Background(), SessionOpts{Camera: Camera{Port: "usb:001,005"}})
	if !errors.Is(err, camview.ErrDeviceNotFound) || camview.IsTransient(err) {
		t.Fatalf("got %v (kind %v), expected device not found", err, camview.KindOf(err))
	}
	if !strings.Contains(err.Error(), "Timeout reading") {
		t.Fatalf("error %q lacks gphoto2 output", err)
	}
}
