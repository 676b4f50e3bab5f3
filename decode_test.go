package camview_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"reflect"
	"testing"

	"github.com/camview/camview"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeRedBlue(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.RGBA{255, 0, 0, 255})
	src.Set(1, 0, color.RGBA{0, 0, 255, 255})

	img, err := camview.DecodeBytes(encodePNG(t, src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	exp := []uint8{255, 0, 0, 255, 0, 0, 255, 255}
	if !reflect.DeepEqual(img.Pix, exp) {
		t.Fatalf("pixels, got %v, expected %v", img.Pix, exp)
	}
}

func TestDecodeSize(t *testing.T) {
	sizes := []image.Point{{1, 1}, {3, 7}, {64, 48}, {101, 3}}
	for _, size := range sizes {
		src := image.NewGray(image.Rect(0, 0, size.X, size.Y))
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, src, nil); err != nil {
			t.Fatalf("encoding jpeg: %v", err)
		}
		img, err := camview.DecodeBytes(buf.Bytes())
		if err != nil {
			t.Fatalf("decode %v: %v", size, err)
		}
		if got := img.Bounds().Size(); got != size {
			t.Fatalf("size, got %v, expected %v", got, size)
		}
		if len(img.Pix) != size.X*size.Y*4 {
			t.Fatalf("got %d bytes for %v, expected %d", len(img.Pix), size, size.X*size.Y*4)
		}
	}
}

func TestDecodeNonPremultiplied(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{200, 100, 50, 128})

	img, err := camview.DecodeBytes(encodePNG(t, src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	exp := []uint8{200, 100, 50, 128}
	if !reflect.DeepEqual(img.Pix, exp) {
		t.Fatalf("pixels, got %v, expected %v", img.Pix, exp)
	}
}

func TestDecodeInvalid(t *testing.T) {
	valid := encodePNG(t, image.NewGray(image.Rect(0, 0, 4, 4)))
	bad := [][]byte{
		nil,
		{},
		[]byte("not an image"),
		valid[:len(valid)/2],
	}
	for i, buf := range bad {
		img, err := camview.DecodeBytes(buf)
		if err == nil {
			t.Fatalf("%d: missing error for invalid buffer", i)
		}
		if img != nil {
			t.Fatalf("%d: got image with error", i)
		}
		if !errors.Is(err, camview.ErrDecode) {
			t.Fatalf("%d: got error %v, expected decode error", i, err)
		}
	}
}

func TestDecodeYUYV(t *testing.T) {
	// Two pixel pairs: black/white, then gray/gray.
	buf := []byte{
		0, 128, 255, 128,
		128, 128, 128, 128,
	}
	img, err := camview.DecodeYUYV(buf, 2, 2)
	if err != nil {
		t.Fatalf("decode yuyv: %v", err)
	}
	exp := []uint8{
		0, 0, 0, 255, 255, 255, 255, 255,
		128, 128, 128, 255, 128, 128, 128, 255,
	}
	if !reflect.DeepEqual(img.Pix, exp) {
		t.Fatalf("pixels, got %v, expected %v", img.Pix, exp)
	}

	if _, err := camview.DecodeYUYV(buf, 4, 2); !errors.Is(err, camview.ErrDecode) {
		t.Fatalf("got %v for short buffer, expected decode error", err)
	}
	if _, err := camview.DecodeYUYV(buf[:6], 3, 1); !errors.Is(err, camview.ErrDecode) {
		t.Fatalf("got %v for odd width, expected decode error", err)
	}
}

func TestDecodeFrameFormat(t *testing.T) {
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 2, 2)))
	// Compressed formats go through the auto-detector, the label is a hint only.
	if _, err := camview.Decode(camview.Frame{Data: data, Format: "MJPG"}); err != nil {
		t.Fatalf("decode png data labeled as mjpg: %v", err)
	}
	if _, err := camview.Decode(camview.Frame{Data: data}); err != nil {
		t.Fatalf("decode without format: %v", err)
	}
	if _, err := camview.Decode(camview.Frame{Data: data, Format: "H264"}); !errors.Is(err, camview.ErrDecode) {
		t.Fatalf("got %v for unsupported format, expected decode error", err)
	}
}

func TestFit(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 400, 200))
	if r := camview.Fit(img, 0, 0); r != img {
		t.Fatalf("fit without maximum changed image")
	}
	if r := camview.Fit(img, 800, 800); r != img {
		t.Fatalf("fit changed image that already fits")
	}
	r := camview.Fit(img, 100, 100)
	if size := r.Bounds().Size(); size != (image.Point{100, 50}) {
		t.Fatalf("fit, got size %v, expected 100x50", size)
	}
}

// stripHuffmanTables removes all DHT segments in front of the scan data.
func stripHuffmanTables(t *testing.T, buf []byte) []byte {
	t.Helper()
	r := append([]byte{}, buf[:2]...)
	i := 2
	for buf[i+1] != 0xda {
		n := 2 + (int(buf[i+2])<<8 | int(buf[i+3]))
		if buf[i+1] != 0xc4 {
			r = append(r, buf[i:i+n]...)
		}
		i += n
	}
	return append(r, buf[i:]...)
}

func TestDecodeMJPGWithoutHuffmanTables(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			src.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatalf("encoding jpeg: %v", err)
	}
	stripped := stripHuffmanTables(t, buf.Bytes())
	if len(stripped) >= buf.Len() {
		t.Fatalf("no huffman tables stripped")
	}
	if _, err := jpeg.Decode(bytes.NewReader(stripped)); err == nil {
		t.Fatalf("jpeg without huffman tables decoded without help")
	}

	exp, err := camview.DecodeBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	img, err := camview.Decode(camview.Frame{Data: stripped, Format: "MJPG", Width: 16, Height: 16})
	if err != nil {
		t.Fatalf("decode without huffman tables: %v", err)
	}
	if !reflect.DeepEqual(img.Pix, exp.Pix) {
		t.Fatalf("pixels differ from the frame with huffman tables")
	}
}
