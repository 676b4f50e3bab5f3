package camview

import (
	"bytes"
	"image"
	"strings"

	// Decoders for the generic auto-detector in DecodeBytes.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

// Decode turns a frame into a non-premultiplied RGBA image. Raw formats are
// converted using the frame's negotiated size, anything else is passed to
// DecodeBytes.
func Decode(f Frame) (*image.NRGBA, error) {
	switch strings.ToUpper(strings.TrimSpace(f.Format)) {
	case "YUYV", "YUY2":
		return DecodeYUYV(f.Data, f.Width, f.Height)
	case "", "MJPG", "JPEG", "PNG":
		return DecodeBytes(f.Data)
	default:
		return nil, Errorf(KindDecode, "decode", "unsupported frame format %q", f.Format)
	}
}

// DecodeBytes decodes an encoded image of any registered format (jpeg, png,
// gif, bmp, tiff, webp) and converts it to NRGBA. JPEG data without Huffman
// tables, as sent by many webcams, is decoded with the default tables. The returned image starts
// at (0,0) and Pix holds exactly 4*width*height bytes.
func DecodeBytes(buf []byte) (*image.NRGBA, error) {
	if len(buf) == 0 {
		return nil, Errorf(KindDecode, "decode", "empty buffer")
	}
	img, format, err := image.Decode(bytes.NewReader(insertHuffmanTables(buf)))
	if err != nil {
		return nil, Wrap(KindDecode, "decode", err)
	}
	if img.Bounds().Empty() {
		return nil, Errorf(KindDecode, "decode", "%s image has no pixels", format)
	}
	return toNRGBA(img), nil
}

// DecodeYUYV converts packed YUYV 4:2:2 data, as delivered by most webcams in
// raw mode, to NRGBA. Width must be even.
func DecodeYUYV(buf []byte, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, Errorf(KindDecode, "decode yuyv", "invalid size %dx%d", width, height)
	}
	if len(buf) != width*height*2 {
		return nil, Errorf(KindDecode, "decode yuyv", "got %d bytes, expected %d for %dx%d", len(buf), width*height*2, width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := buf[y*width*2 : (y+1)*width*2]
		for x := 0; x < width/2; x++ {
			p := row[x*4 : x*4+4]
			img.Y[y*img.YStride+2*x] = p[0]
			img.Cb[y*img.CStride+x] = p[1]
			img.Y[y*img.YStride+2*x+1] = p[2]
			img.Cr[y*img.CStride+x] = p[3]
		}
	}
	return toNRGBA(img), nil
}

// Fit scales img down to fit within maxWidth x maxHeight, keeping the aspect
// ratio. A zero maximum leaves the image at its native size.
func Fit(img *image.NRGBA, maxWidth, maxHeight int) *image.NRGBA {
	if maxWidth <= 0 || maxHeight <= 0 {
		return img
	}
	size := img.Bounds().Size()
	if size.X <= maxWidth && size.Y <= maxHeight {
		return img
	}
	return imaging.Fit(img, maxWidth, maxHeight, imaging.Linear)
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) && n.Stride == 4*n.Rect.Dx() {
		return n
	}
	return imaging.Clone(img)
}
