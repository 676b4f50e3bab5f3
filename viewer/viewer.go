// Package viewer pulls frames from a source, decodes them and hands the
// resulting images to a presenter, one frame per tick.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/camview/camview"
)

// TextureName is the name under which frames are presented. Each frame
// replaces the previous one.
const TextureName = "frame"

// Presenter displays images. Present replaces any image previously presented
// under the same name.
type Presenter interface {
	Present(name string, img *image.NRGBA)
}

// Opts are options for a Viewer.
type Opts struct {
	Verbose bool

	// Scale frames down to fit, 0 keeps the native size.
	MaxWidth  int
	MaxHeight int

	// Consecutive transient failures tolerated by Run before it gives up.
	// 0 means the first transient failure ends Run.
	MaxTransient int
}

// Viewer moves frames from a Source to a Presenter. The Viewer is the only
// user of the source while it runs; the caller remains responsible for
// closing it.
type Viewer struct {
	src  camview.Source
	out  Presenter
	opts Opts

	frames    uint64
	transient int // Consecutive transient failures.
	rate      *camview.FrameRate
}

// New returns a Viewer reading from src and presenting on out.
func New(src camview.Source, out Presenter, opts *Opts) *Viewer {
	rate, _ := camview.NewFrameRate(30)
	v := &Viewer{src: src, out: out, rate: rate}
	if opts != nil {
		v.opts = *opts
	}
	return v
}

func (v *Viewer) logf(format string, args ...interface{}) {
	if v.opts.Verbose {
		log.Printf(format, args...)
	}
}

// Tick fetches one frame, decodes it and presents it. Tick blocks while the
// source waits for a frame.
func (v *Viewer) Tick(ctx context.Context) error {
	f, err := v.src.Next(ctx)
	if err != nil {
		return fmt.Errorf("fetching frame: %w", err)
	}
	t0 := time.Now()
	img, err := camview.Decode(f)
	if err != nil {
		return fmt.Errorf("decoding frame %d: %w", f.Seq, err)
	}
	img = camview.Fit(img, v.opts.MaxWidth, v.opts.MaxHeight)
	v.out.Present(TextureName, img)
	v.frames++
	fps, err := v.rate.Update(time.Now())
	if err != nil {
		v.logf("updating frame rate: %v", err)
	}
	v.logf("%s, decoded %v in %v, %.1f fps", f, img.Bounds().Size(), time.Since(t0), fps)
	return nil
}

// Run calls Tick until ctx is done or Tick fails with an error that is not
// transient. Transient failures are retried up to Opts.MaxTransient times in
// a row. Run returns nil when ctx is done.
func (v *Viewer) Run(ctx context.Context) error {
	for {
		err := v.Tick(ctx)
		switch {
		case err == nil:
			v.transient = 0
		case ctx.Err() != nil:
			return nil
		case camview.IsTransient(err) && v.transient < v.opts.MaxTransient:
			v.transient++
			log.Printf("%v (retrying, %d/%d)", err, v.transient, v.opts.MaxTransient)
		default:
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// FPS returns the frame rate averaged over the last 30 frames.
func (v *Viewer) FPS() float64 {
	return v.rate.FPS()
}

// Frames returns the number of frames presented so far.
func (v *Viewer) Frames() uint64 {
	return v.frames
}

// IsFatal reports whether err ends viewing for good, as opposed to a
// transient failure or cancellation.
func IsFatal(err error) bool {
	return err != nil && !camview.IsTransient(err) && !errors.Is(err, context.Canceled)
}
