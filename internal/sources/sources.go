// Package sources opens the capture source selected in a configuration.
package sources

import (
	"context"
	"fmt"
	"log"

	"github.com/camview/camview"
	"github.com/camview/camview/gphoto"
	"github.com/camview/camview/v4l"
)

// Open opens the source selected by c.Source. Callers must close the
// returned source.
func Open(ctx context.Context, c camview.Config) (camview.Source, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cam := gphoto.Camera{Model: c.Model, Port: c.Port}

	switch c.Source {
	case camview.SourceGphoto:
		s, err := gphoto.NewSession(ctx, gphoto.SessionOpts{Verbose: c.Verbose, Camera: cam})
		if err != nil {
			return nil, fmt.Errorf("new gphoto session: %w", err)
		}
		sc := s.Camera()
		log.Printf("camera %s on %s", sc.Model, sc.Port)
		return s, nil

	case camview.SourceTether:
		t, err := gphoto.NewTether(gphoto.TetherOpts{Verbose: c.Verbose, Camera: cam})
		if err != nil {
			return nil, fmt.Errorf("new tethered capture: %w", err)
		}
		return t, nil

	case camview.SourceV4L2:
		s, err := v4l.Open(v4l.StreamOpts{
			Verbose:      c.Verbose,
			Device:       c.Device,
			Width:        c.Width,
			Height:       c.Height,
			Format:       c.Format,
			Buffers:      c.Buffers,
			FrameTimeout: c.FrameTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open v4l2 stream: %w", err)
		}
		format, w, h := s.Format()
		log.Printf("device %s streaming %s %dx%d", c.Device, format, w, h)
		return s, nil
	}
	return nil, fmt.Errorf("unknown source %q", c.Source)
}

// List returns a line for each device or camera available to the given
// source kind.
func List(ctx context.Context, source string) ([]string, error) {
	var r []string
	switch source {
	case camview.SourceGphoto, camview.SourceTether:
		cams, err := gphoto.Autodetect(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range cams {
			r = append(r, fmt.Sprintf("%s: %s", c.Port, c.Model))
		}
	case camview.SourceV4L2:
		devs, err := v4l.ListDevices(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range devs {
			r = append(r, fmt.Sprintf("%s: %s", d.Path, d.Name))
		}
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
	return r, nil
}
