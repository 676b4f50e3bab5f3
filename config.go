package camview

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds selectable at startup.
const (
	SourceGphoto = "gphoto" // Preview frames from a tethered camera.
	SourceTether = "tether" // Full captures from a tethered camera, as the shutter is released.
	SourceV4L2   = "v4l2"   // Video4Linux capture device.
)

// Config holds the settings for opening a source and displaying its frames.
// Zero values are replaced by DefaultConfig values in LoadConfig.
type Config struct {
	Source string `yaml:"source"` // gphoto, tether or v4l2

	// V4L2 settings. The driver may negotiate a different size or format,
	// the actual values are reported by the opened stream.
	Device  string `yaml:"device"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Format  string `yaml:"format"` // FourCC, e.g. MJPG or YUYV.
	Buffers int    `yaml:"buffers"`

	// Gphoto settings. If Port is empty, the first autodetected camera is used.
	Port  string `yaml:"port"`
	Model string `yaml:"model"`

	// Display settings.
	MaxWidth  int `yaml:"max_width"`  // Scale frames down to fit, 0 keeps native size.
	MaxHeight int `yaml:"max_height"` // Scale frames down to fit, 0 keeps native size.

	// Consecutive transient read failures tolerated before giving up. 0
	// aborts on the first one.
	MaxTransient int `yaml:"max_transient"`

	// How long a single wait for a V4L2 frame may take before it counts as
	// a transient failure.
	FrameTimeout time.Duration `yaml:"frame_timeout"`

	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Source:       SourceV4L2,
		Device:       "/dev/video0",
		Width:        1280,
		Height:       720,
		Format:       "MJPG",
		Buffers:      4,
		FrameTimeout: 2 * time.Second,
	}
}

// LoadConfig reads a YAML configuration file. Settings missing from the file
// keep their default value.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(buf, &c); err != nil {
		return c, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch c.Source {
	case SourceGphoto, SourceTether:
	case SourceV4L2:
		if c.Device == "" {
			return fmt.Errorf("v4l2 source needs a device")
		}
		if c.Width <= 0 || c.Height <= 0 {
			return fmt.Errorf("invalid size %dx%d", c.Width, c.Height)
		}
		if _, err := ParseFourCC(c.Format); err != nil {
			return err
		}
		if c.Buffers <= 0 {
			return fmt.Errorf("buffers must be > 0")
		}
		if c.FrameTimeout < time.Second {
			return fmt.Errorf("frame timeout must be at least 1s, got %v", c.FrameTimeout)
		}
	default:
		return fmt.Errorf("unknown source %q, must be %s, %s or %s", c.Source, SourceGphoto, SourceTether, SourceV4L2)
	}
	if c.MaxWidth < 0 || c.MaxHeight < 0 {
		return fmt.Errorf("maximum size must not be negative")
	}
	if c.MaxTransient < 0 {
		return fmt.Errorf("max transient must not be negative")
	}
	return nil
}
