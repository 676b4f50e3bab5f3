package camview

import (
	"fmt"
	"time"
)

// FrameRate is a moving average of the time between frames, for smoothing out
// the jitter of individual frame fetches.
type FrameRate struct {
	index  int
	filled int
	sum    time.Duration
	values []time.Duration
	last   time.Time
}

// NewFrameRate returns a frame rate averaging over the last size intervals.
func NewFrameRate(size int) (*FrameRate, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size must be > 0")
	}
	return &FrameRate{values: make([]time.Duration, size)}, nil
}

// Update registers a frame at time t and returns the smoothed frames per
// second. The first frame only sets the reference time and returns 0.
func (r *FrameRate) Update(t time.Time) (float64, error) {
	if r.values == nil {
		return 0, fmt.Errorf("invalid FrameRate, use NewFrameRate")
	}
	if r.last.IsZero() {
		r.last = t
		return 0, nil
	}
	if t.Before(r.last) {
		return 0, fmt.Errorf("frame time %v before previous frame %v", t, r.last)
	}

	d := t.Sub(r.last)
	r.last = t
	r.sum -= r.values[r.index]
	r.sum += d
	r.values[r.index] = d
	r.index = (r.index + 1) % len(r.values)
	if r.filled < len(r.values) {
		r.filled++
	}
	return r.FPS(), nil
}

// FPS returns the smoothed frames per second, 0 until two frames were seen.
func (r *FrameRate) FPS() float64 {
	if r.filled == 0 || r.sum <= 0 {
		return 0
	}
	avg := r.sum / time.Duration(r.filled)
	return float64(time.Second) / float64(avg)
}
