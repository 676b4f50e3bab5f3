package gphoto

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/camview/camview"

	"github.com/fsnotify/fsnotify"
)

// TetherOpts has options for a new tethered capture.
type TetherOpts struct {
	Verbose bool

	// Camera to use. If Port is empty, gphoto2 picks the first camera.
	Camera Camera
}

// Tether delivers full-size captures from a camera in tethered mode: every
// time the shutter is released on the camera, gphoto2 downloads the image to a
// temporary directory, where Tether picks it up.
type Tether struct {
	opts    TetherOpts
	session string
	tempDir string
	cancel  context.CancelFunc
	exited  chan struct{} // Closed when gphoto2 exits.
	watcher *fsnotify.Watcher
	seq     uint64
}

// Check that Tether implements interface Source.
var _ camview.Source = (*Tether)(nil)

// NewTether starts gphoto2 in tethered mode, making it write captures to a
// temporary directory that is watched for new files.
//
// Callers must call Close to stop gphoto2 and remove the temporary directory.
func NewTether(opts TetherOpts) (tether *Tether, rerr error) {
	tempDir, err := camview.TempDir()
	if err != nil {
		return nil, fmt.Errorf("making temp dir: %w", err)
	}
	t, err := watchDir(tempDir, opts)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	t.tempDir = tempDir

	// Ensure cleanup in case of failure.
	defer func() {
		if rerr != nil {
			t.Close()
		}
	}()

	args := append(t.opts.Camera.cameraArgs(),
		"--capture-tethered",
		"--filename", filepath.Join(tempDir, "capt%04n.%C"),
		"--force-overwrite",
	)
	t.logf("gphoto %s: starting gphoto2 %s", t.session, strings.Join(args, " "))

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	cmd := exec.CommandContext(ctx, "gphoto2", args...)
	cmd.Dir = tempDir
	if t.opts.Verbose {
		// Stdout may carry image data, e.g. for camsnap.
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, camview.Wrap(camview.KindDeviceNotFound, "starting gphoto2", err)
	}
	t.exited = make(chan struct{})
	go func() {
		err := cmd.Wait()
		t.logf("gphoto %s: gphoto2 exited: %v", t.session, err)
		close(t.exited)
	}()

	return t, nil
}

// watchDir returns a Tether reading files that appear in dir. The caller
// owns dir.
func watchDir(dir string, opts TetherOpts) (*Tether, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new file change watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("registering file change watcher for %s: %w", dir, err)
	}
	return &Tether{
		opts:    opts,
		session: camview.NewSessionID(),
		watcher: watcher,
	}, nil
}

func (t *Tether) logf(format string, args ...interface{}) {
	if t.opts.Verbose {
		log.Printf(format, args...)
	}
}

// Next blocks until the camera delivers a new image or ctx is done. Files
// that are not JPEG or PNG images (e.g. raw captures) are skipped. When
// gphoto2 exits, Next returns camview.ErrEndOfStream.
func (t *Tether) Next(ctx context.Context) (camview.Frame, error) {
	if t.watcher == nil {
		return camview.Frame{}, camview.ErrEndOfStream
	}
	for {
		select {
		case <-ctx.Done():
			return camview.Frame{}, ctx.Err()

		case <-t.exited:
			return camview.Frame{}, camview.Errorf(camview.KindEndOfStream, "tethered capture", "gphoto2 exited")

		case ev, ok := <-t.watcher.Events:
			if !ok {
				return camview.Frame{}, camview.ErrEndOfStream
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			buf, ok := t.readCapture(ev.Name)
			if !ok {
				continue
			}
			t.seq++
			t.logf("gphoto %s: capture %d from %s, %d bytes", t.session, t.seq, filepath.Base(ev.Name), len(buf))
			return camview.Frame{
				Data:      buf,
				Seq:       t.seq,
				Timestamp: time.Now(),
				Session:   t.session,
			}, nil

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return camview.Frame{}, camview.ErrEndOfStream
			}
			return camview.Frame{}, camview.Wrap(camview.KindTransient, "watching for captures", err)
		}
	}
}

// readCapture reads a capture file and removes it once complete. It returns
// false for partially written, vanished or unsupported files.
func (t *Tether) readCapture(path string) ([]byte, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
	default:
		if err := os.Remove(path); err == nil {
			t.logf("gphoto %s: skipping unsupported capture %s", t.session, filepath.Base(path))
		}
		return nil, false
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		// Already read and removed on an earlier event.
		return nil, false
	}
	if !isComplete(buf) {
		t.logf("gphoto %s: capture %s does not decode yet (may be partially written)", t.session, filepath.Base(path))
		return nil, false
	}
	if err := os.Remove(path); err != nil {
		t.logf("gphoto %s: removing capture %s: %v", t.session, path, err)
	}
	return buf, true
}

// Close stops gphoto2, closes the watcher and removes the temporary directory.
func (t *Tether) Close() error {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.watcher != nil {
		t.watcher.Close()
		t.watcher = nil
	}
	if t.tempDir != "" {
		os.RemoveAll(t.tempDir)
		t.tempDir = ""
	}
	return nil
}
