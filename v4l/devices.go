package v4l

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/camview/camview"
)

var errInstallHint = errors.New("executable not found, install with: sudo apt install -y v4l-utils")

// Device is a video capture device node.
type Device struct {
	Name string // Card name and bus, as reported by the driver.
	Path string // Device node, e.g. /dev/video0.
}

// ListDevices returns the capture devices reported by v4l2-ctl.
// ListDevices returns an error of kind camview.KindDeviceNotFound if no
// devices are available.
func ListDevices(ctx context.Context) ([]Device, error) {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--list-devices")
	buf, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("listing devices using v4l2-ctl: %w", err)
	}
	return parseDevices(string(buf))
}

// parseDevices parses the output of "v4l2-ctl --list-devices": a line with
// the card name, followed by tab-indented device nodes.
func parseDevices(s string) ([]Device, error) {
	var card string
	devs := []Device{}
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, "\t") {
			card = strings.TrimSuffix(strings.TrimSpace(line), ":")
			continue
		}
		// Raspberry Pi codec and ISP nodes are not cameras.
		if card == "" || strings.HasPrefix(card, "bcm2835-") {
			continue
		}
		path := strings.TrimSpace(line)
		// Media controller nodes cannot be streamed from.
		if !strings.HasPrefix(path, "/dev/video") {
			continue
		}
		devs = append(devs, Device{Name: card, Path: path})
	}
	if len(devs) == 0 {
		return nil, camview.Errorf(camview.KindDeviceNotFound, "list devices", "no video capture devices available")
	}
	return devs, nil
}
