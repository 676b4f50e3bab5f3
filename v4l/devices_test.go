package v4l

import (
	"errors"
	"reflect"
	"testing"

	"github.com/camview/camview"
)

func TestParseDevices(t *testing.T) {
	const s = `bcm2835-codec-decode (platform:bcm2835-codec):
	/dev/video10
	/dev/video11
	/dev/media2

HD Pro Webcam C920 (usb-0000:00:14.0-1):
	/dev/video0
	/dev/video1
	/dev/media0

`

	devs, err := parseDevices(s)
	if err != nil {
		t.Fatalf("parsing v4l2-ctl output: %v", err)
	}
	exp := []Device{
		{Name: "HD Pro Webcam C920 (usb-0000:00:14.0-1)", Path: "/dev/video0"},
		{Name: "HD Pro Webcam C920 (usb-0000:00:14.0-1)", Path: "/dev/video1"},
	}
	if !reflect.DeepEqual(devs, exp) {
		t.Fatalf("devices, got %v, expected %v", devs, exp)
	}

	_, err = parseDevices("Cannot open device /dev/video0, exiting.\n")
	if !errors.Is(err, camview.ErrDeviceNotFound) {
		t.Fatalf("got %v for no devices, expected device not found", err)
	}
}
