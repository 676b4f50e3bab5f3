// Command camsnap grabs a single frame from a camera and writes it as png to
// standard output. It is useful to check a camera setup without a display.
//
// Examples:
//
//	camsnap > frame.png
//	camsnap -source gphoto -retries 3 > preview.png
//	camsnap -device /dev/video2 -format YUYV -width 640 -height 480 > raw.png
package main

import (
	"context"
	"errors"
	"flag"
	"image/png"
	"log"
	"os"
	"time"

	"github.com/camview/camview"
	"github.com/camview/camview/internal/sources"
)

func usage() {
	log.Println("usage: camsnap [flags] > frame.png")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetFlags(0)

	config := camview.DefaultConfig()
	var timeout time.Duration
	flag.StringVar(&config.Source, "source", config.Source, "type of source: gphoto, tether or v4l2")
	flag.StringVar(&config.Device, "device", config.Device, "v4l2 device node")
	flag.IntVar(&config.Width, "width", config.Width, "requested v4l2 frame width")
	flag.IntVar(&config.Height, "height", config.Height, "requested v4l2 frame height")
	flag.StringVar(&config.Format, "format", config.Format, "requested v4l2 pixel format as fourcc")
	flag.StringVar(&config.Port, "port", "", "gphoto2 camera port, by default the first autodetected camera")
	flag.IntVar(&config.MaxTransient, "retries", 0, "transient read failures tolerated")
	flag.DurationVar(&timeout, "timeout", time.Minute, "give up if no frame was grabbed within this time")
	flag.BoolVar(&config.Verbose, "verbose", false, "print verbose output")
	flag.Usage = usage
	flag.Parse()
	if len(flag.Args()) != 0 {
		usage()
	}

	os.Exit(main0(config, timeout))
}

func main0(config camview.Config, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	src, err := sources.Open(ctx, config)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer src.Close()

	var f camview.Frame
	for attempt := 0; ; attempt++ {
		f, err = src.Next(ctx)
		if err == nil {
			break
		}
		if !camview.IsTransient(err) || attempt >= config.MaxTransient {
			if errors.Is(err, context.DeadlineExceeded) {
				log.Printf("no frame within %v", timeout)
			} else {
				log.Printf("grabbing frame: %v", err)
			}
			return 1
		}
		log.Printf("%v (retrying)", err)
	}

	img, err := camview.Decode(f)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	if config.Verbose {
		log.Printf("%s, %v", f, img.Bounds().Size())
	}
	if err := png.Encode(os.Stdout, img); err != nil {
		log.Printf("writing png: %v", err)
		return 1
	}
	return 0
}
