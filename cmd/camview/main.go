// Command camview opens a camera and shows its frames in a window, fetching a
// new frame as soon as the previous one is on screen.
//
// Examples:
//
//	# List available devices and quit.
//	camview -listdevices
//
//	# Show /dev/video0, requesting 1280x720 motion-jpeg.
//	camview
//
//	# Show raw frames from another device, tolerating a few timeouts.
//	camview -device /dev/video2 -format YUYV -width 640 -height 480 -retries 5
//
//	# Show the live view of an autodetected tethered camera.
//	camview -source gphoto
//
//	# Show each picture taken on a tethered camera, scaled to fit.
//	camview -source tether -maxsize 1600x900
//
//	# Read settings from a file, flags override them.
//	camview -config camview.yaml -verbose
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fyne.io/fyne/v2/app"

	"github.com/camview/camview"
	"github.com/camview/camview/internal/sources"
	"github.com/camview/camview/viewer"
	"github.com/camview/camview/viewer/fyneview"
)

var (
	listDevices bool
	configPath  string
	maxSize     string
)

func usage() {
	log.Println("usage: camview [flags]")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetFlags(0)

	config := camview.DefaultConfig()
	flag.BoolVar(&listDevices, "listdevices", false, "if set, lists devices for the source and exits")
	flag.StringVar(&configPath, "config", "", "if set, read settings from this yaml file, flags override them")
	flag.StringVar(&config.Source, "source", config.Source, "type of source: gphoto, tether or v4l2")
	flag.StringVar(&config.Device, "device", config.Device, "v4l2 device node")
	flag.IntVar(&config.Width, "width", config.Width, "requested v4l2 frame width")
	flag.IntVar(&config.Height, "height", config.Height, "requested v4l2 frame height")
	flag.StringVar(&config.Format, "format", config.Format, "requested v4l2 pixel format as fourcc, MJPG or YUYV")
	flag.StringVar(&config.Port, "port", "", "gphoto2 camera port, by default the first autodetected camera")
	flag.StringVar(&maxSize, "maxsize", "", "if set, scale frames down to fit, e.g. 1600x900")
	flag.IntVar(&config.MaxTransient, "retries", 0, "consecutive transient read failures tolerated before quitting")
	flag.BoolVar(&config.Verbose, "verbose", false, "print verbose output")
	flag.Usage = usage
	flag.Parse()
	if len(flag.Args()) != 0 {
		usage()
	}

	if configPath != "" {
		c, err := camview.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		config = mergeFlags(c, config)
	}
	if maxSize != "" {
		if _, err := fmt.Sscanf(maxSize, "%dx%d", &config.MaxWidth, &config.MaxHeight); err != nil {
			log.Fatalf("parsing -maxsize %q: %v", maxSize, err)
		}
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	os.Exit(main0(config))
}

// mergeFlags returns c with the settings explicitly set on the command line
// taken from f.
func mergeFlags(c, f camview.Config) camview.Config {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "source":
			c.Source = f.Source
		case "device":
			c.Device = f.Device
		case "width":
			c.Width = f.Width
		case "height":
			c.Height = f.Height
		case "format":
			c.Format = f.Format
		case "port":
			c.Port = f.Port
		case "retries":
			c.MaxTransient = f.MaxTransient
		case "verbose":
			c.Verbose = f.Verbose
		}
	})
	return c
}

func main0(config camview.Config) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if listDevices {
		l, err := sources.List(ctx, config.Source)
		if err != nil {
			log.Printf("listing devices: %v", err)
			return 1
		}
		for _, s := range l {
			fmt.Println(s)
		}
		return 0
	}

	src, err := sources.Open(ctx, config)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer src.Close()

	win := fyneview.New(app.New(), "camview")
	v := viewer.New(src, win, &viewer.Opts{
		Verbose:      config.Verbose,
		MaxWidth:     config.MaxWidth,
		MaxHeight:    config.MaxHeight,
		MaxTransient: config.MaxTransient,
	})

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			win.Quit()
		case <-ctx.Done():
		}
	}()

	// The viewer goroutine is the only user of src until it returns. It
	// starts once the event loop runs, so Quit always has a loop to stop.
	runErr := make(chan error, 1)
	started := false
	win.OnStarted(func() {
		started = true
		go func() {
			err := v.Run(ctx)
			if err != nil {
				win.Quit()
			}
			runErr <- err
		}()
	})

	win.ShowAndRun()
	cancel()
	if !started {
		return 1
	}
	if err := <-runErr; viewer.IsFatal(err) {
		log.Printf("%v", err)
		return 1
	}
	if config.Verbose {
		log.Printf("showed %d frames, %.1f fps", v.Frames(), v.FPS())
	}
	return 0
}
