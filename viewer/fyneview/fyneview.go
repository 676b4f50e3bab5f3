// Package fyneview presents frames in a fyne window.
package fyneview

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"

	"github.com/camview/camview/viewer"
)

// Heading is shown above the frames.
const Heading = "This is an image:"

// Window is a window showing a heading and one image per presented name, at
// the image's native pixel size.
type Window struct {
	app     fyne.App
	win     fyne.Window
	heading *canvas.Text
	box     *fyne.Container
	stopped chan struct{} // Closed when ShowAndRun returns.

	// Only accessed on the fyne UI goroutine.
	images map[string]*canvas.Image
}

// Check that Window implements interface Presenter.
var _ viewer.Presenter = (*Window)(nil)

// New creates a window with the given title on app. The window is not shown
// until ShowAndRun.
func New(app fyne.App, title string) *Window {
	heading := canvas.NewText(Heading, theme.Color(theme.ColorNameForeground))
	heading.TextSize = theme.TextHeadingSize()
	heading.TextStyle = fyne.TextStyle{Bold: true}

	w := &Window{
		app:     app,
		win:     app.NewWindow(title),
		heading: heading,
		box:     container.NewVBox(),
		stopped: make(chan struct{}),
		images:  map[string]*canvas.Image{},
	}
	w.win.SetContent(container.NewBorder(heading, nil, nil, nil, container.NewScroll(w.box)))
	w.win.Resize(fyne.NewSize(1280, 720))
	return w
}

// Present shows img under name, replacing the image previously presented
// under that name. Present must not be called from the UI goroutine. It
// returns once the UI goroutine has applied the update, so a caller
// presenting in a loop runs no faster than the window redraws, or once the
// event loop has stopped.
func (w *Window) Present(name string, img *image.NRGBA) {
	done := make(chan struct{})
	fyne.Do(func() {
		w.present(name, img)
		close(done)
	})
	select {
	case <-done:
	case <-w.stopped:
	}
}

func (w *Window) present(name string, img *image.NRGBA) {
	ci, ok := w.images[name]
	if !ok {
		ci = canvas.NewImageFromImage(img)
		ci.FillMode = canvas.ImageFillOriginal
		ci.ScaleMode = canvas.ImageScalePixels
		w.images[name] = ci
		w.box.Add(ci)
		return
	}
	ci.Image = img
	ci.Refresh()
}

// OnStarted sets a function called on the UI goroutine once the event loop
// is running.
func (w *Window) OnStarted(fn func()) {
	w.app.Lifecycle().SetOnStarted(fn)
}

// ShowAndRun shows the window and runs the fyne event loop until the
// application quits. It must be called from the main goroutine.
func (w *Window) ShowAndRun() {
	defer close(w.stopped)
	w.win.ShowAndRun()
}

// Quit stops the event loop, making ShowAndRun return.
func (w *Window) Quit() {
	w.app.Quit()
}
