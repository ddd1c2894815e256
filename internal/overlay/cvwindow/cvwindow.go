// Package cvwindow shows annotated frames in an OpenCV window.
package cvwindow

import (
	"fmt"
	"image"

	"github.com/andresmejia3/rollcall/internal/overlay"
	"github.com/andresmejia3/rollcall/internal/types"
	"gocv.io/x/gocv"
)

// QuitKey stops the run when pressed in the window.
const QuitKey = 'q'

type Window struct {
	win *gocv.Window
}

func New(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Render shows the frame and polls the keyboard for 1ms.
func (w *Window) Render(frame types.Frame, anns []overlay.Annotation) (bool, error) {
	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return false, fmt.Errorf("failed to decode frame %d: %w", frame.Index, err)
	}
	defer img.Close()

	for _, a := range anns {
		gocv.Rectangle(&img, a.Region, a.Color, overlay.Thickness)
		if a.Label == "" {
			continue
		}
		strip := image.Rect(a.Region.Min.X, a.Region.Max.Y-overlay.LabelHeight, a.Region.Max.X, a.Region.Max.Y)
		gocv.Rectangle(&img, strip, a.Color, -1)
		org := image.Pt(a.Region.Min.X+overlay.LabelInsetX, a.Region.Max.Y-overlay.LabelInsetY)
		gocv.PutText(&img, a.Label, org, gocv.FontHersheyDuplex, overlay.LabelFontScale, overlay.White, 1)
	}

	w.win.IMShow(img)
	return w.win.WaitKey(1)&0xFF == QuitKey, nil
}

func (w *Window) Close() error {
	return w.win.Close()
}
