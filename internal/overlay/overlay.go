// Package overlay draws match results onto frames for the operator.
// Drawing never influences what is written to the ledger.
package overlay

import (
	"image"
	"image/color"

	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/types"
)

// Box geometry, in pixels of the original frame.
const (
	Thickness   = 2
	LabelHeight = 35
	LabelInsetX = 6
	LabelInsetY = 6

	// LabelFontScale is the Hershey font scale of the window label. Larger
	// text overflows the strip on narrow boxes.
	LabelFontScale = 0.6
)

var (
	Green  = color.RGBA{0, 255, 0, 255}   // recorded on this frame
	Yellow = color.RGBA{255, 255, 0, 255} // already recorded today
	Red    = color.RGBA{255, 0, 0, 255}   // unknown face
	Blue   = color.RGBA{0, 0, 255, 255}   // presence mode
	White  = color.RGBA{255, 255, 255, 255}
)

// Outcome is what happened to a face on this frame.
type Outcome int

const (
	Recorded Outcome = iota
	AlreadyRecorded
	Unrecognised
	Present
)

// Result is one detection after matching and ledger processing.
type Result struct {
	Region  image.Rectangle
	Subject string
	Outcome Outcome
}

// Annotation is a box to draw. An empty Label draws the box without a strip.
type Annotation struct {
	Region image.Rectangle
	Label  string
	Color  color.RGBA
}

// Annotate turns results into annotations for mode.
func Annotate(mode string, results []Result) []Annotation {
	anns := make([]Annotation, 0, len(results))
	for _, r := range results {
		if mode == config.ModePresence {
			anns = append(anns, Annotation{Region: r.Region, Color: Blue})
			continue
		}
		a := Annotation{Region: r.Region, Label: r.Subject}
		switch r.Outcome {
		case Recorded:
			a.Color = Green
		case AlreadyRecorded:
			a.Color = Yellow
		default:
			a.Color = Red
			a.Label = types.Unknown
		}
		anns = append(anns, a)
	}
	return anns
}

// Renderer shows annotated frames. quit is true when the operator asked to stop.
type Renderer interface {
	Render(frame types.Frame, anns []Annotation) (quit bool, err error)
	Close() error
}
