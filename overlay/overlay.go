// Package overlay draws track annotations onto frames, used for
// evidence snapshots and display consumers.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"centinela/event"
)

// Annotator renders bounding boxes with name labels. Known people are
// drawn green, unknown people red.
type Annotator struct {
	knownColor   color.RGBA
	unknownColor color.RGBA
	labelScale   float64
	thickness    int
}

func NewAnnotator() *Annotator {
	return &Annotator{
		knownColor:   color.RGBA{0, 255, 0, 255},
		unknownColor: color.RGBA{255, 0, 0, 255},
		labelScale:   0.5,
		thickness:    2,
	}
}

// DrawEvent marks the event's box and identity on the frame.
func (a *Annotator) DrawEvent(frame *gocv.Mat, evt event.Event) {
	label := fmt.Sprintf("%s #%d", evt.PersonName, evt.TrackID)
	a.DrawBox(frame, evt.Box, label, evt.Unknown())
}

// DrawBox draws one labelled rectangle.
func (a *Annotator) DrawBox(frame *gocv.Mat, box image.Rectangle, label string, unknown bool) {
	col := a.knownColor
	if unknown {
		col = a.unknownColor
	}
	gocv.Rectangle(frame, box, col, a.thickness)

	pos := image.Pt(box.Min.X, box.Min.Y-6)
	if pos.Y < 12 {
		// Label would clip above the frame, draw it inside the box.
		pos.Y = box.Min.Y + 16
	}
	gocv.PutText(frame, label, pos, gocv.FontHersheySimplex, a.labelScale, col, 1)
}
