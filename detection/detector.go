package detection

import (
	"image"

	"gocv.io/x/gocv"
)

// PersonClass is the COCO class name used to keep person detections.
const PersonClass = "person"

// Detection is a single detected object in frame coordinates.
type Detection struct {
	Box        image.Rectangle
	Confidence float64
	ClassID    int
	Class      string
}

// Detector produces detections for a single video frame. Implementations
// must be safe for use from one goroutine at a time per camera; a shared
// detector serializes inference internally.
type Detector interface {
	Detect(frame gocv.Mat) ([]Detection, error)
	Close() error
}

// FilterClass keeps detections of the given class at or above minConfidence.
func FilterClass(dets []Detection, class string, minConfidence float64) []Detection {
	var out []Detection
	for _, d := range dets {
		if d.Class == class && d.Confidence >= minConfidence {
			out = append(out, d)
		}
	}
	return out
}
