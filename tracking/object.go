package tracking

import "centinela/detection"

// Object is a single detection handed to a tracking engine for one frame.
type Object struct {
	// Box is the detection bounding box in frame coordinates.
	Box Box
	// Label is the detector class index.
	Label int
	// Score is the detection confidence.
	Score float32
	// DetectionID links the tracked output back to the input detection.
	DetectionID int64
	// Feature is an optional appearance embedding for this detection.
	Feature []float32
}

// ObjectsFromDetections converts detector output into tracker input,
// numbering detections sequentially within the frame.
func ObjectsFromDetections(dets []detection.Detection) []Object {
	var objs []Object
	for i, det := range dets {
		objs = append(objs, Object{
			Box:         BoxFromRect(det.Box),
			Label:       det.ClassID,
			Score:       float32(det.Confidence),
			DetectionID: int64(i + 1),
		})
	}
	return objs
}
