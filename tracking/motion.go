package tracking

import (
	"gocv.io/x/gocv"
)

var _ Engine = (*MotionEngine)(nil)

// MotionEngine associates detections to tracks purely on predicted motion
// and box overlap. It is the cheapest engine and the default.
type MotionEngine struct {
	core *core
}

// NewMotionEngine creates a motion-only engine with the given parameters.
func NewMotionEngine(cfg Config) *MotionEngine {
	return &MotionEngine{core: newCore(cfg)}
}

// Update advances the tracker one frame. The frame argument is unused.
func (e *MotionEngine) Update(objects []Object, _ gocv.Mat) ([]*Track, error) {
	return e.core.step(objects)
}

// Mode reports ModeMotion.
func (e *MotionEngine) Mode() Mode { return ModeMotion }

// Reset clears all track state.
func (e *MotionEngine) Reset() { e.core.reset() }
