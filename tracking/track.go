package tracking

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TrackState is the lifecycle state of a tracked person.
type TrackState int

const (
	// StateNew marks a freshly created, unconfirmed track.
	StateNew TrackState = iota
	// StateTracked marks a track matched in the current frame.
	StateTracked
	// StateLost marks a track without a match, kept alive while within
	// the patience window.
	StateLost
	// StateRemoved marks a track evicted from the tracker.
	StateRemoved
)

func (s TrackState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateTracked:
		return "tracked"
	case StateLost:
		return "lost"
	case StateRemoved:
		return "removed"
	}
	return "unknown"
}

// Track is a single person followed across frames of one camera.
type Track struct {
	kf *kalmanFilter

	mean stateMean
	cov  stateCov
	box  Box

	state      TrackState
	activated  bool
	score      float32
	id         int
	frameID    int
	startFrame int
	length     int

	detectionID int64
	label       int

	feature       []float32
	smoothFeature []float32
	featureQueue  [][]float32
	maxQueue      int
	alpha         float32
	hasFeature    bool
}

func newTrack(box Box, score float32, detectionID int64, label int) *Track {
	return &Track{
		kf:          newKalmanFilter(1.0/20, 1.0/160),
		mean:        make(stateMean, 8),
		cov:         stateCov{mat.NewDense(8, 8, nil)},
		box:         box,
		state:       StateNew,
		score:       score,
		detectionID: detectionID,
		label:       label,
	}
}

// attachFeature enables appearance matching for this track with EMA
// smoothing factor alpha and a bounded history of past embeddings.
func (t *Track) attachFeature(feature []float32, alpha float32, queueSize int) {
	t.hasFeature = true
	t.alpha = alpha
	t.maxQueue = queueSize
	t.featureQueue = make([][]float32, 0, queueSize)
	t.updateFeatures(feature)
}

// Box returns the current bounding box estimate.
func (t *Track) Box() Box { return t.box }

// State returns the lifecycle state.
func (t *Track) State() TrackState { return t.state }

// Activated reports whether the track has been confirmed.
func (t *Track) Activated() bool { return t.activated }

// Score returns the detection confidence of the latest match.
func (t *Track) Score() float32 { return t.score }

// ID returns the per-camera track identifier, stable across frames.
func (t *Track) ID() int { return t.id }

// FrameID returns the frame index of the latest update.
func (t *Track) FrameID() int { return t.frameID }

// DetectionID returns the input detection matched in the latest frame.
func (t *Track) DetectionID() int64 { return t.detectionID }

// Label returns the detector class index.
func (t *Track) Label() int { return t.label }

// StartFrame returns the frame index at which the track was activated.
func (t *Track) StartFrame() int { return t.startFrame }

// Length returns the number of consecutive matched frames.
func (t *Track) Length() int { return t.length }

// activate confirms a new track and assigns its identifier. Tracks born on
// the very first frame are confirmed immediately.
func (t *Track) activate(frameID, trackID int) {
	t.kf.initiate(t.mean, &t.cov, t.box.XYAH())
	t.refreshBox()

	t.state = StateTracked
	if frameID == 1 {
		t.activated = true
	}
	t.id = trackID
	t.frameID = frameID
	t.startFrame = frameID
	t.length = 0
}

// reactivate revives a lost track with a fresh detection.
func (t *Track) reactivate(det *Track, frameID, newTrackID int) {
	t.kf.update(t.mean, &t.cov, det.box.XYAH())
	t.refreshBox()

	t.state = StateTracked
	t.activated = true
	t.score = det.score
	t.detectionID = det.detectionID
	if newTrackID >= 0 {
		t.id = newTrackID
	}
	t.frameID = frameID
	t.length = 0

	t.updateFeatures(det.feature)
}

// predict advances the motion estimate one frame.
func (t *Track) predict() {
	if t.state != StateTracked {
		t.mean[7] = 0
	}
	t.kf.predict(t.mean, &t.cov)
}

// update corrects the track with a matched detection.
func (t *Track) update(det *Track, frameID int) error {
	if err := t.kf.update(t.mean, &t.cov, det.box.XYAH()); err != nil {
		return fmt.Errorf("update track %d: %w", t.id, err)
	}
	t.refreshBox()

	t.state = StateTracked
	t.activated = true
	t.score = det.score
	t.detectionID = det.detectionID
	t.frameID = frameID
	t.length++

	t.updateFeatures(det.feature)
	return nil
}

func (t *Track) markLost()    { t.state = StateLost }
func (t *Track) markRemoved() { t.state = StateRemoved }

// refreshBox rebuilds the bounding box from the state mean.
func (t *Track) refreshBox() {
	t.box.W = t.mean[2] * t.mean[3]
	t.box.H = t.mean[3]
	t.box.X = t.mean[0] - t.box.W/2
	t.box.Y = t.mean[1] - t.box.H/2
}

// updateFeatures folds a new embedding into the smoothed appearance model
// and the bounded feature history.
func (t *Track) updateFeatures(feat []float32) {
	if !t.hasFeature || feat == nil {
		return
	}

	norm := normalizeFeature(feat)
	t.feature = norm

	if t.smoothFeature == nil {
		t.smoothFeature = make([]float32, len(norm))
		copy(t.smoothFeature, norm)
	} else {
		for i := range norm {
			t.smoothFeature[i] = t.alpha*t.smoothFeature[i] + (1-t.alpha)*norm[i]
		}
		t.smoothFeature = normalizeFeature(t.smoothFeature)
	}

	t.featureQueue = append(t.featureQueue, norm)
	if len(t.featureQueue) > t.maxQueue {
		t.featureQueue = t.featureQueue[1:]
	}
}

// bestMatchDistance returns the smallest distance between a detection
// embedding and any stored embedding of this track. Tracks without
// appearance data are maximally distant.
func (t *Track) bestMatchDistance(detFeat []float32) float32 {
	if !t.hasFeature || len(t.featureQueue) == 0 {
		return 1.0
	}

	detNorm := normalizeFeature(detFeat)
	best := float32(1.0)
	for _, f := range t.featureQueue {
		if d := featureDistance(f, detNorm); d < best {
			best = d
		}
	}
	return best
}
