package tracking

import (
	"fmt"

	"gocv.io/x/gocv"
)

var _ Engine = (*AppearanceEngine)(nil)

// AppearanceEngine extends motion association with appearance embeddings.
// Each high confidence detection is cropped from the frame and embedded;
// the first association stage then blends box overlap with embedding
// distance, which keeps identities stable through crossings and brief
// occlusions.
type AppearanceEngine struct {
	core      *core
	extractor FeatureExtractor
	alpha     float32
	history   int
}

// NewAppearanceEngine creates an appearance-assisted engine.
func NewAppearanceEngine(cfg Config, extractor FeatureExtractor) *AppearanceEngine {
	e := &AppearanceEngine{
		core:      newCore(cfg),
		extractor: extractor,
		alpha:     cfg.FeatureAlpha,
		history:   cfg.FeatureHistory,
	}
	e.core.primaryCost = e.fusedCost
	e.core.newTrack = func(obj Object) *Track {
		t := newTrack(obj.Box, obj.Score, obj.DetectionID, obj.Label)
		if obj.Feature != nil {
			t.attachFeature(obj.Feature, e.alpha, e.history)
		}
		return t
	}
	return e
}

// Update embeds each detection crop and advances the tracker one frame.
func (e *AppearanceEngine) Update(objects []Object, frame gocv.Mat) ([]*Track, error) {
	missing := false
	for i := range objects {
		if objects[i].Feature == nil {
			missing = true
			break
		}
	}
	if missing && !frame.Empty() {
		for i := range objects {
			if objects[i].Feature != nil {
				continue
			}
			feat, err := e.extractor.Extract(frame, objects[i].Box)
			if err != nil {
				return nil, fmt.Errorf("extract feature: %w", err)
			}
			objects[i].Feature = feat
		}
	}
	return e.core.step(objects)
}

// Mode reports ModeAppearance.
func (e *AppearanceEngine) Mode() Mode { return ModeAppearance }

// Reset clears all track state.
func (e *AppearanceEngine) Reset() { e.core.reset() }

// fusedCost averages box overlap distance with the best embedding match
// distance wherever both sides carry appearance data.
func (e *AppearanceEngine) fusedCost(pool, dets []*Track) [][]float32 {
	cost := iouCostMatrix(pool, dets)
	for i, track := range pool {
		for j, det := range dets {
			if det.feature == nil {
				continue
			}
			d := track.bestMatchDistance(det.feature)
			cost[i][j] = (cost[i][j] + d) / 2
		}
	}
	return cost
}
