package tracking

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type stubExtractor struct{}

func (stubExtractor) Extract(_ gocv.Mat, _ Box) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (stubExtractor) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSelectEngine(t *testing.T) {
	cfg := DefaultConfig()
	log := discardLogger()

	e, err := Select(ModeMotion, cfg, nil, log)
	require.NoError(t, err)
	assert.Equal(t, ModeMotion, e.Mode())

	e, err = Select("", cfg, nil, log)
	require.NoError(t, err)
	assert.Equal(t, ModeMotion, e.Mode())

	e, err = Select(ModeAppearance, cfg, stubExtractor{}, log)
	require.NoError(t, err)
	assert.Equal(t, ModeAppearance, e.Mode())

	// appearance without an extractor degrades to motion
	e, err = Select(ModeAppearance, cfg, nil, log)
	require.NoError(t, err)
	assert.Equal(t, ModeMotion, e.Mode())

	_, err = Select("centroid", cfg, nil, log)
	require.ErrorIs(t, err, ErrNoEngine)
}

func TestAppearanceEngineStableIDs(t *testing.T) {
	engine := NewAppearanceEngine(DefaultConfig(), stubExtractor{})
	assert.Equal(t, ModeAppearance, engine.Mode())

	featA := []float32{1, 0, 0, 0}
	featB := []float32{0, 1, 0, 0}

	// two people standing apart, features provided by the caller so the
	// frame is never touched
	frame1 := []Object{
		{Box: NewBox(50, 50, 60, 140), Score: 0.92, DetectionID: 1, Feature: featA},
		{Box: NewBox(400, 60, 60, 140), Score: 0.88, DetectionID: 2, Feature: featB},
	}
	tracks, err := engine.Update(frame1, gocv.Mat{})
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	idByDetection := map[int64]int{}
	for _, tr := range tracks {
		idByDetection[tr.DetectionID()] = tr.ID()
	}

	// both move slightly, identifiers must persist
	frame2 := []Object{
		{Box: NewBox(55, 52, 60, 140), Score: 0.91, DetectionID: 3, Feature: featA},
		{Box: NewBox(395, 63, 60, 140), Score: 0.90, DetectionID: 4, Feature: featB},
	}
	tracks, err = engine.Update(frame2, gocv.Mat{})
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	for _, tr := range tracks {
		switch tr.DetectionID() {
		case 3:
			assert.Equal(t, idByDetection[1], tr.ID())
		case 4:
			assert.Equal(t, idByDetection[2], tr.ID())
		default:
			t.Fatalf("unexpected detection id %d", tr.DetectionID())
		}
	}
}

func TestTrackFeatureSmoothing(t *testing.T) {
	tr := newTrack(NewBox(0, 0, 10, 20), 0.9, 1, 0)
	tr.attachFeature([]float32{1, 0}, 0.9, 3)

	require.Len(t, tr.featureQueue, 1)
	assert.InDelta(t, 1.0, tr.smoothFeature[0], 1e-5)

	tr.updateFeatures([]float32{0, 1})
	require.Len(t, tr.featureQueue, 2)
	// the smoothed feature leans toward the original direction
	assert.Greater(t, tr.smoothFeature[0], tr.smoothFeature[1])

	// history stays bounded
	tr.updateFeatures([]float32{0, 1})
	tr.updateFeatures([]float32{0, 1})
	assert.Len(t, tr.featureQueue, 3)

	assert.InDelta(t, 0.0, tr.bestMatchDistance([]float32{0, 1}), 1e-5)
	// opposite directions cap at the maximum distance
	assert.InDelta(t, 1.0, tr.bestMatchDistance([]float32{-1, 0}), 1e-5)
}

func TestBestMatchDistanceWithoutFeatures(t *testing.T) {
	tr := newTrack(NewBox(0, 0, 10, 20), 0.9, 1, 0)
	assert.InDelta(t, 1.0, tr.bestMatchDistance([]float32{1, 0}), 1e-6)
}
