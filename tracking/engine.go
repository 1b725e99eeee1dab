package tracking

import (
	"errors"
	"fmt"
	"log/slog"

	"gocv.io/x/gocv"
)

// Mode identifies a tracking engine implementation.
type Mode string

const (
	// ModeMotion is the motion-only engine, selected as "bytetrack".
	ModeMotion Mode = "bytetrack"
	// ModeAppearance is the appearance-assisted engine, selected as
	// "deepsort".
	ModeAppearance Mode = "deepsort"
)

// ErrNoEngine is returned when no tracking engine can be constructed.
var ErrNoEngine = errors.New("no tracking engine available")

// Engine follows people across the frames of a single camera. One engine
// instance serves one camera and is not safe for concurrent use.
type Engine interface {
	// Update advances the tracker one frame. The frame is used by
	// appearance-based engines to extract embeddings and may be a zero
	// Mat for motion-only engines.
	Update(objects []Object, frame gocv.Mat) ([]*Track, error)
	// Mode reports which engine implementation is running.
	Mode() Mode
	// Reset clears all track state, restarting identifiers from 1.
	Reset()
}

// FeatureExtractor computes an appearance embedding for a region of a
// frame. Implementations are shared between cameras and must be safe for
// concurrent use.
type FeatureExtractor interface {
	Extract(frame gocv.Mat, box Box) ([]float32, error)
	Close() error
}

// Config carries the association parameters shared by both engines.
type Config struct {
	// FrameRate is the nominal camera frame rate.
	FrameRate int
	// TrackBuffer is the patience, in frames at 30fps, before a lost
	// track is removed.
	TrackBuffer int
	// TrackThresh splits detections into high and low confidence sets.
	TrackThresh float32
	// HighThresh is the minimum confidence to start a new track.
	HighThresh float32
	// MatchThresh is the association cost limit for the first stage.
	MatchThresh float32

	// FeatureAlpha is the EMA smoothing factor for appearance embeddings.
	FeatureAlpha float32
	// FeatureHistory bounds the per-track embedding queue.
	FeatureHistory int
}

// DefaultConfig returns the parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		FrameRate:      30,
		TrackBuffer:    30,
		TrackThresh:    0.5,
		HighThresh:     0.6,
		MatchThresh:    0.8,
		FeatureAlpha:   0.9,
		FeatureHistory: 30,
	}
}

// Select builds the engine for the requested mode. An appearance request
// without a feature extractor falls back to the motion engine; an
// unrecognized mode yields ErrNoEngine.
func Select(mode Mode, cfg Config, extractor FeatureExtractor, log *slog.Logger) (Engine, error) {
	switch mode {
	case ModeMotion, "":
		return NewMotionEngine(cfg), nil
	case ModeAppearance:
		if extractor == nil {
			log.Warn("appearance engine requested without feature extractor, using motion engine")
			return NewMotionEngine(cfg), nil
		}
		return NewAppearanceEngine(cfg, extractor), nil
	}
	return nil, fmt.Errorf("%w: unknown mode %q", ErrNoEngine, mode)
}
