package pipeline

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"centinela/tracking"
)

var compareHeader = []string{
	"ts", "camera", "frame_idx",
	"bytetrack_count", "deepsort_count",
	"bytetrack_ids", "deepsort_ids",
}

// CompareLog is the shared append-only sink for tracker comparison rows.
// Appends are serialized across cameras.
type CompareLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewCompareLog(path string) *CompareLog {
	return &CompareLog{path: path, now: time.Now}
}

// Append writes one comparison row, creating the file with a header on
// first use.
func (l *CompareLog) Append(camera string, frameIdx int, motion, appearance []*tracking.Track) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	writeHeader := false
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		writeHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening comparison log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(compareHeader); err != nil {
			return fmt.Errorf("writing comparison header: %w", err)
		}
	}
	row := []string{
		l.now().Format("2006-01-02 15:04:05"),
		camera,
		strconv.Itoa(frameIdx),
		strconv.Itoa(len(motion)),
		strconv.Itoa(len(appearance)),
		joinTrackIDs(motion),
		joinTrackIDs(appearance),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing comparison row: %w", err)
	}
	w.Flush()
	return w.Error()
}

func joinTrackIDs(tracks []*tracking.Track) string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = strconv.Itoa(t.ID())
	}
	return strings.Join(ids, ";")
}

// Comparator feeds one camera's detections to a motion and an appearance
// engine side by side and records their agreement. It never touches the
// primary engine or the event stream.
type Comparator struct {
	motion     tracking.Engine
	appearance tracking.Engine
	sink       *CompareLog
	log        *slog.Logger
}

// NewComparator builds the two diagnostic engines. A construction
// failure disables comparison for the camera and returns nil.
func NewComparator(cfg tracking.Config, extractor tracking.FeatureExtractor, sink *CompareLog, log *slog.Logger) *Comparator {
	if extractor == nil {
		log.Warn("comparison mode disabled, no feature extractor for the appearance engine")
		return nil
	}
	motion, err := tracking.Select(tracking.ModeMotion, cfg, nil, log)
	if err != nil {
		log.Warn("comparison mode disabled", "error", err)
		return nil
	}
	appearance, err := tracking.Select(tracking.ModeAppearance, cfg, extractor, log)
	if err != nil {
		log.Warn("comparison mode disabled", "error", err)
		return nil
	}
	return &Comparator{motion: motion, appearance: appearance, sink: sink, log: log}
}

// Observe runs both engines on the detection set and appends one row.
// Engine or sink failures are logged and the row is skipped.
func (c *Comparator) Observe(camera string, frameIdx int, objects []tracking.Object, frame gocv.Mat) {
	// The appearance engine attaches extracted features to its input;
	// work on a copy so the caller's slice stays untouched.
	objects = append([]tracking.Object(nil), objects...)
	motionOut, err := c.motion.Update(objects, frame)
	if err != nil {
		c.log.Warn("comparison motion update failed", "camera", camera, "error", err)
		return
	}
	appearanceOut, err := c.appearance.Update(objects, frame)
	if err != nil {
		c.log.Warn("comparison appearance update failed", "camera", camera, "error", err)
		return
	}
	if err := c.sink.Append(camera, frameIdx, motionOut, appearanceOut); err != nil {
		c.log.Warn("comparison row dropped", "camera", camera, "error", err)
	}
}
