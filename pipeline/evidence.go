package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
)

// EvidenceSaver persists a snapshot of the frame that produced an
// unknown-person event.
type EvidenceSaver interface {
	// Save writes the frame and returns the stored path.
	Save(camera string, trackID int, at time.Time, frame gocv.Mat) (string, error)
}

// DiskEvidence writes JPEG snapshots named {camera}_{track}_{unix}.jpg
// into a flat directory.
type DiskEvidence struct {
	dir string
}

func NewDiskEvidence(dir string) *DiskEvidence {
	return &DiskEvidence{dir: dir}
}

func (d *DiskEvidence) Save(camera string, trackID int, at time.Time, frame gocv.Mat) (string, error) {
	name := fmt.Sprintf("%s_%d_%d.jpg", camera, trackID, at.Unix())
	path := filepath.Join(d.dir, name)
	if ok := gocv.IMWrite(path, frame); !ok {
		return "", fmt.Errorf("writing evidence image %s", path)
	}
	return path, nil
}
