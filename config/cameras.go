package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cameras is the camera inventory, grouped by building and room.
type Cameras struct {
	Buildings []Building `json:"buildings"`
}

// Building groups the rooms of one site.
type Building struct {
	Name  string `json:"name"`
	Rooms []Room `json:"rooms"`
}

// Room groups the cameras of one physical space.
type Room struct {
	Name    string   `json:"name"`
	Cameras []Camera `json:"cameras"`
}

// Camera is one configured video source.
type Camera struct {
	Name   string     `json:"name"`
	Source SourceSpec `json:"source"`
	// Tracker overrides the default engine for this camera; empty means
	// use the global default.
	Tracker string `json:"tracker,omitempty"`
}

// SourceSpec is a camera source: a device index or a path/URL. Older
// inventory files store device indexes as JSON numbers, so both forms
// decode to the string representation.
type SourceSpec string

// UnmarshalJSON accepts both "rtsp://..." and bare numbers like 0.
func (s *SourceSpec) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*s = SourceSpec(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err == nil {
		*s = SourceSpec(asNumber.String())
		return nil
	}
	return fmt.Errorf("camera source must be a string or number, got %s", data)
}

func (s SourceSpec) String() string { return string(s) }

// CameraRef is a camera together with its location in the inventory.
type CameraRef struct {
	Building string
	Room     string
	Camera   Camera
}

// Flatten returns every configured camera with its location.
func (c *Cameras) Flatten() []CameraRef {
	var refs []CameraRef
	for _, b := range c.Buildings {
		for _, r := range b.Rooms {
			for _, cam := range r.Cameras {
				refs = append(refs, CameraRef{Building: b.Name, Room: r.Name, Camera: cam})
			}
		}
	}
	return refs
}

// Add inserts a camera under the named building and room, creating either
// when missing.
func (c *Cameras) Add(building, room string, cam Camera) {
	var b *Building
	for i := range c.Buildings {
		if c.Buildings[i].Name == building {
			b = &c.Buildings[i]
			break
		}
	}
	if b == nil {
		c.Buildings = append(c.Buildings, Building{Name: building})
		b = &c.Buildings[len(c.Buildings)-1]
	}

	var r *Room
	for i := range b.Rooms {
		if b.Rooms[i].Name == room {
			r = &b.Rooms[i]
			break
		}
	}
	if r == nil {
		b.Rooms = append(b.Rooms, Room{Name: room})
		r = &b.Rooms[len(b.Rooms)-1]
	}

	r.Cameras = append(r.Cameras, cam)
}

// LoadCameras reads the inventory at path, writing an empty inventory
// file first when none exists.
func LoadCameras(path string) (*Cameras, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		empty := &Cameras{Buildings: []Building{}}
		if err := writeCameras(path, empty); err != nil {
			return nil, err
		}
		return empty, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cameras config: %w", err)
	}

	var cams Cameras
	if err := json.Unmarshal(raw, &cams); err != nil {
		return nil, fmt.Errorf("parse cameras config %s: %w", path, err)
	}
	return &cams, nil
}

// SaveCameras writes the inventory to path, first snapshotting the
// previous file into historyDir as cameras_<timestamp>.json.
func SaveCameras(path, historyDir string, cams *Cameras) error {
	if prev, err := os.ReadFile(path); err == nil {
		snapshot := filepath.Join(historyDir,
			fmt.Sprintf("cameras_%s.json", time.Now().Format("20060102_150405")))
		if err := os.WriteFile(snapshot, prev, 0o644); err != nil {
			return fmt.Errorf("snapshot cameras config: %w", err)
		}
	}
	return writeCameras(path, cams)
}

func writeCameras(path string, cams *Cameras) error {
	raw, err := json.MarshalIndent(cams, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cameras config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write cameras config: %w", err)
	}
	return nil
}
