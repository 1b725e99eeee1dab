// Package capture abstracts camera video input behind a reconnectable
// source.
package capture

import (
	"fmt"
	"strconv"

	"gocv.io/x/gocv"
)

// Source is a stream of frames from one camera. Sources are used by a
// single pipeline goroutine; Open may be called again after a read
// failure to reconnect.
type Source interface {
	// Open connects to the camera. Calling Open on an open source
	// reconnects.
	Open() error
	// IsOpened reports whether the source is connected.
	IsOpened() bool
	// Read fetches the next frame into dst, returning false when the
	// stream stalls or disconnects.
	Read(dst *gocv.Mat) bool
	// Close releases the source.
	Close() error
}

var _ Source = (*VideoSource)(nil)

// VideoSource reads from a webcam index or a file/RTSP URL through
// OpenCV. A spec of "0" means local device zero, anything non-numeric is
// passed through as a path or URL.
type VideoSource struct {
	spec string
	cap  *gocv.VideoCapture
}

// NewVideoSource creates a source for the given camera spec.
func NewVideoSource(spec string) *VideoSource {
	return &VideoSource{spec: spec}
}

// Spec returns the configured camera spec.
func (v *VideoSource) Spec() string { return v.spec }

// Open connects to the device or stream.
func (v *VideoSource) Open() error {
	if v.cap != nil {
		_ = v.cap.Close()
		v.cap = nil
	}

	var (
		cap *gocv.VideoCapture
		err error
	)
	if device, ok := DeviceID(v.spec); ok {
		cap, err = gocv.OpenVideoCapture(device)
	} else {
		cap, err = gocv.OpenVideoCapture(v.spec)
	}
	if err != nil {
		return fmt.Errorf("open capture %q: %w", v.spec, err)
	}
	v.cap = cap
	return nil
}

// IsOpened reports whether the underlying capture is connected.
func (v *VideoSource) IsOpened() bool {
	return v.cap != nil && v.cap.IsOpened()
}

// Read fetches the next frame. Empty frames count as read failures.
func (v *VideoSource) Read(dst *gocv.Mat) bool {
	if v.cap == nil {
		return false
	}
	if ok := v.cap.Read(dst); !ok {
		return false
	}
	return !dst.Empty()
}

// Close releases the capture device.
func (v *VideoSource) Close() error {
	if v.cap == nil {
		return nil
	}
	err := v.cap.Close()
	v.cap = nil
	return err
}

// DeviceID interprets a camera spec as a local device index. It returns
// false for paths and URLs.
func DeviceID(spec string) (int, bool) {
	id, err := strconv.Atoi(spec)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
