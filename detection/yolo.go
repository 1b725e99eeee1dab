package detection

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

var _ Detector = (*YOLODetector)(nil)

// YOLODetector runs a YOLO network through the OpenCV DNN module. The
// decoder expects the v5-family export layout: one row per candidate
// with normalized cx, cy, w, h, an objectness column and per-class
// scores after it. v8-family exports ([1,84,N], no objectness) need to
// be re-exported in that layout.
// The same instance may serve several camera pipelines; inference is
// serialized with a mutex because gocv.Net is not concurrency safe.
type YOLODetector struct {
	net        gocv.Net
	classNames []string
	inputSize  int
	backend    string
	mu         sync.Mutex
}

// YOLOConfig describes the model files and inference parameters.
type YOLOConfig struct {
	WeightsPath string
	ConfigPath  string // empty for self-describing formats such as ONNX
	NamesPath   string
	InputSize   int // square network input, defaults to 640
}

// NewYOLODetector loads the network and picks the best available backend.
// CUDA is tried first and verified with a throwaway inference; anything
// short of a working GPU falls back to the CPU target.
func NewYOLODetector(cfg YOLOConfig, log *slog.Logger) (*YOLODetector, error) {
	if cfg.InputSize == 0 {
		cfg.InputSize = 640
	}

	net := gocv.ReadNet(cfg.WeightsPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("load network from %q: empty net", cfg.WeightsPath)
	}

	names, err := loadClassNames(cfg.NamesPath)
	if err != nil {
		net.Close()
		return nil, err
	}

	d := &YOLODetector{
		net:        net,
		classNames: names,
		inputSize:  cfg.InputSize,
	}

	d.net.SetPreferableBackend(gocv.NetBackendCUDA)
	d.net.SetPreferableTarget(gocv.NetTargetCUDA)
	if d.probe() {
		d.backend = "cuda"
		log.Info("detector ready", "backend", "cuda", "weights", cfg.WeightsPath)
		return d, nil
	}

	d.net.SetPreferableBackend(gocv.NetBackendDefault)
	d.net.SetPreferableTarget(gocv.NetTargetCPU)
	if !d.probe() {
		d.net.Close()
		return nil, fmt.Errorf("network %q failed test inference on both cuda and cpu targets", cfg.WeightsPath)
	}
	d.backend = "cpu"
	log.Info("detector ready", "backend", "cpu", "weights", cfg.WeightsPath)
	return d, nil
}

// Backend reports which inference target was selected at load time.
func (d *YOLODetector) Backend() string { return d.backend }

// probe runs one inference on a blank frame to verify the backend works.
func (d *YOLODetector) probe() bool {
	frame := gocv.NewMatWithSize(d.inputSize, d.inputSize, gocv.MatTypeCV8UC3)
	defer frame.Close()
	_, err := d.Detect(frame)
	return err == nil
}

// Detect runs one forward pass and decodes detections into frame coordinates.
func (d *YOLODetector) Detect(frame gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(frame, 1.0/255.0,
		image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	if output.Empty() {
		return nil, fmt.Errorf("forward pass produced no output")
	}

	scaleX := float32(frame.Cols()) / float32(d.inputSize)
	scaleY := float32(frame.Rows()) / float32(d.inputSize)

	var dets []Detection
	for i := 0; i < output.Rows(); i++ {
		row := output.RowRange(i, i+1)
		data := row.Clone()
		row.Close()

		scores := data.ColRange(5, data.Cols())
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(scores)
		scores.Close()

		classID := maxLoc.X
		objectness := data.GetFloatAt(0, 4)
		confidence := float64(objectness) * float64(maxVal)
		if confidence < 0.1 || classID >= len(d.classNames) {
			data.Close()
			continue
		}

		// Rows carry center-x, center-y, width, height normalized to
		// the network input.
		cx := data.GetFloatAt(0, 0) * float32(d.inputSize) * scaleX
		cy := data.GetFloatAt(0, 1) * float32(d.inputSize) * scaleY
		w := data.GetFloatAt(0, 2) * float32(d.inputSize) * scaleX
		h := data.GetFloatAt(0, 3) * float32(d.inputSize) * scaleY
		data.Close()

		left := int(cx - w/2)
		top := int(cy - h/2)
		dets = append(dets, Detection{
			Box:        image.Rect(left, top, left+int(w), top+int(h)),
			Confidence: confidence,
			ClassID:    classID,
			Class:      d.classNames[classID],
		})
	}
	return dets, nil
}

// Close releases the underlying network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func loadClassNames(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read class names: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("class names file %q is empty", path)
	}
	return names, nil
}
