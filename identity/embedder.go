package identity

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

var _ Embedder = (*NetEmbedder)(nil)

// NetEmbedder locates the largest face in a crop with a cascade classifier
// and embeds it through an OpenFace-style embedding network (128-d output,
// 96x96 input).
type NetEmbedder struct {
	net     gocv.Net
	cascade gocv.CascadeClassifier
	mu      sync.Mutex
}

// NetEmbedderConfig names the model files for the embedder.
type NetEmbedderConfig struct {
	// ModelPath is the embedding network (Torch .t7 or ONNX).
	ModelPath string
	// CascadePath is the Haar cascade used to locate the face.
	CascadePath string
}

// NewNetEmbedder loads the embedding network and face cascade.
func NewNetEmbedder(cfg NetEmbedderConfig) (*NetEmbedder, error) {
	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("load embedding model %q: empty net", cfg.ModelPath)
	}

	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cfg.CascadePath) {
		net.Close()
		return nil, fmt.Errorf("load face cascade %q", cfg.CascadePath)
	}

	return &NetEmbedder{net: net, cascade: cascade}, nil
}

// Embed finds the largest face in the crop and returns its embedding.
// ErrNoFace is returned when the cascade finds nothing.
func (e *NetEmbedder) Embed(crop gocv.Mat) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	faces := e.cascade.DetectMultiScale(crop)
	if len(faces) == 0 {
		return nil, ErrNoFace
	}

	largest := faces[0]
	for _, f := range faces[1:] {
		if f.Dx()*f.Dy() > largest.Dx()*largest.Dy() {
			largest = f
		}
	}
	largest = largest.Intersect(image.Rect(0, 0, crop.Cols(), crop.Rows()))
	if largest.Empty() {
		return nil, ErrNoFace
	}

	face := crop.Region(largest)
	defer face.Close()

	blob := gocv.BlobFromImage(face, 1.0/255.0, image.Pt(96, 96),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("embedding forward pass produced no output")
	}

	flat, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read embedding output: %w", err)
	}
	feature := make([]float32, len(flat))
	copy(feature, flat)
	return feature, nil
}

// Close releases the network and cascade.
func (e *NetEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cascade.Close()
	return e.net.Close()
}
