package tracking

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

var _ FeatureExtractor = (*HistogramExtractor)(nil)

// HistogramExtractor is a lightweight appearance embedder built from
// per-channel color histograms of the detection crop. It trades matching
// power for running without a dedicated embedding model.
type HistogramExtractor struct {
	bins int
}

// NewHistogramExtractor creates an extractor with the given bins per
// channel; 32 is used when bins is not positive.
func NewHistogramExtractor(bins int) *HistogramExtractor {
	if bins <= 0 {
		bins = 32
	}
	return &HistogramExtractor{bins: bins}
}

// Extract computes the concatenated BGR histogram of the crop, normalized
// to unit length.
func (h *HistogramExtractor) Extract(frame gocv.Mat, box Box) ([]float32, error) {
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	crop := box.Rect().Intersect(bounds)
	if crop.Empty() {
		return nil, fmt.Errorf("box %v lies outside the frame", box.Rect())
	}

	roi := frame.Region(crop)
	defer roi.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	feat := make([]float32, 0, 3*h.bins)
	for ch := 0; ch < frame.Channels(); ch++ {
		hist := gocv.NewMat()
		gocv.CalcHist([]gocv.Mat{roi}, []int{ch}, mask, &hist,
			[]int{h.bins}, []float64{0, 256}, false)
		for i := 0; i < hist.Rows(); i++ {
			feat = append(feat, hist.GetFloatAt(i, 0))
		}
		hist.Close()
	}

	return normalizeFeature(feat), nil
}

// Close is a no-op; the extractor holds no native resources.
func (h *HistogramExtractor) Close() error { return nil }
