package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"gocv.io/x/gocv"

	"centinela/store"
)

// Resolver identifies face crops against the persons table. The known-face
// snapshot is swapped atomically on Reload, so resolution never blocks the
// camera pipelines.
type Resolver struct {
	store     *store.Store
	embedder  Embedder
	threshold float32
	log       *slog.Logger

	reg atomic.Pointer[registry]

	// loadImage reads a reference face image from disk. Swappable in
	// tests.
	loadImage func(path string) (gocv.Mat, error)
}

// NewResolver creates a resolver over the given store and embedder. The
// registry starts empty; call Reload before resolving.
func NewResolver(st *store.Store, emb Embedder, threshold float32, log *slog.Logger) *Resolver {
	r := &Resolver{
		store:     st,
		embedder:  emb,
		threshold: threshold,
		log:       log,
		loadImage: readImage,
	}
	r.reg.Store(newRegistry(threshold))
	return r
}

func readImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return img, fmt.Errorf("read image %q: empty", path)
	}
	return img, nil
}

// Reload rebuilds the known-face registry from the persons table and
// swaps it in. Unreadable images and faceless reference photos are
// skipped with a warning, matching the forgiving load of registrations.
func (r *Resolver) Reload(ctx context.Context) error {
	persons, err := r.store.KnownFaces(ctx)
	if err != nil {
		return fmt.Errorf("load known faces: %w", err)
	}

	reg := newRegistry(r.threshold)
	for _, p := range persons {
		img, err := r.loadImage(p.FacePath)
		if err != nil {
			r.log.Warn("skipping face image", "person", p.Name, "path", p.FacePath, "error", err)
			continue
		}
		feature, err := r.embedder.Embed(img)
		img.Close()
		if err != nil {
			if errors.Is(err, ErrNoFace) {
				r.log.Warn("no face in reference image", "person", p.Name, "path", p.FacePath)
			} else {
				r.log.Warn("embedding reference image failed", "person", p.Name, "error", err)
			}
			continue
		}
		reg.add(p.Name, p.Role, feature)
	}

	r.reg.Store(reg)
	r.log.Info("face registry reloaded", "known", reg.size(), "registered", len(persons))
	return nil
}

// Known returns the number of usable registered faces.
func (r *Resolver) Known() int {
	return r.reg.Load().size()
}

// Resolve identifies the person in a face crop. Any embedding failure,
// including crops without a visible face, resolves to unknown.
func (r *Resolver) Resolve(crop gocv.Mat) Identity {
	reg := r.reg.Load()
	if reg.size() == 0 {
		return Unknown()
	}

	feature, err := r.embedder.Embed(crop)
	if err != nil {
		return Unknown()
	}
	return reg.match(feature)
}
