// Package identity matches face crops against the registered persons.
package identity

import (
	"errors"

	"gocv.io/x/gocv"

	"centinela/event"
)

// DefaultThreshold is the embedding distance below which a face is
// considered a match.
const DefaultThreshold = 0.45

// ErrNoFace is returned by embedders when no face is found in the crop.
var ErrNoFace = errors.New("no face found")

// Embedder turns a face crop into an embedding vector. Implementations
// are shared across cameras and must be safe for concurrent use.
type Embedder interface {
	Embed(crop gocv.Mat) ([]float32, error)
	Close() error
}

// Identity is the result of resolving a face crop.
type Identity struct {
	Name     string
	Role     string
	Match    bool
	Distance float32
}

// Unknown is the identity reported when no registered person matches.
func Unknown() Identity {
	return Identity{
		Name:     event.UnknownName,
		Role:     event.RoleUnknown,
		Distance: 1.0,
	}
}
