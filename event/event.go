// Package event holds the domain model shared by the camera pipelines:
// person sightings, the rolling recent-event buffer and its summarizer.
package event

import (
	"image"
	"time"
)

const (
	// UnknownName is the sentinel for a person that could not be
	// identified.
	UnknownName = "Desconocido"
	// RoleEmployee marks registered staff.
	RoleEmployee = "Empleado"
	// RoleUnknown is the role recorded for unidentified people.
	RoleUnknown = "Desconocido"
)

// Event is a single person sighting produced by a camera pipeline.
type Event struct {
	Time   time.Time
	Camera string
	// Session is the pipeline run that produced the sighting. Track IDs
	// restart at 1 on every reconnect, so (Session, TrackID) is the
	// globally unique key.
	Session    string
	TrackID    int
	PersonName string
	Role       string
	Confidence float64
	Box        image.Rectangle
	// EvidencePath is the stored snapshot for this sighting, empty when
	// no evidence was written.
	EvidencePath string
}

// Unknown reports whether the sighting is of an unidentified person.
func (e Event) Unknown() bool {
	return e.PersonName == "" || e.PersonName == UnknownName
}
