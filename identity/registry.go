package identity

import (
	"gonum.org/v1/gonum/floats"

	"centinela/event"
)

// knownPerson holds one registered face embedding with its metadata.
type knownPerson struct {
	name    string
	role    string
	feature []float32
}

// registry is an immutable snapshot of the registered faces. Lookups walk
// every entry; registered staff lists are small enough that nothing
// smarter is needed.
type registry struct {
	people    []knownPerson
	threshold float32
}

func newRegistry(threshold float32) *registry {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &registry{threshold: threshold}
}

func (r *registry) add(name, role string, feature []float32) {
	r.people = append(r.people, knownPerson{name: name, role: role, feature: feature})
}

func (r *registry) size() int { return len(r.people) }

// match finds the nearest registered face by euclidean distance. A person
// is reported only when the best distance is under the threshold.
func (r *registry) match(feature []float32) Identity {
	if len(r.people) == 0 || len(feature) == 0 {
		return Unknown()
	}

	bestIdx := -1
	bestDist := float32(0)
	for i, p := range r.people {
		d := euclidean(p.feature, feature)
		if bestIdx < 0 || d < bestDist {
			bestIdx = i
			bestDist = d
		}
	}

	if bestDist >= r.threshold {
		id := Unknown()
		id.Distance = bestDist
		return id
	}

	best := r.people[bestIdx]
	role := best.role
	if role == "" {
		role = event.RoleEmployee
	}
	return Identity{
		Name:     best.name,
		Role:     role,
		Match:    true,
		Distance: bestDist,
	}
}

func euclidean(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 1.0
	}
	av := make([]float64, len(a))
	bv := make([]float64, len(b))
	for i := range a {
		av[i] = float64(a[i])
		bv[i] = float64(b[i])
	}
	return float32(floats.Distance(av, bv, 2))
}
