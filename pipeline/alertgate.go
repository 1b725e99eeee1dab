// Package pipeline runs the per-camera capture, tracking and alerting
// loop and the supervisor that owns one loop per configured camera.
package pipeline

import (
	"sync"
	"time"
)

type alertKey struct {
	camera  string
	trackID int
}

// AlertGate suppresses repeated alerts for the same track within the
// cooldown interval. Track identifiers are scoped to one engine session;
// an identifier reused by a later physical track inherits the previous
// cooldown entry.
type AlertGate struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[alertKey]time.Time
}

func NewAlertGate(cooldown time.Duration) *AlertGate {
	return &AlertGate{
		cooldown: cooldown,
		last:     map[alertKey]time.Time{},
	}
}

// ShouldAlert reports whether the cooldown for (camera, trackID) has
// elapsed. It does not refresh the cooldown; call Record after the alert
// actually fires.
func (g *AlertGate) ShouldAlert(camera string, trackID int, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.last[alertKey{camera, trackID}]
	if !ok {
		return true
	}
	return now.Sub(last) >= g.cooldown
}

// Record refreshes the cooldown timestamp for (camera, trackID).
func (g *AlertGate) Record(camera string, trackID int, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[alertKey{camera, trackID}] = now
}

// Sweep drops entries older than maxAge and returns how many were
// removed. Entries are otherwise kept forever, so callers should sweep
// periodically to bound the table under heavy track churn.
func (g *AlertGate) Sweep(now time.Time, maxAge time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for key, last := range g.last {
		if now.Sub(last) > maxAge {
			delete(g.last, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked cooldown entries.
func (g *AlertGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}
