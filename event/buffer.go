package event

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// NoRecentEvents is the summary emitted when the buffer window is empty.
const NoRecentEvents = "Sin eventos recientes."

type timedEvent struct {
	at  time.Time
	evt Event
}

// Buffer keeps the events seen during a sliding retention window. Events
// older than the window are dropped eagerly on every insert, so memory is
// bounded by the event rate. Safe for concurrent use.
type Buffer struct {
	mu        sync.Mutex
	retention time.Duration
	entries   []timedEvent

	now func() time.Time
}

// NewBuffer creates a buffer that retains events for the given window.
func NewBuffer(retention time.Duration) *Buffer {
	return &Buffer{
		retention: retention,
		now:       time.Now,
	}
}

// Add appends an event and trims everything that has fallen out of the
// retention window.
func (b *Buffer) Add(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.entries = append(b.entries, timedEvent{at: now, evt: evt})

	cutoff := now.Add(-b.retention)
	i := 0
	for i < len(b.entries) && b.entries[i].at.Before(cutoff) {
		i++
	}
	b.entries = b.entries[i:]
}

// Recent returns a copy of the events still inside the retention window,
// oldest first.
func (b *Buffer) Recent() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.retention)
	var out []Event
	for _, e := range b.entries {
		if !e.at.Before(cutoff) {
			out = append(out, e.evt)
		}
	}
	return out
}

// Len returns the number of buffered events, including any not yet
// trimmed.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Summarize renders the window as "camera:count; ...; Desconocidos: N",
// with cameras ordered by first appearance. An empty window yields
// NoRecentEvents.
func (b *Buffer) Summarize() string {
	events := b.Recent()
	if len(events) == 0 {
		return NoRecentEvents
	}

	counts := make(map[string]int)
	var order []string
	unknown := 0

	for _, e := range events {
		if _, seen := counts[e.Camera]; !seen {
			order = append(order, e.Camera)
		}
		counts[e.Camera]++
		if e.Unknown() {
			unknown++
		}
	}

	parts := make([]string, 0, len(order)+1)
	for _, cam := range order {
		parts = append(parts, fmt.Sprintf("%s:%d", cam, counts[cam]))
	}
	return fmt.Sprintf("%s; Desconocidos: %d", strings.Join(parts, "; "), unknown)
}
