package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferSummarizeEmpty(t *testing.T) {
	b := NewBuffer(30 * time.Second)
	assert.Equal(t, NoRecentEvents, b.Summarize())
}

func TestBufferSummarize(t *testing.T) {
	b := NewBuffer(30 * time.Second)

	b.Add(Event{Camera: "entrada", PersonName: "Juan Perez", Role: RoleEmployee})
	b.Add(Event{Camera: "entrada", PersonName: UnknownName, Role: RoleUnknown})
	b.Add(Event{Camera: "pasillo", PersonName: ""})

	assert.Equal(t, "entrada:2; pasillo:1; Desconocidos: 2", b.Summarize())
}

func TestBufferTrimsOldEvents(t *testing.T) {
	b := NewBuffer(30 * time.Second)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	current := base
	b.now = func() time.Time { return current }

	b.Add(Event{Camera: "entrada", TrackID: 1})
	current = base.Add(10 * time.Second)
	b.Add(Event{Camera: "entrada", TrackID: 2})
	require.Equal(t, 2, b.Len())

	// first event falls out of the window on the next insert
	current = base.Add(35 * time.Second)
	b.Add(Event{Camera: "pasillo", TrackID: 3})

	events := b.Recent()
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[0].TrackID)
	assert.Equal(t, 3, events[1].TrackID)
	assert.Equal(t, "entrada:1; pasillo:1; Desconocidos: 2", b.Summarize())
}

func TestBufferRecentFiltersWithoutAdd(t *testing.T) {
	b := NewBuffer(30 * time.Second)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	current := base
	b.now = func() time.Time { return current }

	b.Add(Event{Camera: "entrada", TrackID: 1})

	// past the window, nothing was added so the entry is still stored
	// but no longer reported
	current = base.Add(time.Minute)
	assert.Empty(t, b.Recent())
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, NoRecentEvents, b.Summarize())
}

func TestEventUnknown(t *testing.T) {
	assert.True(t, Event{PersonName: ""}.Unknown())
	assert.True(t, Event{PersonName: UnknownName}.Unknown())
	assert.False(t, Event{PersonName: "Maria Lopez"}.Unknown())
}
