package store

import (
	"context"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centinela/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "people.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "people.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// reopening an existing database validates the stored version
	s, err = Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Close())
}

func TestSeedIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Seed(ctx))
	require.NoError(t, s.Seed(ctx))

	persons, err := s.Persons(ctx)
	require.NoError(t, err)
	require.Len(t, persons, 3)
	assert.Equal(t, "Juan Perez", persons[0].Name)
	assert.Equal(t, event.RoleEmployee, persons[0].Role)

	// seeded rows carry no face image, so the resolver set is empty
	known, err := s.KnownFaces(ctx)
	require.NoError(t, err)
	assert.Empty(t, known)
}

func TestUpsertPerson(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertPerson(ctx, "Ana Gomez", event.RoleEmployee, "faces/ana.jpg")
	require.NoError(t, err)
	assert.Positive(t, id)

	// updating the same name keeps the id and replaces the face path
	id2, err := s.UpsertPerson(ctx, "Ana Gomez", event.RoleEmployee, "faces/ana_v2.jpg")
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	known, err := s.KnownFaces(ctx)
	require.NoError(t, err)
	require.Len(t, known, 1)
	assert.Equal(t, "faces/ana_v2.jpg", known[0].FacePath)
}

func TestRecordAndListEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.RecordEvent(ctx, event.Event{
			Time:         base.Add(time.Duration(i) * time.Second),
			Camera:       "entrada",
			Session:      "5f0c2d1e",
			TrackID:      i + 1,
			PersonName:   event.UnknownName,
			Role:         event.RoleUnknown,
			Confidence:   0.9,
			Box:          image.Rect(10, 20, 110, 220),
			EvidencePath: "evidencias/entrada_1_1.jpg",
		})
		require.NoError(t, err)
	}

	events, err := s.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// newest first
	assert.Equal(t, 3, events[0].TrackID)
	assert.Equal(t, 2, events[1].TrackID)
	assert.Equal(t, "2026-03-10 12:00:02", events[0].Time)
	assert.Equal(t, "10,20,110,220", events[0].BBox)
	assert.Equal(t, event.UnknownName, events[0].PersonName)
	assert.Equal(t, "5f0c2d1e", events[0].Session)
}

func TestCountEventsByRole(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := []event.Event{
		{Camera: "entrada", PersonName: "Juan Perez", Role: event.RoleEmployee},
		{Camera: "entrada", PersonName: event.UnknownName, Role: event.RoleUnknown},
		{Camera: "pasillo", PersonName: event.UnknownName, Role: ""},
	}
	for _, evt := range records {
		_, err := s.RecordEvent(ctx, evt)
		require.NoError(t, err)
	}

	counts, err := s.CountEventsByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[event.RoleEmployee])
	assert.Equal(t, 2, counts[event.RoleUnknown])
}
