package api

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centinela/event"
	"centinela/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store, *event.Buffer, string) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "people.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	buf := event.NewBuffer(30 * time.Second)
	camerasPath := filepath.Join(dir, "cameras.json")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	status := func() map[string]string { return map[string]string{"entrada": "running"} }
	return NewServer(":0", st, buf, camerasPath, status, log), st, buf, camerasPath
}

func TestEventsEndpoint(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := st.RecordEvent(ctx, event.Event{
			Time:       time.Date(2026, 8, 30, 12, i, 0, 0, time.UTC),
			Camera:     "entrada",
			TrackID:    i + 1,
			PersonName: event.UnknownName,
			Role:       event.RoleUnknown,
			Box:        image.Rect(10, 10, 50, 120),
		})
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var events []store.EventRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 3)
	// Newest first.
	assert.Equal(t, 3, events[0].TrackID)
}

func TestEventsEndpointEmpty(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCamerasEndpointServesFileVerbatim(t *testing.T) {
	srv, _, _, camerasPath := newTestServer(t)

	raw := `{"buildings":[{"name":"Edificio A","rooms":[]}]}`
	require.NoError(t, os.WriteFile(camerasPath, []byte(raw), 0o644))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cameras", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, raw, rec.Body.String())
}

func TestCamerasEndpointMissingFile(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cameras", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"buildings":[]}`, rec.Body.String())
}

func TestSummaryEndpoint(t *testing.T) {
	srv, _, buf, _ := newTestServer(t)

	buf.Add(event.Event{Camera: "entrada", PersonName: event.UnknownName})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload["summary"], "entrada")
	assert.Equal(t, float64(1), payload["recent"])
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Cameras map[string]string `json:"cameras"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "running", payload.Cameras["entrada"])
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
