// Package store persists registered persons and sighting events in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"centinela/event"
)

// timeFormat is the timestamp layout used in the events table.
const timeFormat = "2006-01-02 15:04:05"

// Person is a registered person with an optional reference face image.
type Person struct {
	ID        int64
	Name      string
	Role      string
	FacePath  string
	CreatedAt string
}

// EventRecord is a stored sighting row.
type EventRecord struct {
	ID           int64   `json:"id"`
	Time         string  `json:"ts"`
	Camera       string  `json:"camera"`
	Session      string  `json:"session"`
	TrackID      int     `json:"track_id"`
	PersonName   string  `json:"person_name"`
	Role         string  `json:"role"`
	Confidence   float64 `json:"confidence"`
	BBox         string  `json:"bbox"`
	EvidencePath string  `json:"evidence"`
}

// Store wraps the SQLite database holding persons and events.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the database at path, applying the connection pragmas
// and creating or validating the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Seed inserts the example persons shipped with a fresh installation.
// Existing rows with the same name are left untouched.
func (s *Store) Seed(ctx context.Context) error {
	seed := []struct{ name, role string }{
		{"Juan Perez", event.RoleEmployee},
		{"Maria Lopez", event.RoleEmployee},
		{"Proveedor S.A.", "Proveedor"},
	}
	for _, p := range seed {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO persons (name, role) VALUES (?, ?)", p.name, p.role); err != nil {
			return fmt.Errorf("seed person %q: %w", p.name, err)
		}
	}
	return nil
}

// UpsertPerson registers a person or updates the role and face image of an
// existing one, returning the row id.
func (s *Store) UpsertPerson(ctx context.Context, name, role, facePath string) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO persons (name, role, face_path) VALUES (?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET role = excluded.role, face_path = excluded.face_path`,
		name, role, nullableString(facePath))
	if err != nil {
		return 0, fmt.Errorf("upsert person %q: %w", name, err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT id FROM persons WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("read person id: %w", err)
	}
	return id, nil
}

// Persons returns every registered person ordered by name.
func (s *Store) Persons(ctx context.Context) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, role, face_path, created_at FROM persons ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()
	return scanPersons(rows)
}

// KnownFaces returns the persons that carry a reference face image, the
// set the identity resolver loads.
func (s *Store) KnownFaces(ctx context.Context) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, role, face_path, created_at FROM persons WHERE face_path IS NOT NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list known faces: %w", err)
	}
	defer rows.Close()
	return scanPersons(rows)
}

func scanPersons(rows *sql.Rows) ([]Person, error) {
	var out []Person
	for rows.Next() {
		var p Person
		var facePath, createdAt sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Role, &facePath, &createdAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		p.FacePath = facePath.String
		p.CreatedAt = createdAt.String
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return out, nil
}

// RecordEvent stores a sighting and returns its row id.
func (s *Store) RecordEvent(ctx context.Context, evt event.Event) (int64, error) {
	ts := evt.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (ts, camera, session, track_id, person_name, role, confidence, bbox, evidence)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.Format(timeFormat),
		evt.Camera,
		evt.Session,
		strconv.Itoa(evt.TrackID),
		evt.PersonName,
		evt.Role,
		evt.Confidence,
		formatBBox(evt.Box),
		evt.EvidencePath,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, camera, session, track_id, person_name, role, confidence, bbox, evidence
         FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var session, trackID sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Time, &rec.Camera, &session, &trackID,
			&rec.PersonName, &rec.Role, &rec.Confidence, &rec.BBox, &rec.EvidencePath); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Session = session.String
		rec.TrackID, _ = strconv.Atoi(trackID.String)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// CountEventsByRole aggregates stored events per role, with empty roles
// counted as unknown.
func (s *Store) CountEventsByRole(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT COALESCE(NULLIF(role, ''), ?), COUNT(1) FROM events GROUP BY 1", event.RoleUnknown)
	if err != nil {
		return nil, fmt.Errorf("count events by role: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan role count: %w", err)
		}
		out[role] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role counts: %w", err)
	}
	return out, nil
}

// formatBBox renders a rectangle as "x1,y1,x2,y2".
func formatBBox(r image.Rectangle) string {
	parts := []string{
		strconv.Itoa(r.Min.X),
		strconv.Itoa(r.Min.Y),
		strconv.Itoa(r.Max.X),
		strconv.Itoa(r.Max.Y),
	}
	return strings.Join(parts, ",")
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
