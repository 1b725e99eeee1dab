package detection

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterClass(t *testing.T) {
	dets := []Detection{
		{Box: image.Rect(0, 0, 10, 20), Confidence: 0.9, Class: "person"},
		{Box: image.Rect(5, 5, 15, 25), Confidence: 0.2, Class: "person"},
		{Box: image.Rect(0, 0, 30, 30), Confidence: 0.95, Class: "car"},
		{Box: image.Rect(8, 8, 18, 28), Confidence: 0.35, Class: "person"},
	}

	got := FilterClass(dets, PersonClass, 0.35)
	require.Len(t, got, 2)
	assert.Equal(t, image.Rect(0, 0, 10, 20), got[0].Box)
	assert.Equal(t, image.Rect(8, 8, 18, 28), got[1].Box)
}

func TestFilterClassEmpty(t *testing.T) {
	assert.Nil(t, FilterClass(nil, PersonClass, 0.35))
	assert.Nil(t, FilterClass([]Detection{{Class: "dog", Confidence: 1}}, PersonClass, 0.35))
}

func TestLoadClassNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coco.names")
	require.NoError(t, os.WriteFile(path, []byte("person\nbicycle\ncar\n\n"), 0o644))

	names, err := loadClassNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "bicycle", "car"}, names)
}

func TestLoadClassNamesErrors(t *testing.T) {
	_, err := loadClassNames(filepath.Join(t.TempDir(), "missing.names"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.names")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o644))
	_, err = loadClassNames(empty)
	assert.Error(t, err)
}
