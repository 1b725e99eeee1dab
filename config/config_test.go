package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	base := t.TempDir()

	cfg, err := FromEnv(base)
	require.NoError(t, err)

	assert.Equal(t, "bytetrack", cfg.Tracker)
	assert.Equal(t, 8*time.Second, cfg.AlertCooldown)
	assert.Equal(t, 30*time.Second, cfg.BufferWindow)
	assert.Equal(t, 3, cfg.ProcessEvery)
	assert.InDelta(t, 1.0/3.0, cfg.HeadFraction, 1e-9)
	// The default model must be one the v5-style decoder can parse.
	assert.Equal(t, "yolov5s.onnx", cfg.YOLOWeights)
	assert.False(t, cfg.CompareEngines)
	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, filepath.Join(base, "people.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(base, "reports", "compare_trackers.csv"), cfg.CompareCSVPath())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TRACKER", "DeepSort")
	t.Setenv("ALERT_COOLDOWN", "2.5")
	t.Setenv("BUFFER_SECONDS", "60")
	t.Setenv("PROCESS_EVERY_N_FRAMES", "1")
	t.Setenv("COMPARE_TRACKERS", "yes")
	t.Setenv("TELEGRAM_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT", "chat")

	cfg, err := FromEnv(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "deepsort", cfg.Tracker)
	assert.Equal(t, 2500*time.Millisecond, cfg.AlertCooldown)
	assert.Equal(t, time.Minute, cfg.BufferWindow)
	assert.Equal(t, 1, cfg.ProcessEvery)
	assert.True(t, cfg.CompareEngines)
	assert.Equal(t, "tok", cfg.TelegramToken)
}

func TestFromEnvRejectsBadStride(t *testing.T) {
	t.Setenv("PROCESS_EVERY_N_FRAMES", "0")
	_, err := FromEnv(t.TempDir())
	assert.Error(t, err)
}

func TestFromEnvRejectsBadHeadFraction(t *testing.T) {
	t.Setenv("HEAD_CROP_FRACTION", "1.5")
	_, err := FromEnv(t.TempDir())
	assert.Error(t, err)
}

func TestFromEnvDataDirFallback(t *testing.T) {
	base := t.TempDir()
	t.Setenv("DATA_DIR", base)

	cfg, err := FromEnv("")
	require.NoError(t, err)
	assert.Equal(t, base, cfg.BaseDir)
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg, err := FromEnv(base)
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{"faces", "evidencias", "recordings", "reports", "config_history"} {
		info, err := os.Stat(filepath.Join(base, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}

func TestLoadCamerasCreatesEmptyInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.json")

	cams, err := LoadCameras(path)
	require.NoError(t, err)
	assert.Empty(t, cams.Flatten())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"buildings":[]}`, string(raw))
}

func TestLoadCamerasMixedSourceForms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
        "buildings": [{
            "name": "Edificio A",
            "rooms": [{
                "name": "Recepcion",
                "cameras": [
                    {"name": "entrada", "source": 0},
                    {"name": "pasillo", "source": "rtsp://10.0.0.5/stream", "tracker": "deepsort"}
                ]
            }]
        }]
    }`), 0o644))

	cams, err := LoadCameras(path)
	require.NoError(t, err)

	refs := cams.Flatten()
	require.Len(t, refs, 2)
	assert.Equal(t, "Edificio A", refs[0].Building)
	assert.Equal(t, "Recepcion", refs[0].Room)
	assert.Equal(t, "0", refs[0].Camera.Source.String())
	assert.Equal(t, "", refs[0].Camera.Tracker)
	assert.Equal(t, "rtsp://10.0.0.5/stream", refs[1].Camera.Source.String())
	assert.Equal(t, "deepsort", refs[1].Camera.Tracker)
}

func TestSaveCamerasSnapshotsHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cameras.json")
	history := filepath.Join(dir, "config_history")
	require.NoError(t, os.MkdirAll(history, 0o755))

	cams, err := LoadCameras(path)
	require.NoError(t, err)

	cams.Add("Edificio A", "Recepcion", Camera{Name: "entrada", Source: "0"})
	require.NoError(t, SaveCameras(path, history, cams))

	// second save snapshots the first version
	cams.Add("Edificio A", "Recepcion", Camera{Name: "pasillo", Source: "rtsp://10.0.0.5/s", Tracker: "deepsort"})
	require.NoError(t, SaveCameras(path, history, cams))

	// snapshot names carry second resolution, so rapid saves may share one
	snapshots, err := filepath.Glob(filepath.Join(history, "cameras_*.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, snapshots)

	reloaded, err := LoadCameras(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.Flatten(), 2)
}

func TestCamerasAddGroups(t *testing.T) {
	cams := &Cameras{}
	cams.Add("A", "r1", Camera{Name: "c1", Source: "0"})
	cams.Add("A", "r1", Camera{Name: "c2", Source: "1"})
	cams.Add("A", "r2", Camera{Name: "c3", Source: "2"})
	cams.Add("B", "r1", Camera{Name: "c4", Source: "3"})

	require.Len(t, cams.Buildings, 2)
	assert.Len(t, cams.Buildings[0].Rooms, 2)
	assert.Len(t, cams.Buildings[0].Rooms[0].Cameras, 2)
	assert.Len(t, cams.Flatten(), 4)
}
