// Package config loads the runtime configuration from the environment and
// the camera inventory from cameras.json.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the runtime configuration. Every knob has an environment
// variable and a default that works out of the box.
type Config struct {
	// BaseDir anchors the data directories and default file paths.
	BaseDir string

	DBPath      string
	CamerasPath string

	FacesDir         string
	EvidenceDir      string
	RecordingsDir    string
	ReportsDir       string
	ConfigHistoryDir string

	// Tracker is the default tracking engine, overridable per camera.
	Tracker string
	// YOLOWeights and YOLONames configure the person detector.
	YOLOWeights string
	YOLOConfig  string
	YOLONames   string
	// FaceModel and FaceCascade configure the face embedder; both empty
	// disables face recognition.
	FaceModel   string
	FaceCascade string

	AlertCooldown time.Duration
	BufferWindow  time.Duration
	ProcessEvery  int
	// HeadFraction is the share of a track box, from the top, cropped
	// for face matching.
	HeadFraction   float64
	UploadMethod   string
	TelegramToken  string
	TelegramChat   string
	TTSCommand     string
	CompareEngines bool

	HTTPAddr string
}

// FromEnv builds the configuration from environment variables, anchored
// at baseDir (the working directory when empty).
func FromEnv(baseDir string) (*Config, error) {
	if baseDir == "" {
		baseDir = envString("DATA_DIR", "")
	}
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		baseDir = wd
	}

	cfg := &Config{
		BaseDir:          baseDir,
		DBPath:           filepath.Join(baseDir, "people.db"),
		CamerasPath:      filepath.Join(baseDir, "cameras.json"),
		FacesDir:         filepath.Join(baseDir, "faces"),
		EvidenceDir:      filepath.Join(baseDir, "evidencias"),
		RecordingsDir:    filepath.Join(baseDir, "recordings"),
		ReportsDir:       filepath.Join(baseDir, "reports"),
		ConfigHistoryDir: filepath.Join(baseDir, "config_history"),

		Tracker:     strings.ToLower(envString("TRACKER", "bytetrack")),
		YOLOWeights: envString("YOLO_WEIGHTS", "yolov5s.onnx"),
		YOLOConfig:  envString("YOLO_CONFIG", ""),
		YOLONames:   envString("YOLO_NAMES", "coco.names"),
		FaceModel:   envString("FACE_MODEL", ""),
		FaceCascade: envString("FACE_CASCADE", ""),

		AlertCooldown:  time.Duration(envFloat("ALERT_COOLDOWN", 8) * float64(time.Second)),
		BufferWindow:   time.Duration(envInt("BUFFER_SECONDS", 30)) * time.Second,
		ProcessEvery:   envInt("PROCESS_EVERY_N_FRAMES", 3),
		HeadFraction:   envFloat("HEAD_CROP_FRACTION", 1.0/3.0),
		UploadMethod:   envString("UPLOAD_METHOD", ""),
		TelegramToken:  envString("TELEGRAM_TOKEN", ""),
		TelegramChat:   envString("TELEGRAM_CHAT", ""),
		TTSCommand:     envString("TTS_COMMAND", ""),
		CompareEngines: envBool("COMPARE_TRACKERS", false),

		HTTPAddr: envString("API_ADDR", ":5000"),
	}

	if cfg.ProcessEvery < 1 {
		return nil, fmt.Errorf("PROCESS_EVERY_N_FRAMES must be at least 1, got %d", cfg.ProcessEvery)
	}
	if cfg.AlertCooldown < 0 {
		return nil, fmt.Errorf("ALERT_COOLDOWN must not be negative")
	}
	if cfg.HeadFraction <= 0 || cfg.HeadFraction > 1 {
		return nil, fmt.Errorf("HEAD_CROP_FRACTION must be in (0,1], got %g", cfg.HeadFraction)
	}
	return cfg, nil
}

// EnsureDirectories creates the data directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.FacesDir, c.EvidenceDir, c.RecordingsDir, c.ReportsDir, c.ConfigHistoryDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// CompareCSVPath is the engine comparison log location.
func (c *Config) CompareCSVPath() string {
	return filepath.Join(c.ReportsDir, "compare_trackers.csv")
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}
