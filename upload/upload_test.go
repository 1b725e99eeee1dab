package upload

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSelectsUploader(t *testing.T) {
	log := slog.Default()
	assert.IsType(t, noopUploader{}, New("", log))
	assert.IsType(t, noopUploader{}, New("  ", log))
	assert.IsType(t, &execUploader{}, New("rclone copyto", log))
}

func TestNoopUploaderAlwaysSucceeds(t *testing.T) {
	assert.NoError(t, noopUploader{}.Upload(context.Background(), "/tmp/evidence.jpg"))
}

func TestExecUploader(t *testing.T) {
	log := slog.Default()

	assert.NoError(t, New("true", log).Upload(context.Background(), "/tmp/evidence.jpg"))

	err := New("false", log).Upload(context.Background(), "/tmp/evidence.jpg")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "/tmp/evidence.jpg")
}
