// Package upload copies evidence snapshots to off-site storage.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Uploader ships an evidence file to remote storage.
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// New builds an uploader from the configured method. The method is an
// external command, for example "rclone copyto" or "aws s3 cp"; the
// evidence path is appended as the final argument. An empty method
// disables uploads.
func New(method string, log *slog.Logger) Uploader {
	method = strings.TrimSpace(method)
	if method == "" {
		return noopUploader{}
	}
	parts := strings.Fields(method)
	return &execUploader{name: parts[0], args: parts[1:], log: log}
}

type noopUploader struct{}

func (noopUploader) Upload(context.Context, string) error { return nil }

type execUploader struct {
	name string
	args []string
	log  *slog.Logger
}

func (u *execUploader) Upload(ctx context.Context, path string) error {
	args := append(append([]string{}, u.args...), path)
	cmd := exec.CommandContext(ctx, u.name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("uploading %s with %s: %w: %s", path, u.name, err, strings.TrimSpace(string(out)))
	}
	u.log.Debug("evidence uploaded", "path", path, "method", u.name)
	return nil
}
