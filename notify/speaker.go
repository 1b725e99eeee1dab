package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Speaker voices alerts on the local machine.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// NewSpeaker wraps an external text-to-speech command such as
// "espeak-ng" or "say". An empty command disables speech.
func NewSpeaker(command string) Speaker {
	command = strings.TrimSpace(command)
	if command == "" {
		return noopSpeaker{}
	}
	parts := strings.Fields(command)
	return &execSpeaker{name: parts[0], args: parts[1:]}
}

type noopSpeaker struct{}

func (noopSpeaker) Say(context.Context, string) error { return nil }

type execSpeaker struct {
	name string
	args []string
}

func (s *execSpeaker) Say(ctx context.Context, text string) error {
	args := append(append([]string{}, s.args...), text)
	cmd := exec.CommandContext(ctx, s.name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running %s: %w: %s", s.name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
