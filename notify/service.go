// Package notify delivers alerts about unidentified people to the
// configured channels.
package notify

import (
	"context"
)

// Service is the alert surface used by the camera pipelines.
type Service interface {
	// NotifyUnknownPerson reports an unidentified person on a camera,
	// attaching the evidence snapshot when available.
	NotifyUnknownPerson(ctx context.Context, camera, evidencePath string) error
	// NotifySummary delivers a periodic activity summary.
	NotifySummary(ctx context.Context, summary string) error
	// Test sends a connectivity check message.
	Test(ctx context.Context) error
}

// NewService builds a Telegram-backed service when a token and chat are
// configured, otherwise a noop implementation.
func NewService(telegramToken, telegramChat string) Service {
	if telegramToken == "" || telegramChat == "" {
		return noopService{}
	}
	return newTelegramService(telegramToken, telegramChat)
}

type noopService struct{}

func (noopService) NotifyUnknownPerson(context.Context, string, string) error { return nil }
func (noopService) NotifySummary(context.Context, string) error               { return nil }
func (noopService) Test(context.Context) error                                { return nil }
