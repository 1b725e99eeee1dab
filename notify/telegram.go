package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// telegramService posts alerts through the Telegram bot API.
type telegramService struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

func newTelegramService(token, chatID string) *telegramService {
	return &telegramService{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *telegramService) NotifyUnknownPerson(ctx context.Context, camera, evidencePath string) error {
	text := fmt.Sprintf("Alerta: persona desconocida en cámara %s", camera)
	if evidencePath != "" {
		if err := s.sendPhoto(ctx, evidencePath, text); err == nil {
			return nil
		}
		// Photo delivery is best effort, fall through to a plain message.
	}
	return s.sendMessage(ctx, text)
}

func (s *telegramService) NotifySummary(ctx context.Context, summary string) error {
	return s.sendMessage(ctx, summary)
}

func (s *telegramService) Test(ctx context.Context) error {
	return s.sendMessage(ctx, "Centinela: prueba de notificación")
}

func (s *telegramService) sendMessage(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", s.chatID)
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return s.do(req)
}

func (s *telegramService) sendPhoto(ctx context.Context, photoPath, caption string) error {
	photo, err := os.Open(photoPath)
	if err != nil {
		return fmt.Errorf("opening evidence photo: %w", err)
	}
	defer photo.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", s.chatID); err != nil {
		return fmt.Errorf("writing form field: %w", err)
	}
	if err := writer.WriteField("caption", caption); err != nil {
		return fmt.Errorf("writing form field: %w", err)
	}
	part, err := writer.CreateFormFile("photo", filepath.Base(photoPath))
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, photo); err != nil {
		return fmt.Errorf("copying photo: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendPhoto", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return s.do(req)
}

func (s *telegramService) do(req *http.Request) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	return nil
}
