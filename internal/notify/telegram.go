package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"camview/internal/apperr"
)

const (
	serviceName        = "telegram"
	defaultTelegramURL = "https://api.telegram.org"
	maxResponseBytes   = 64 * 1024
)

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Telegram posts media to a chat through the Bot API.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

type TelegramOption func(*Telegram)

func WithBaseURL(u string) TelegramOption {
	return func(t *Telegram) { t.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) { t.client = c }
}

func NewTelegram(token, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: defaultTelegramURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Telegram) NotifyPhoto(ctx context.Context, photo []byte, caption string) error {
	return t.send(ctx, "sendPhoto", "photo", "frame.jpg", photo, caption)
}

func (t *Telegram) NotifyVideo(ctx context.Context, video []byte, caption string) error {
	return t.send(ctx, "sendVideo", "video", "clip.mp4", video, caption)
}

func (t *Telegram) send(ctx context.Context, method, field, filename string, media []byte, caption string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", t.chatID); err != nil {
		return err
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(media); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		// the URL embeds the bot token
		return apperr.Upstream(serviceName, fmt.Errorf("%s: request failed", method))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperr.Upstream(serviceName, fmt.Errorf("%s: read response: %w", method, err))
	}

	var out telegramResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return apperr.Upstream(serviceName, fmt.Errorf("%s: status %d", method, resp.StatusCode))
	}
	if !out.OK {
		desc := out.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return apperr.Upstream(serviceName, fmt.Errorf("%s: %w", method, errors.New(desc)))
	}
	return nil
}
