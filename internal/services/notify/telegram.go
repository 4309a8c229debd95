package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"RateCast/internal/domain/models"
	"RateCast/internal/service/ratelimit"
	pkghttp "RateCast/pkg/http"
	"RateCast/pkg/logger"
)

// Telegram caps photo captions at 1024 characters and messages at 4096.
const (
	maxCaption = 1024
	maxMessage = 4096
)

var ErrNoChat = errors.New("notify: no destination chat")

type TelegramConfig struct {
	BaseURL  string
	Token    string
	ChatID   string
	Interval time.Duration // minimum spacing between calls to one chat
}

// Telegram posts artifacts through the Bot API: sendMessage for text, sendPhoto for charts.
type Telegram struct {
	cfg     TelegramConfig
	client  *pkghttp.Client
	limiter *ratelimit.Limiter
	l       *logger.Logger
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewTelegram(cfg TelegramConfig, client *pkghttp.Client, limiter *ratelimit.Limiter, l *logger.Logger) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 310 * time.Millisecond
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	return &Telegram{cfg: cfg, client: client, limiter: limiter, l: l}
}

func (t *Telegram) Notify(ctx context.Context, a models.Artifact) error {
	chat := a.Destination
	if chat == "" {
		chat = t.cfg.ChatID
	}
	if chat == "" {
		return ErrNoChat
	}
	if err := t.limiter.Wait(ctx, "telegram:"+chat, 1, 1/t.cfg.Interval.Seconds()); err != nil {
		return err
	}

	opts := &pkghttp.RequestOptions{Method: http.MethodPost}
	if len(a.Image) > 0 {
		opts.URL = t.endpoint("sendPhoto")
		opts.Body = &pkghttp.MultipartBody{
			Fields: map[string]string{"chat_id": chat, "caption": truncate(a.Caption, maxCaption)},
			Files:  []pkghttp.FilePart{{Field: "photo", Filename: filename(a), Data: a.Image}},
		}
	} else {
		opts.URL = t.endpoint("sendMessage")
		opts.Body = map[string]string{"chat_id": chat, "text": truncate(a.Caption, maxMessage)}
	}

	var resp telegramResponse
	if err := t.client.SendAndParse(ctx, opts, &resp); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram: %s", resp.Description)
	}
	t.l.Debug("telegram sent", logger.String("chat", chat), logger.Bool("photo", len(a.Image) > 0))
	return nil
}

func (t *Telegram) endpoint(method string) string {
	return strings.TrimRight(t.cfg.BaseURL, "/") + "/bot" + t.cfg.Token + "/" + method
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func filename(a models.Artifact) string {
	if a.Filename != "" {
		return a.Filename
	}
	return "chart.png"
}
