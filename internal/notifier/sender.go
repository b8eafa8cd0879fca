package notifier

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gunter/internal/collab"
	logx "gunter/pkg/logx"
	"gunter/pkg/tgui"

	tele "gopkg.in/telebot.v4"
)

// LogSender writes notifications to the log. It is the fallback channel when
// no messenger is configured.
type LogSender struct {
	log logx.Logger
}

func NewLogSender(log logx.Logger) *LogSender {
	return &LogSender{log: log.With(logx.String("comp", "notifier"), logx.String("channel", "log"))}
}

func (l *LogSender) Name() string { return "log" }

func (l *LogSender) Send(ctx context.Context, n collab.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.log.Info("notification",
		logx.String("id", n.ID),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
		logx.Any("data", n.Data),
	)
	return nil
}

// TelegramConfig addresses one chat (optionally a forum topic).
type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides the Bot API endpoint (tests, self-hosted API servers).
	APIURL string
}

// TelegramSender posts notifications as HTML messages with a bold title.
type TelegramSender struct {
	bot    *tele.Bot
	chat   tele.ChatID
	thread int
}

func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: 8 * time.Second},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b, chat: tele.ChatID(cfg.ChatID), thread: cfg.ThreadID}, nil
}

func (t *TelegramSender) Name() string { return "telegram" }

// Send honours ctx by abandoning the wait; telebot itself is bounded by the
// HTTP client timeout.
func (t *TelegramSender) Send(ctx context.Context, n collab.Notification) error {
	text := tgui.Message(n.Title, n.Body).String()
	opts := &tele.SendOptions{ThreadID: t.thread, ParseMode: tele.ModeHTML, DisableWebPagePreview: true}

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(t.chat, text, opts)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
