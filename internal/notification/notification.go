// Package notification delivers operator alerts.
package notification

import (
	"context"
	"fmt"

	"copytrade/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Sender is the part of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramNotifier struct {
	api    Sender
	chatID int64
}

func NewTelegram(token string, chatID int64) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return NewTelegramWithSender(api, chatID), nil
}

func NewTelegramWithSender(api Sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{api: api, chatID: chatID}
}

func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	_, err := n.api.Send(msg)
	return err
}

// LogNotifier writes alerts to the log when no bot is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, text string) error {
	logger.WithComponent("notification").Warn(text)
	return nil
}

// New picks Telegram when a token is configured and falls back to the log.
func New(token string, chatID int64) Notifier {
	if token == "" || chatID == 0 {
		return LogNotifier{}
	}
	notifier, err := NewTelegram(token, chatID)
	if err != nil {
		logger.WithComponent("notification").WithError(err).Warn("telegram alerts disabled")
		return LogNotifier{}
	}
	return notifier
}
