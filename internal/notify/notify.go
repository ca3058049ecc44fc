// Package notify delivers short text messages to users over an external channel.
package notify

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/apperr"
	log "github.com/sirupsen/logrus"
)

type Message struct {
	// Token is the recipient address on the channel, a chat id for Telegram.
	Token string
	Title string
	Body  string
}

func (m Message) Text() string {
	if m.Title == "" {
		return m.Body
	}
	return m.Title + "\n\n" + m.Body
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Logger log.FieldLogger
}

func NewLogSender() *LogSender {
	return &LogSender{Logger: log.StandardLogger()}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.WithFields(log.Fields{
		"token": msg.Token,
		"title": msg.Title,
	}).Info(msg.Body)
	return nil
}

type botClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramSender struct {
	bot botClient
}

func NewTelegramSender(token string) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "connect telegram bot")
	}
	log.WithField("bot", bot.Self.UserName).Info("Telegram sender ready")
	return &TelegramSender{bot: bot}, nil
}

func (s *TelegramSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.Token), 10, 64)
	if err != nil {
		return apperr.Validation("notification token %q is not a telegram chat id", msg.Token)
	}

	if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, msg.Text())); err != nil {
		return errors.Wrapf(apperr.Dependency("telegram delivery failed"), "chat %d: %v", chatID, err)
	}
	return nil
}

// New returns a Telegram sender when a bot token is configured and a LogSender otherwise.
func New(telegramToken string) (Sender, error) {
	if telegramToken == "" {
		return NewLogSender(), nil
	}
	return NewTelegramSender(telegramToken)
}
