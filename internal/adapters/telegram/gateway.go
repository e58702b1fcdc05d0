package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-standup-bot/internal/domain"
	"tg-standup-bot/internal/infra/metrics"
)

// Gateway отправляет и правит сообщения через Bot API.
type Gateway struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.ChannelGateway = (*Gateway)(nil)

// NewGateway создаёт шлюз отправки.
func NewGateway(bot *tgbotapi.BotAPI, log zerolog.Logger) *Gateway {
	return &Gateway{bot: bot, log: log}
}

// Send отправляет текст, при необходимости несколькими частями, и возвращает
// идентификатор последней части. Именно её потом правит планировщик.
func (g *Gateway) Send(ctx context.Context, chatID int64, text string) (int64, error) {
	parts := SplitMessage(text)
	if len(parts) == 0 {
		return 0, errors.New("пустое сообщение")
	}
	var lastID int64
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		start := time.Now()
		sent, err := g.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			return 0, fmt.Errorf("отправка сообщения: %w", err)
		}
		lastID = int64(sent.MessageID)
	}
	return lastID, nil
}

// Edit заменяет текст ранее отправленного сообщения. Если сводка переросла
// лимит, правится последняя часть.
func (g *Gateway) Edit(ctx context.Context, chatID, messageID int64, text string) error {
	parts := SplitMessage(text)
	if len(parts) == 0 {
		return errors.New("пустое сообщение")
	}
	edit := tgbotapi.NewEditMessageText(chatID, int(messageID), parts[len(parts)-1])
	edit.ParseMode = tgbotapi.ModeMarkdown
	start := time.Now()
	_, err := g.bot.Request(edit)
	metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(chatID, 10), start, err)
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return domain.ErrMessageNotFound
	case isNotModified(err):
		return nil
	default:
		return fmt.Errorf("правка сообщения: %w", err)
	}
}

func isNotFound(err error) bool {
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "message to edit not found") ||
		strings.Contains(text, "message not found")
}

func isNotModified(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
