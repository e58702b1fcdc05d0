package mtproto

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"tg-standup-bot/internal/domain"
	"tg-standup-bot/internal/infra/metrics"
)

// Backfiller дочитывает историю отчётного чата через MTProto.
// Bot API не отдаёт историю, поэтому сообщения, пропущенные за время
// простоя гейтвея, добираются этим клиентом на старте планировщика.
type Backfiller struct {
	client *telegram.Client
	token  string
	log    zerolog.Logger
}

var _ domain.HistoryBackfiller = (*Backfiller)(nil)

// NewBackfiller создаёт MTProto клиент с файловой сессией.
func NewBackfiller(apiID int, apiHash, botToken, sessionFile string, log zerolog.Logger) *Backfiller {
	client := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionFile},
	})
	return &Backfiller{client: client, token: botToken, log: log}
}

// Backfill возвращает текстовые сообщения чата начиная с since, не больше limit.
func (b *Backfiller) Backfill(ctx context.Context, chatID int64, since time.Time, limit int) ([]domain.ChannelMessage, error) {
	var collected []domain.ChannelMessage
	err := b.client.Run(ctx, func(ctx context.Context) error {
		status, err := b.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("статус авторизации: %w", err)
		}
		if !status.Authorized {
			if _, err := b.client.Auth().Bot(ctx, b.token); err != nil {
				return fmt.Errorf("авторизация бота: %w", err)
			}
		}

		start := time.Now()
		history, err := b.client.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:  &tg.InputPeerChat{ChatID: chatID},
			Limit: limit,
		})
		metrics.ObserveNetworkRequest("mtproto", "messages_get_history", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			return fmt.Errorf("чтение истории: %w", err)
		}
		modified, ok := history.AsModified()
		if !ok {
			return nil
		}

		users := make(map[int64]*tg.User)
		for _, raw := range modified.GetUsers() {
			if user, ok := raw.(*tg.User); ok {
				users[user.ID] = user
			}
		}

		for _, raw := range modified.GetMessages() {
			msg, ok := raw.(*tg.Message)
			if !ok || msg.Message == "" {
				continue
			}
			sentAt := time.Unix(int64(msg.Date), 0).UTC()
			if sentAt.Before(since) {
				continue
			}
			record := domain.ChannelMessage{
				ID:     int64(msg.ID),
				ChatID: chatID,
				Text:   msg.Message,
				SentAt: sentAt,
			}
			if from, ok := msg.FromID.(*tg.PeerUser); ok {
				record.AuthorID = from.UserID
				if user, found := users[from.UserID]; found {
					record.AuthorName = userName(user)
				}
			}
			collected = append(collected, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("догрузка истории: %w", err)
	}
	metrics.BackfillMessagesTotal.Add(float64(len(collected)))
	b.log.Info().Int("messages", len(collected)).Int64("chat", chatID).Msg("история чата догружена")
	return collected, nil
}

func userName(user *tg.User) string {
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	if name != "" {
		return name
	}
	return user.Username
}
