package report

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"tg-standup-bot/internal/domain"
)

// dateLineGate — синтаксический фильтр собирателя: где-то в тексте должна
// стоять отдельная строка с датой. Сообщения без неё не считаются отчётами
// и не попадают в множество отчитавшихся.
var dateLineGate = regexp.MustCompile(`(?m)^\s*\d{1,2}\s*[./\-]\s*\d{1,2}\s*$`)

// Collector собирает отчёты из окна сообщений отчётного чата.
type Collector struct {
	messages  domain.MessageRepo
	directory domain.MemberDirectory
	order     domain.RoleOrder
	limit     int
}

// NewCollector создаёт собиратель. limit ограничивает выборку сообщений.
func NewCollector(messages domain.MessageRepo, directory domain.MemberDirectory, order domain.RoleOrder, limit int) *Collector {
	return &Collector{messages: messages, directory: directory, order: order, limit: limit}
}

// Collect выбирает сообщения окна [from, to), отфильтровывает ботов,
// участников без допущенной роли и не-отчёты, нормализует остальное и
// возвращает отсортированные записи плюс множество отчитавшихся.
// Порядок выборки значения не имеет: итоговая сортировка детерминирована.
func (c *Collector) Collect(ctx context.Context, chatID int64, from, to time.Time) ([]domain.RankedEntry, map[int64]struct{}, error) {
	msgs, err := c.messages.ListWindow(ctx, chatID, from, to, c.limit)
	if err != nil {
		return nil, nil, fmt.Errorf("выборка сообщений: %w", err)
	}

	entries := make([]domain.RankedEntry, 0, len(msgs))
	reported := make(map[int64]struct{})
	for _, msg := range msgs {
		member, err := c.directory.GetMember(ctx, chatID, msg.AuthorID)
		if err != nil {
			if errors.Is(err, domain.ErrMemberNotFound) {
				continue
			}
			return nil, nil, fmt.Errorf("участник %d: %w", msg.AuthorID, err)
		}
		if member.IsBot {
			continue
		}
		rank, eligible := c.order.Resolve(member.Roles)
		if !eligible {
			continue
		}
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		if !dateLineGate.MatchString(text) {
			continue
		}
		norm, ok := Normalize(displayNameFor(member, msg), text, to)
		if !ok {
			continue
		}
		entries = append(entries, domain.RankedEntry{Rank: rank, MessageID: msg.ID, Text: norm.Render()})
		reported[msg.AuthorID] = struct{}{}
	}

	SortEntries(entries)
	return entries, reported, nil
}

// SortEntries упорядочивает записи: по возрастанию приоритета роли,
// при равенстве — по порядку прибытия. Сортировка стабильна и идемпотентна.
func SortEntries(entries []domain.RankedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Rank != entries[j].Rank {
			return entries[i].Rank < entries[j].Rank
		}
		return entries[i].MessageID < entries[j].MessageID
	})
}

func displayNameFor(member domain.Member, msg domain.ChannelMessage) string {
	if member.DisplayName != "" {
		return member.DisplayName
	}
	return msg.AuthorName
}
