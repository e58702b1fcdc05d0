package domain

import (
	"strings"
	"time"
)

// Member описывает участника отчётного чата из ростера.
type Member struct {
	ID          int64
	Username    string
	DisplayName string
	IsBot       bool
	Roles       []string
}

// Mention возвращает упоминание участника для сообщения в чате.
func (m Member) Mention() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	return m.DisplayName
}

// ChannelMessage представляет одно сообщение отчётного чата.
// ID — идентификатор сообщения Telegram, монотонно растущий внутри чата.
type ChannelMessage struct {
	ID         int64
	ChatID     int64
	AuthorID   int64
	AuthorName string
	Text       string
	SentAt     time.Time
}

// NormalizedReport — канонический вид одного дневного отчёта.
// Строки уже отформатированы: либо токен даты DD/MM, либо пункт "- ...".
type NormalizedReport struct {
	Name    string
	Lines   []string
	HasDate bool
}

// Render собирает текст отчёта: имя на отдельной строке, затем содержимое.
func (r NormalizedReport) Render() string {
	return "**" + r.Name + "**\n" + strings.Join(r.Lines, "\n")
}

// RankedEntry — отчёт с приоритетом роли и порядком прибытия.
// Полный порядок: по возрастанию Rank, при равенстве — по возрастанию MessageID.
type RankedEntry struct {
	Rank      int
	MessageID int64
	Text      string
}
