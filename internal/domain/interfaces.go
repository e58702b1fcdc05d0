package domain

import (
	"context"
	"errors"
	"time"
)

// ErrMessageNotFound возвращается, когда сообщение отсутствует в чате или хранилище.
var ErrMessageNotFound = errors.New("сообщение не найдено")

// ErrMemberNotFound возвращается, когда участника нет в ростере.
var ErrMemberNotFound = errors.New("участник не найден")

// MessageRepo хранит сообщения отчётного чата за текущее окно.
type MessageRepo interface {
	SaveMessages(ctx context.Context, msgs []ChannelMessage) error
	ListWindow(ctx context.Context, chatID int64, from, to time.Time, limit int) ([]ChannelMessage, error)
}

// MemberDirectory — справочник участников чата и их ролей.
type MemberDirectory interface {
	ListMembers(ctx context.Context, chatID int64) ([]Member, error)
	GetMember(ctx context.Context, chatID, userID int64) (Member, error)
	UpsertMember(ctx context.Context, chatID int64, member Member) error
	SetRoles(ctx context.Context, chatID, userID int64, roles []string) error
}

// PublishedRepo хранит содержимое отправленных агрегатов.
// Bot API не умеет перечитывать сообщения, поэтому «fetch_message»
// коллаборатора реализуется поверх записанного при отправке содержимого.
type PublishedRepo interface {
	SavePublished(ctx context.Context, chatID, messageID int64, content string) error
	GetPublished(ctx context.Context, chatID, messageID int64) (string, error)
}

// ChannelGateway — внешний чат-коллаборатор: доставка и правка сообщений.
// Edit обязан возвращать ErrMessageNotFound, если сообщения больше нет.
type ChannelGateway interface {
	Send(ctx context.Context, chatID int64, text string) (int64, error)
	Edit(ctx context.Context, chatID, messageID int64, text string) error
}

// StateLoadOutcome различает пути загрузки состояния, чтобы тесты могли
// проверить, какой именно дефолт сработал.
type StateLoadOutcome int

const (
	// StateLoaded — запись прочитана из хранилища.
	StateLoaded StateLoadOutcome = iota
	// StateMissing — записи не было, вернулся дефолт.
	StateMissing
	// StateCorrupt — запись не разобрана, вернулся дефолт.
	StateCorrupt
)

// StateStore читает и пишет запись планировщика целиком.
// Save обязан синхронно доводить запись до диска до возврата.
type StateStore interface {
	Load() (SchedulerState, StateLoadOutcome, error)
	Save(state SchedulerState) error
}

// StepGuard — упреждающая отметка шага перед внешним побочным эффектом.
// Once подавляет повторную отправку при восстановлении после сбоя;
// Remember/Recall сохраняют результат отправки (идентификатор сообщения),
// чтобы подавленный повтор мог его перенять.
type StepGuard interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Remember(ctx context.Context, key, value string, ttl time.Duration) error
	Recall(ctx context.Context, key string) (string, bool, error)
}

// HistoryBackfiller дочитывает историю чата за окно, пропущенное гейтвеем.
type HistoryBackfiller interface {
	Backfill(ctx context.Context, chatID int64, since time.Time, limit int) ([]ChannelMessage, error)
}
