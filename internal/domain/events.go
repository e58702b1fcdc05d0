package domain

import (
	"context"
	"time"
)

// StepEventKind описывает тип события планировщика.
type StepEventKind string

const (
	// StepEventReminder — отправлено утреннее напоминание.
	StepEventReminder StepEventKind = "reminder"
	// StepEventRoleTag — отмечены участники без отчёта.
	StepEventRoleTag StepEventKind = "role_tag"
	// StepEventFirstPublish — впервые опубликован агрегат дня.
	StepEventFirstPublish StepEventKind = "first_publish"
	// StepEventAggregateUpdated — агрегат дня отредактирован или переиздан.
	StepEventAggregateUpdated StepEventKind = "aggregate_updated"
)

// StepEvent — аудиторское событие о сработавшем шаге.
type StepEvent struct {
	ID         string        `json:"event_id"`
	Kind       StepEventKind `json:"kind"`
	Date       string        `json:"date"`
	MessageID  int64         `json:"message_id,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// EventPublisher публикует события шагов для внешних потребителей.
type EventPublisher interface {
	Publish(ctx context.Context, event StepEvent) error
}
