package domain

// SchedulerState — единственная персистентная запись планировщика:
// какие шаги текущего дня уже отработали и какой агрегат опубликован.
// Запись с чужой датой устарела и заменяется свежей до любой логики шагов.
type SchedulerState struct {
	Date               string `json:"date"`
	ReminderFired      bool   `json:"reminder_fired"`
	RoleTagFired       bool   `json:"role_tag_fired"`
	FirstPublishFired  bool   `json:"first_publish_fired"`
	PublishedMessageID int64  `json:"published_message_id,omitempty"`
}

// NewSchedulerState создаёт свежую запись дня со сброшенными флагами.
func NewSchedulerState(date string) SchedulerState {
	return SchedulerState{Date: date}
}

// IsStale отвечает, принадлежит ли запись другому дню.
func (s SchedulerState) IsStale(today string) bool {
	return s.Date != today
}
