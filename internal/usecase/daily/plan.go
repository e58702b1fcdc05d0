package daily

import (
	"fmt"
	"time"

	"tg-standup-bot/internal/domain"
)

// step — одно действие тика планировщика.
type step int

const (
	stepReminder step = iota
	stepRoleTag
	stepFirstPublish
	stepUpdateAggregate
)

// Times — времена срабатывания разовых шагов в формате HH:MM.
type Times struct {
	Reminder     string
	RoleTag      string
	FirstPublish string
}

// schedule хранит те же времена в минутах от полуночи.
type schedule struct {
	reminder     int
	roleTag      int
	firstPublish int
}

func parseTimes(t Times) (schedule, error) {
	var out schedule
	for _, item := range []struct {
		raw  string
		dest *int
	}{
		{raw: t.Reminder, dest: &out.reminder},
		{raw: t.RoleTag, dest: &out.roleTag},
		{raw: t.FirstPublish, dest: &out.firstPublish},
	} {
		parsed, err := time.Parse("15:04", item.raw)
		if err != nil {
			return schedule{}, fmt.Errorf("время шага %q не разобрано: %w", item.raw, err)
		}
		*item.dest = parsed.Hour()*60 + parsed.Minute()
	}
	return out, nil
}

// planSteps — чистая функция решения тика: по текущему времени и состоянию
// дня возвращает действия в порядке выполнения. Разовые шаги взаимно
// исключены в пределах тика; обновление агрегата независимо и всегда идёт
// после разового шага, если их минуты совпали.
func planSteps(now time.Time, state domain.SchedulerState, sched schedule) []step {
	minuteOfDay := now.Hour()*60 + now.Minute()

	var steps []step
	switch {
	case minuteOfDay == sched.reminder && !state.ReminderFired:
		steps = append(steps, stepReminder)
	case minuteOfDay == sched.roleTag && !state.RoleTagFired:
		steps = append(steps, stepRoleTag)
	case minuteOfDay == sched.firstPublish && !state.FirstPublishFired:
		steps = append(steps, stepFirstPublish)
	}

	if (now.Minute() == 0 || now.Minute() == 30) && minuteOfDay >= sched.firstPublish {
		steps = append(steps, stepUpdateAggregate)
	}
	return steps
}
