package domain

import (
	"fmt"
	"strings"
	"time"
)

// WorkdayCalendar определяет рабочие дни: Пн-Пт всегда, воскресенье никогда,
// суббота — через неделю относительно якорной рабочей субботы.
type WorkdayCalendar struct {
	anchor    time.Time
	loc       *time.Location
	defaulted bool
	reason    string
}

// NewWorkdayCalendar разбирает якорную дату в формате YYYY-MM-DD.
// Некорректный якорь не считается фатальным: календарь переходит в режим
// fail-open (каждая суббота рабочая), а причина сохраняется для диагностики.
func NewWorkdayCalendar(rawAnchor string, loc *time.Location) WorkdayCalendar {
	if loc == nil {
		loc = time.Local
	}
	trimmed := strings.TrimSpace(rawAnchor)
	anchor, err := time.ParseInLocation("2006-01-02", trimmed, loc)
	if err != nil {
		return WorkdayCalendar{
			loc:       loc,
			defaulted: true,
			reason:    fmt.Sprintf("якорная суббота %q не разобрана: %v", rawAnchor, err),
		}
	}
	return WorkdayCalendar{anchor: anchor, loc: loc}
}

// AnchorDefaulted сообщает, применён ли fail-open вместо разобранного якоря.
func (c WorkdayCalendar) AnchorDefaulted() (bool, string) {
	return c.defaulted, c.reason
}

// IsWorkDay отвечает, рабочий ли это календарный день.
func (c WorkdayCalendar) IsWorkDay(date time.Time) bool {
	switch date.Weekday() {
	case time.Sunday:
		return false
	case time.Saturday:
		if c.defaulted {
			return true
		}
		days := daysBetween(c.anchor, date)
		return floorMod(floorDiv(days, 7), 2) == 0
	default:
		return true
	}
}

// daysBetween считает разницу в календарных днях, игнорируя время суток.
func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 12, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 12, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return ((a % b) + b) % b
}
