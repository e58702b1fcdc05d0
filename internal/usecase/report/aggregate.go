package report

import (
	"fmt"
	"strings"
	"time"

	"tg-standup-bot/internal/domain"
)

const noReportsPlaceholder = "(Пока нет ни одного отчёта)"

// BuildAggregate формирует текст агрегата дня: заголовок с датой и отчёты
// в итоговом порядке, либо заглушку, если отчётов ещё нет. Для одинакового
// входа текст всегда одинаков — на этом держится проверка «изменилось ли».
func BuildAggregate(date time.Time, entries []domain.RankedEntry) string {
	header := fmt.Sprintf("__**Daily Report %s:**__\n\n", date.Format("02/01/2006"))
	if len(entries) == 0 {
		return header + noReportsPlaceholder
	}
	texts := make([]string, 0, len(entries))
	for _, entry := range entries {
		texts = append(texts, entry.Text)
	}
	return header + strings.Join(texts, "\n\n")
}
