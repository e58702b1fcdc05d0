package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"tg-standup-bot/internal/domain"
)

// datePattern распознаёт строку, состоящую только из даты: день и месяц
// по 1-2 цифры, разделитель — точка, слеш или дефис.
var datePattern = regexp.MustCompile(`^\s*(\d{1,2})\s*[./\-]\s*(\d{1,2})\s*$`)

// bulletPrefix — маркер пункта в начале строки.
var bulletPrefix = regexp.MustCompile(`^[-*+•]\s*`)

// Normalize приводит свободный текст отчёта к каноническому виду.
// Автор может указать своё имя первой строкой, а может и нет; дата может
// стоять отдельной строкой, а может отсутствовать — результат всегда один:
// имя, токен даты DD/MM и пункты с заглавной буквы. Пустой после очистки
// отчёт отбрасывается целиком. now задаёт дату-подстановку, когда явной
// даты в тексте не нашлось.
func Normalize(displayName, raw string, now time.Time) (domain.NormalizedReport, bool) {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return domain.NormalizedReport{}, false
	}

	name := displayName
	start := 0
	if !datePattern.MatchString(lines[0]) {
		name = titleCase(lines[0])
		start = 1
	}

	var formatted []string
	hasDate := false
	for _, line := range lines[start:] {
		if m := datePattern.FindStringSubmatch(line); m != nil {
			day, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			formatted = append(formatted, fmt.Sprintf("%02d/%02d", day, month))
			hasDate = true
			continue
		}
		clean := bulletPrefix.ReplaceAllString(line, "")
		if strings.EqualFold(clean, name) {
			continue
		}
		if clean == "" {
			continue
		}
		formatted = append(formatted, "- "+upperFirst(clean))
	}

	if len(formatted) == 0 {
		return domain.NormalizedReport{}, false
	}
	if !hasDate {
		formatted = append([]string{now.Format("02/01")}, formatted...)
	}

	return domain.NormalizedReport{Name: name, Lines: formatted, HasDate: hasDate}, true
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		r, size := utf8.DecodeRuneInString(word)
		if r == utf8.RuneError {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
	}
	return strings.Join(words, " ")
}
