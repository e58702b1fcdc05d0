package telegram

import "strings"

const messageLimit = 4096

// SplitMessage режет текст на части в пределах лимита Telegram.
// Режем по границам строк, чтобы блоки отчётов не рвались посередине.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len([]rune(trimmed)) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	var current []rune
	for _, line := range strings.Split(trimmed, "\n") {
		lineRunes := []rune(line)
		// Строка длиннее лимита режется жёстко.
		for len(lineRunes) > messageLimit {
			if len(current) > 0 {
				parts = appendPart(parts, current)
				current = nil
			}
			parts = appendPart(parts, lineRunes[:messageLimit])
			lineRunes = lineRunes[messageLimit:]
		}
		if len(current)+len(lineRunes)+1 > messageLimit {
			parts = appendPart(parts, current)
			current = nil
		}
		if len(current) > 0 {
			current = append(current, '\n')
		}
		current = append(current, lineRunes...)
	}
	parts = appendPart(parts, current)

	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}

func appendPart(parts []string, chunk []rune) []string {
	part := strings.Trim(string(chunk), "\n")
	if part == "" {
		return parts
	}
	return append(parts, part)
}
