package ui

import (
	"fmt"
	"io"
)

// FormatStatus возвращает иконку, цвет и текст для статуса вакансии
func FormatStatus(status string) (icon, color, text string) {
	switch status {
	case "applied":
		return IconCheckmark, ColorGreen, "отклик отправлен"
	case "failed":
		return IconCross, ColorRed, "ошибка"
	case "manual_required":
		return IconHand, ColorPurple, "нужен человек"
	case "in_progress":
		return IconPlay, ColorCyan, "в работе"
	case "paused":
		return IconPause, ColorGray, "на паузе"
	case "pending":
		return IconClock, ColorYellow, "ожидает"
	default:
		return IconClock, ColorYellow, status
	}
}

// Truncate обрезает строку до n рун с многоточием.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// ClearScreen очищает терминал
func ClearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[H\033[2J")
}
