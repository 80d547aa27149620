// Package common — pluralize.go содержит вспомогательные функции
// форматирования чисел для сообщений бота.
package common

import "fmt"

// FormatTicketsDelta создаёт строку вида "+100 билетов" или "-5 билетов".
// Знак «+» или «-» добавляется автоматически.
//
// Примеры:
//
//	FormatTicketsDelta(100) → "+100 билетов"
//	FormatTicketsDelta(-5)  → "-5 билетов"
//	FormatTicketsDelta(1)   → "+1 билет"
func FormatTicketsDelta(amount int64) string {
	if amount >= 0 {
		return fmt.Sprintf("+%s %s", FormatNumber(amount), PluralizeTickets(amount))
	}
	return fmt.Sprintf("-%s %s", FormatNumber(-amount), PluralizeTickets(amount))
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	// Рекурсивно добавляем разделители
	rest := n / 1000
	last := n % 1000
	return fmt.Sprintf("%s %03d", FormatNumber(rest), last)
}
