// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование сумм, проверка идентификаторов.
package common

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PluralizeTickets возвращает правильную форму слова «билет» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "билет" (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → "билета" (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → "билетов" (0, 5-20, 25-30, 100, ...)
//
// Примеры:
//
//	PluralizeTickets(1)  → "билет"
//	PluralizeTickets(3)  → "билета"
//	PluralizeTickets(11) → "билетов"
func PluralizeTickets(n int64) string {
	return pluralize(n, "билет", "билета", "билетов")
}

// PluralizeParticipants возвращает форму слова «участник».
func PluralizeParticipants(n int64) string {
	return pluralize(n, "участник", "участника", "участников")
}

func pluralize(n int64, one, few, many string) string {
	// Берём абсолютное значение для отрицательных чисел
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// FormatTickets форматирует количество билетов: "1 234 билета".
func FormatTickets(n int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(n), PluralizeTickets(n))
}

// FormatCents форматирует сумму в центах как доллары: 123456 → "$1 234.56".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%s.%02d", sign, FormatNumber(cents/100), cents%100)
}

// FormatChance возвращает шанс на победу в процентах с двумя знаками.
// Если билетов в лоте нет — "0.00%".
func FormatChance(userTickets, totalTickets int64) string {
	if totalTickets <= 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(userTickets)/float64(totalTickets)*100)
}

// FormatProgress рисует полоску заполненности эскроу: "▓▓▓▓░░░░░░ 40%".
func FormatProgress(balance, target int64) string {
	const width = 10
	if target <= 0 {
		return strings.Repeat("░", width) + " 0%"
	}
	pct := balance * 100 / target
	if pct > 100 {
		pct = 100
	}
	filled := int(pct) * width / 100
	return strings.Repeat("▓", filled) + strings.Repeat("░", width-filled) + fmt.Sprintf(" %d%%", pct)
}

// ParseUUID проверяет аргумент команды и возвращает его в каноничном виде.
// При ошибке возвращает переданный sentinel, чтобы обработчик знал, что ответить.
func ParseUUID(raw string, sentinel error) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", sentinel
	}
	return id.String(), nil
}

// ShortID возвращает первые 8 символов идентификатора для компактного вывода.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" (UTC).
// Используется для отображения времени розыгрыша и дедлайнов.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("02.01.2006 15:04") + " UTC"
}
