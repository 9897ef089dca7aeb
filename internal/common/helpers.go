// Package common содержит общие утилиты, используемые во всём проекте:
// форматирование кредитов и интервалов, работа с часовым поясом.
package common

import (
	"fmt"
	"strconv"
	"time"
)

// PluralizeCredits возвращает «credit» или «credits» для числа n.
func PluralizeCredits(n int64) string {
	if n == 1 || n == -1 {
		return "credit"
	}
	return "credits"
}

// FormatCredits форматирует сумму: FormatCredits(150) → "150 credits".
func FormatCredits(n int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(n), PluralizeCredits(n))
}

// FormatCreditsDelta форматирует знаковую проводку: "+10 credits", "-50 credits".
func FormatCreditsDelta(n int64) string {
	if n >= 0 {
		return "+" + FormatCredits(n)
	}
	return FormatCredits(n)
}

// FormatWait превращает интервал до повтора в «3h 12m» / «45s».
// Значения меньше секунды округляются вверх до 1s.
func FormatWait(d time.Duration) string {
	if d < time.Second {
		return "1s"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	s := int((d % time.Minute) / time.Second)

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// LoadLocation загружает часовой пояс, при ошибке падает обратно на UTC+3.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// FormatDateTime форматирует время как "02.01.2006 15:04" в указанном поясе.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

// ParseUserID разбирает положительный числовой Telegram ID.
func ParseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
