// Package quota ограничивает частоту команд: фиксированное окно на пару
// (аккаунт, команда). Окно начинается с первого использования и длится
// period; «суточный» лимит — это 24 часа от первого вызова, а не до полуночи.
package quota

import (
	"fmt"
	"strconv"
	"time"

	"serotonyl.ru/hacker-bot/internal/common"
)

// Key — ключ окна.
type Key struct {
	AccountID int64
	Command   string
}

func (k Key) String() string {
	return strconv.FormatInt(k.AccountID, 10) + ":" + k.Command
}

// Window — состояние окна: начало и число засчитанных вызовов.
// Нулевое значение — окна ещё нет.
type Window struct {
	Start time.Time `db:"window_start"`
	Count int       `db:"count"`
}

// Decision — результат CheckAndRecord.
type Decision struct {
	Allowed     bool
	Count       int           // вызовов в окне после этого решения
	Limit       int
	WindowStart time.Time     // нужен для Release
	RetryAfter  time.Duration // > 0 только при отказе
}

// Advance засчитывает одну попытку в момент now.
//
//   - окна нет или оно истекло (now - start >= period) — новое окно, count = 1;
//   - count < limit — count++;
//   - иначе отказ, retry_after = start + period - now.
func (w Window) Advance(now time.Time, limit int, period time.Duration) (Window, Decision) {
	if w.Start.IsZero() || now.Sub(w.Start) >= period {
		next := Window{Start: now, Count: 1}
		return next, Decision{Allowed: true, Count: 1, Limit: limit, WindowStart: now}
	}
	if w.Count < limit {
		next := Window{Start: w.Start, Count: w.Count + 1}
		return next, Decision{Allowed: true, Count: next.Count, Limit: limit, WindowStart: w.Start}
	}
	return w, Decision{
		Allowed:     false,
		Count:       w.Count,
		Limit:       limit,
		WindowStart: w.Start,
		RetryAfter:  w.Start.Add(period).Sub(now),
	}
}

// Status — сколько вызовов осталось в текущем окне.
type Status struct {
	Command string
	Used    int
	Limit   int
	ResetIn time.Duration // 0, если окно не открыто или истекло
}

// Remaining — оставшиеся вызовы.
func (s Status) Remaining() int {
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// StatusAt вычисляет статус окна на момент now, ничего не засчитывая.
func (w Window) StatusAt(now time.Time, command string, limit int, period time.Duration) Status {
	if w.Start.IsZero() || now.Sub(w.Start) >= period {
		return Status{Command: command, Limit: limit}
	}
	return Status{Command: command, Used: w.Count, Limit: limit, ResetIn: w.Start.Add(period).Sub(now)}
}

// ExceededError — отказ по квоте. errors.Is(err, common.ErrQuotaExceeded) == true.
type ExceededError struct {
	Command    string
	Limit      int
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("лимит команды %s (%d) исчерпан, повтор через %s", e.Command, e.Limit, e.RetryAfter)
}

func (e *ExceededError) Is(target error) bool {
	return target == common.ErrQuotaExceeded
}
