// Package daily — ежедневный бонус за вход и серия дней подряд.
// Окно скользящее: следующий бонус через 24 часа после предыдущего,
// а не после полуночи.
package daily

import (
	"fmt"
	"time"

	"serotonyl.ru/hacker-bot/internal/common"
)

const (
	// ClaimInterval — минимальный интервал между бонусами
	ClaimInterval = 24 * time.Hour
	// StreakGap — после такого перерыва серия начинается заново
	StreakGap = 48 * time.Hour
)

// State — то, что нужно для решения: серия и время прошлого бонуса.
type State struct {
	Streak    int
	LastLogin *time.Time
}

// Result — итог успешного получения бонуса.
type Result struct {
	Draw        int64
	StreakBonus int64
	Streak      int // серия после начисления, 0 после седьмого дня
	Balance     int64
	ClaimedAt   time.Time
}

// Amount — сколько начислено.
func (r *Result) Amount() int64 { return r.Draw + r.StreakBonus }

// NotYetError — бонус уже получен, следующий через RetryAfter.
// errors.Is(err, common.ErrDailyAlreadyClaimed) == true.
type NotYetError struct {
	RetryAfter time.Duration
}

func (e *NotYetError) Error() string {
	return fmt.Sprintf("ежедневный бонус уже получен, следующий через %s", e.RetryAfter)
}

func (e *NotYetError) Is(target error) bool {
	return target == common.ErrDailyAlreadyClaimed
}

// Evaluate решает, можно ли получить бонус в момент now, и возвращает
// серию, от которой считать. Перерыв больше StreakGap обнуляет серию.
func Evaluate(st State, now time.Time) (int, error) {
	if st.LastLogin == nil {
		return 0, nil
	}
	elapsed := now.Sub(*st.LastLogin)
	if elapsed < ClaimInterval {
		return 0, &NotYetError{RetryAfter: ClaimInterval - elapsed}
	}
	if elapsed > StreakGap {
		return 0, nil
	}
	return st.Streak, nil
}
