// Package ledger — единственный источник истины о балансе кредитов.
// Каждое изменение баланса записывается проводкой в ledger_entries
// в той же транзакции, что и новое значение accounts.balance, поэтому
// баланс всегда равен сумме проводок аккаунта.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Reason — причина проводки.
type Reason string

const (
	ReasonDailyBonus      Reason = "daily_bonus"
	ReasonReferral        Reason = "referral"
	ReasonQuizReward      Reason = "quiz_reward"
	ReasonExploitPurchase Reason = "exploit_purchase"
	ReasonSpamBlast       Reason = "spam_blast"
	ReasonCryptoHack      Reason = "crypto_hack"
	ReasonPremiumPurchase Reason = "premium_purchase"
	ReasonFollowerBoost   Reason = "follower_boost"
	ReasonAdminAdjust     Reason = "admin_adjust"
)

var validReasons = map[Reason]string{
	ReasonDailyBonus:      "Daily login bonus",
	ReasonReferral:        "Referral bonus",
	ReasonQuizReward:      "Quiz reward",
	ReasonExploitPurchase: "Exploit script",
	ReasonSpamBlast:       "Referral spam blast",
	ReasonCryptoHack:      "Crypto hack loot",
	ReasonPremiumPurchase: "Hacker Pass bonus",
	ReasonFollowerBoost:   "Follower boost",
	ReasonAdminAdjust:     "Admin adjustment",
}

// Valid сообщает, известна ли причина.
func (r Reason) Valid() bool {
	_, ok := validReasons[r]
	return ok
}

// Title — человекочитаемое название для истории.
func (r Reason) Title() string {
	if t, ok := validReasons[r]; ok {
		return t
	}
	return string(r)
}

// Entry — одна проводка. Amount знаковый: >0 начисление, <0 списание.
type Entry struct {
	ID           uuid.UUID `db:"id"`
	AccountID    int64     `db:"account_id"`
	Amount       int64     `db:"amount"`
	Reason       Reason    `db:"reason"`
	Ref          string    `db:"ref"`           // свободная ссылка: id платежа, команда, заметка админа
	BalanceAfter int64     `db:"balance_after"` // баланс сразу после проводки
	CreatedAt    time.Time `db:"created_at"`
}

// Holder — строка таблицы лидеров.
type Holder struct {
	UserID   int64  `db:"user_id"`
	Username string `db:"username"`
	Balance  int64  `db:"balance"`
}

// Discrepancy — аккаунт, у которого баланс не сходится с суммой проводок
// или ушёл в минус.
type Discrepancy struct {
	AccountID  int64 `db:"account_id"`
	Balance    int64 `db:"balance"`
	EntriesSum int64 `db:"entries_sum"`
}
