// Package accounts управляет профилями игроков: кто они, серия входов,
// премиум-статус. Баланс хранится здесь же, но меняет его только леджер.
package accounts

import "time"

// Account — игрок в базе данных. Создаётся при первой команде.
type Account struct {
	UserID       int64      `db:"user_id"`       // Telegram user ID
	Username     string     `db:"username"`      // @username без @, может быть пустым
	FirstName    string     `db:"first_name"`
	Balance      int64      `db:"balance"`       // только для чтения, см. ledger
	Streak       int        `db:"streak"`        // дней подряд, 0..6
	LastLogin    *time.Time `db:"last_login"`    // последний ежедневный бонус
	PremiumTier  string     `db:"premium_tier"`  // "" — нет премиума
	PremiumUntil *time.Time `db:"premium_until"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// DisplayName возвращает @username или имя.
func (a *Account) DisplayName() string {
	if a.Username != "" {
		return "@" + a.Username
	}
	if a.FirstName != "" {
		return a.FirstName
	}
	return "n/a"
}

// IsPremium сообщает, активен ли премиум на момент now.
func (a *Account) IsPremium(now time.Time) bool {
	return a.PremiumTier != "" && a.PremiumUntil != nil && now.Before(*a.PremiumUntil)
}

// Profile — данные из Telegram, обновляемые при каждом Ensure.
type Profile struct {
	UserID    int64
	Username  string
	FirstName string
}
