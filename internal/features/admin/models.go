// Package admin — вход администратора по паролю и ручные операции:
// корректировка баланса, сверка леджера, модерация маркетплейса и сводка.
package admin

import (
	"time"

	"serotonyl.ru/hacker-bot/internal/features/market"
)

// Session — активная сессия администратора.
type Session struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	SessionToken    string    `db:"session_token"`
	AuthenticatedAt time.Time `db:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at"`
	LastActivity    time.Time `db:"last_activity"`
	IsActive        bool      `db:"is_active"`
}

// LoginAttempt — попытка входа (для защиты от перебора).
type LoginAttempt struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

// Параметры входа
const (
	MaxFailedAttempts = 3
	LockoutWindow     = time.Hour
	SessionTTL        = 24 * time.Hour
	stateTTL          = 5 * time.Minute
)

// State — шаг диалога с админом: /login без аргумента ждёт пароль
// следующим сообщением.
type State struct {
	Name      string
	ExpiresAt time.Time
}

const (
	StateNone             = ""
	StateAwaitingPassword = "awaiting_password"
)

// Adjustment — итог ручной корректировки.
type Adjustment struct {
	AccountID int64
	Target    string // как аккаунт показывается в ответе
	Amount    int64
	Note      string
	Balance   int64
}

// Revenue — выручка в одной валюте, в минимальных единицах.
type Revenue struct {
	Currency string
	Amount   int64
	Payments int
}

// Dashboard — сводка /admindash.
type Dashboard struct {
	Accounts       int64
	PremiumActive  int64
	Circulation    int64 // сумма балансов
	Revenue        []Revenue
	PendingScripts int
	TopScript      *market.Script // nil, если витрина пуста
}
