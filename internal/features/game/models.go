// Package game — игровые команды: эксплойты, квизы, спам-рассылки,
// накрутка подписчиков и криптовзлом. Каждая команда — это квота,
// затем проводка в леджере; при сбое проводки квота возвращается.
package game

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/hacker-bot/internal/features/rewards"
)

// Исходы для журнала game_log
const (
	OutcomeOK           = "ok"
	OutcomeWon          = "won"
	OutcomeLost         = "lost"
	OutcomeDenied       = "quota_exceeded"
	OutcomeInsufficient = "insufficient_funds"
	OutcomeFailed       = "failed"
)

// LogEntry — запись журнала game_log.
type LogEntry struct {
	ID        uuid.UUID       `db:"id"`
	UserID    int64           `db:"user_id"`
	Command   string          `db:"command"`
	Outcome   string          `db:"outcome"`
	Amount    int64           `db:"amount"` // знаковое изменение баланса, 0 если не было
	Detail    json.RawMessage `db:"detail"`
	CreatedAt time.Time       `db:"created_at"`
}

// Question — вопрос квиза.
type Question struct {
	Prompt  string
	Options []string
	Answer  int // индекс правильного варианта, с нуля
	Tier    rewards.Tier
}

// PendingQuiz — вопрос, ждущий ответа.
type PendingQuiz struct {
	Question  Question
	ExpiresAt time.Time
}

// ExploitResult — купленный скрипт.
type ExploitResult struct {
	Target  string
	Script  string
	Cost    int64
	Balance int64
}

// SpendResult — итог платной команды без контента.
type SpendResult struct {
	Count   int
	Cost    int64
	Balance int64
}

// BoostResult — итог накрутки: новое число подписчиков профиля.
type BoostResult struct {
	SpendResult
	Handle    string
	Followers int64
}

// HackResult — итог криптовзлома.
type HackResult struct {
	rewards.HackResult
	Balance int64 // -1, если баланс не менялся и не читался
}

// AnswerResult — итог ответа на квиз.
type AnswerResult struct {
	Correct bool
	Right   int // правильный вариант, с нуля
	Reward  int64
	Balance int64
}
