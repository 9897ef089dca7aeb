// Package common — errors.go определяет ошибки, общие для всех модулей бота.
// Бизнес-исходы (нехватка кредитов, исчерпанная квота) — часть обычного
// контракта и сравниваются через errors.Is. Инфраструктурные сбои
// сводятся к ErrStorageUnavailable и повторяются политикой RetryPolicy.
package common

import "errors"

// Ошибки леджера
var (
	// ErrInsufficientFunds — списание увело бы баланс в минус
	ErrInsufficientFunds = errors.New("недостаточно кредитов")
	// ErrInvalidAmount — сумма равна нулю или вне допустимого диапазона
	ErrInvalidAmount = errors.New("некорректная сумма")
	// ErrInvalidReason — неизвестная причина проводки
	ErrInvalidReason = errors.New("неизвестная причина проводки")
	// ErrAccountNotFound — аккаунт не найден
	ErrAccountNotFound = errors.New("аккаунт не найден")
)

// Инфраструктура и инварианты
var (
	// ErrStorageUnavailable — хранилище не ответило вовремя или соединение оборвалось.
	// Такие ошибки можно повторять.
	ErrStorageUnavailable = errors.New("хранилище недоступно")
	// ErrCommitUnknown — соединение оборвалось во время COMMIT, транзакция могла
	// примениться. Повторять нельзя.
	ErrCommitUnknown = errors.New("исход коммита неизвестен")
	// ErrInvariantViolation — обнаружено невозможное состояние (отрицательный баланс и т.п.)
	ErrInvariantViolation = errors.New("нарушен инвариант")
)

// Квоты
var (
	// ErrQuotaExceeded — лимит команды в текущем окне исчерпан
	ErrQuotaExceeded = errors.New("лимит команды исчерпан")
	// ErrInvalidQuota — лимит или период не заданы
	ErrInvalidQuota = errors.New("некорректные параметры квоты")
)

// Награды, ежедневный бонус и рефералы
var (
	ErrDailyAlreadyClaimed     = errors.New("ежедневный бонус уже получен")
	ErrReferralNotFound        = errors.New("реферальный код не найден")
	ErrReferralExpired         = errors.New("реферальный код устарел")
	ErrSelfReferral            = errors.New("нельзя использовать свой реферальный код")
	ErrReferralAlreadyRedeemed = errors.New("реферальный бонус уже получен")
	ErrUnknownTier             = errors.New("неизвестный уровень сложности")
)

// Игровые команды
var (
	// ErrInvalidCount — количество вне допустимого диапазона команды
	ErrInvalidCount = errors.New("некорректное количество")
	// ErrEmptyTarget — не указана цель
	ErrEmptyTarget = errors.New("не указана цель")
	// ErrNoActiveQuiz — нет вопроса, ожидающего ответа
	ErrNoActiveQuiz = errors.New("нет активного вопроса")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)

// Соцпрофили
var (
	ErrNoSocialProfile  = errors.New("соцпрофиль не создан")
	ErrProfileNotFound  = errors.New("профиль не найден")
	ErrSelfFollow       = errors.New("нельзя подписаться на себя")
	ErrAlreadyFollowing = errors.New("подписка уже оформлена")
	ErrInvalidProfile   = errors.New("некорректные данные профиля")
)

// Маркетплейс скриптов
var (
	// ErrInvalidScript — пустые или слишком длинные поля заявки
	ErrInvalidScript  = errors.New("некорректная заявка на скрипт")
	ErrScriptNotFound = errors.New("скрипт не найден")
	ErrInvalidRating  = errors.New("оценка должна быть от 1 до 5")
	ErrOwnScript      = errors.New("нельзя оценивать свой скрипт")
)
