package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/features/accounts"
	"serotonyl.ru/hacker-bot/internal/features/ledger"
	"serotonyl.ru/hacker-bot/internal/features/market"
)

// Store — хранилище сессий и попыток входа.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	ActiveSession(ctx context.Context, userID int64, now time.Time) (*Session, error)
	Deactivate(ctx context.Context, userID int64) error
	Touch(ctx context.Context, userID int64, now time.Time) error
	LogAttempt(ctx context.Context, userID int64, success bool, at time.Time) error
	FailedAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	Dashboard(ctx context.Context, now time.Time) (*Dashboard, error)
}

// Ledger — операции леджера, доступные админу.
type Ledger interface {
	Apply(ctx context.Context, accountID, amount int64, reason ledger.Reason, ref string) (int64, error)
	Reconcile(ctx context.Context) ([]*ledger.Discrepancy, error)
}

// Accounts ищет аккаунт по id или @username.
type Accounts interface {
	Resolve(ctx context.Context, target string) (*accounts.Account, error)
}

// Market — модерация маркетплейса скриптов.
type Market interface {
	Approve(ctx context.Context, id int64) (*market.Script, error)
	Top(ctx context.Context) (*market.Script, error)
	Pending(ctx context.Context) (int, error)
}

// Options — настройки сервиса.
type Options struct {
	AdminIDs     []int64
	PasswordHash string // $argon2id$v=19$m=...,t=...,p=...$salt$hash
	Retry        common.RetryPolicy
	Clock        func() time.Time
}

// Service управляет входом администратора и ручными операциями.
type Service struct {
	store    Store
	ledger   Ledger
	accounts Accounts
	market   Market
	opts     Options

	states   map[int64]*State
	statesMu sync.RWMutex
}

// NewService создаёт сервис админки.
func NewService(store Store, l Ledger, a Accounts, m Market, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = common.DefaultRetryPolicy()
	}
	return &Service{
		store:    store,
		ledger:   l,
		accounts: a,
		market:   m,
		opts:     opts,
		states:   make(map[int64]*State),
	}
}

// IsAdmin проверяет, входит ли пользователь в список администраторов.
func (s *Service) IsAdmin(userID int64) bool {
	for _, id := range s.opts.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Login проверяет пароль по хешу Argon2id и открывает сессию на сутки.
// После трёх неудачных попыток за час вход блокируется.
func (s *Service) Login(ctx context.Context, userID int64, password string) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}
	now := s.opts.Clock()

	var failed int
	err := s.opts.Retry.Do(ctx, "admin.attempts", func(ctx context.Context) error {
		var err error
		failed, err = s.store.FailedAttemptsSince(ctx, userID, now.Add(-LockoutWindow))
		return err
	})
	if err != nil {
		return err
	}
	if failed >= MaxFailedAttempts {
		log.WithField("user_id", userID).Warn("Вход в админку заблокирован")
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.opts.PasswordHash)
	if err := s.store.LogAttempt(ctx, userID, match, now); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось записать попытку входа")
	}
	if !match {
		log.WithFields(log.Fields{
			"user_id": userID,
			"failed":  failed + 1,
		}).Warn("Неверный пароль администратора")
		return common.ErrWrongPassword
	}

	session := &Session{
		UserID:          userID,
		SessionToken:    generateSecureToken(),
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(SessionTTL),
		IsActive:        true,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Администратор вошёл")
	return nil
}

// Logout закрывает сессию.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}
	s.ClearState(userID)
	return s.store.Deactivate(ctx, userID)
}

// HasActiveSession проверяет, есть ли у пользователя действующая сессия.
func (s *Service) HasActiveSession(ctx context.Context, userID int64) bool {
	session, err := s.store.ActiveSession(ctx, userID, s.opts.Clock())
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка проверки сессии")
		return false
	}
	return session != nil
}

// requireSession пропускает только администратора с действующей сессией.
func (s *Service) requireSession(ctx context.Context, userID int64) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}
	now := s.opts.Clock()
	session, err := s.store.ActiveSession(ctx, userID, now)
	if err != nil {
		return err
	}
	if session == nil {
		return common.ErrSessionExpired
	}
	if err := s.store.Touch(ctx, userID, now); err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("Не удалось обновить активность сессии")
	}
	return nil
}

// Adjust меняет баланс аккаунта проводкой admin_adjust.
func (s *Service) Adjust(ctx context.Context, adminID int64, target string, amount int64, note string) (*Adjustment, error) {
	if err := s.requireSession(ctx, adminID); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, common.ErrInvalidAmount
	}

	acc, err := s.accounts.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	ref := fmt.Sprintf("admin:%d", adminID)
	if note != "" {
		ref += " " + note
	}
	balance, err := s.ledger.Apply(ctx, acc.UserID, amount, ledger.ReasonAdminAdjust, ref)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"admin_id":   adminID,
		"account_id": acc.UserID,
		"amount":     amount,
		"note":       note,
		"balance":    balance,
	}).Warn("Ручная корректировка баланса")

	return &Adjustment{
		AccountID: acc.UserID,
		Target:    acc.DisplayName(),
		Amount:    amount,
		Note:      note,
		Balance:   balance,
	}, nil
}

// Audit запускает сверку леджера по требованию.
func (s *Service) Audit(ctx context.Context, adminID int64) ([]*ledger.Discrepancy, error) {
	if err := s.requireSession(ctx, adminID); err != nil {
		return nil, err
	}
	log.WithField("admin_id", adminID).Info("Сверка леджера по запросу")
	return s.ledger.Reconcile(ctx)
}

// Approve одобряет скрипт на маркетплейсе.
func (s *Service) Approve(ctx context.Context, adminID, scriptID int64) (*market.Script, error) {
	if err := s.requireSession(ctx, adminID); err != nil {
		return nil, err
	}
	script, err := s.market.Approve(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"admin_id":  adminID,
		"script_id": scriptID,
	}).Info("Админ одобрил скрипт")
	return script, nil
}

// Dashboard — сводка: аккаунты, премиум, выручка, маркетплейс.
func (s *Service) Dashboard(ctx context.Context, adminID int64) (*Dashboard, error) {
	if err := s.requireSession(ctx, adminID); err != nil {
		return nil, err
	}

	var d *Dashboard
	err := s.opts.Retry.Do(ctx, "admin.dashboard", func(ctx context.Context) error {
		var err error
		d, err = s.store.Dashboard(ctx, s.opts.Clock())
		return err
	})
	if err != nil {
		return nil, err
	}

	if d.PendingScripts, err = s.market.Pending(ctx); err != nil {
		return nil, err
	}
	if d.TopScript, err = s.market.Top(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// GetState возвращает текущее состояние диалога.
func (s *Service) GetState(userID int64) *State {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok || s.opts.Clock().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(userID int64, name string) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	s.states[userID] = &State{Name: name, ExpiresAt: s.opts.Clock().Add(stateTTL)}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}

// ParseAdjust разбирает «<id|@username> <±amount> [note]».
func ParseAdjust(args string) (target string, amount int64, note string, err error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return "", 0, "", fmt.Errorf("%w: нужно <id|@username> <±сумма>", common.ErrInvalidAmount)
	}
	amount, err = strconv.ParseInt(strings.TrimPrefix(fields[1], "+"), 10, 64)
	if err != nil || amount == 0 {
		return "", 0, "", fmt.Errorf("%w: %q", common.ErrInvalidAmount, fields[1])
	}
	return fields[0], amount, strings.Join(fields[2:], " "), nil
}

// --- Argon2id ---

// Параметры хеша по умолчанию
const (
	argonMemory      uint32 = 64 * 1024
	argonIterations  uint32 = 3
	argonParallelism uint8  = 2
	argonKeyLength   uint32 = 32
	argonSaltLength         = 16
)

// HashPassword возвращает хеш для ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	return encodeArgon2id(password, salt, argonMemory, argonIterations, argonParallelism), nil
}

func encodeArgon2id(password string, salt []byte, memory, iterations uint32, parallelism uint8) string {
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, argonKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
}

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// generateSecureToken генерирует токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
