package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/telemetry"
)

// Store — хранилище балансов и проводок.
type Store interface {
	// Apply атомарно пишет проводку и новый баланс. Для списаний, уводящих
	// баланс в минус, возвращает common.ErrInsufficientFunds и ничего не меняет.
	Apply(ctx context.Context, accountID, amount int64, reason Reason, ref string) (*Entry, error)
	Balance(ctx context.Context, accountID int64) (int64, error)
	Entries(ctx context.Context, accountID int64, limit int) ([]*Entry, error)
	Top(ctx context.Context, limit int) ([]*Holder, error)
	Discrepancies(ctx context.Context) ([]*Discrepancy, error)
}

// Options — параметры обращения к хранилищу.
type Options struct {
	Timeout time.Duration // таймаут одной попытки
	Retry   common.RetryPolicy
	Metrics *telemetry.Instruments
}

// Service — единая точка изменения балансов.
type Service struct {
	store Store
	locks *common.KeyedMutex[int64] // общий с другими фичами набор блокировок по аккаунтам
	opts  Options
}

// NewService создаёт сервис леджера.
func NewService(store Store, locks *common.KeyedMutex[int64], opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = common.DefaultRetryPolicy()
	}
	return &Service{store: store, locks: locks, opts: opts}
}

// Apply применяет знаковую проводку и возвращает новый баланс.
//
// Возможные ошибки:
//   - common.ErrInsufficientFunds — обычный отказ, баланс не изменился;
//   - common.ErrStorageUnavailable — хранилище не ответило за все попытки;
//   - common.ErrInvalidAmount / common.ErrInvalidReason — ошибка вызывающего;
//   - common.ErrInvariantViolation — баг в пути изменения, логируется громко.
func (s *Service) Apply(ctx context.Context, accountID, amount int64, reason Reason, ref string) (int64, error) {
	if amount == 0 {
		return 0, common.ErrInvalidAmount
	}
	if !reason.Valid() {
		return 0, fmt.Errorf("%w: %q", common.ErrInvalidReason, reason)
	}

	ctx, span := telemetry.StartSpan(ctx, "ledger.apply")
	defer span.End()

	var entry *Entry
	err := s.opts.Retry.Do(ctx, "ledger.apply", func(ctx context.Context) error {
		unlock := s.locks.Lock(accountID)
		defer unlock()

		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		e, err := s.store.Apply(tctx, accountID, amount, reason, ref)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})

	logger := log.WithFields(log.Fields{
		"account_id": accountID,
		"amount":     amount,
		"reason":     reason,
	})

	switch {
	case err == nil:
	case errors.Is(err, common.ErrInsufficientFunds):
		s.opts.Metrics.LedgerApply(ctx, string(reason), telemetry.OutcomeInsufficient)
		logger.Debug("Списание отклонено: недостаточно кредитов")
		return 0, err
	case errors.Is(err, common.ErrStorageUnavailable):
		s.opts.Metrics.LedgerApply(ctx, string(reason), telemetry.OutcomeUnavailable)
		return 0, err
	case errors.Is(err, common.ErrInvariantViolation):
		s.opts.Metrics.LedgerApply(ctx, string(reason), telemetry.OutcomeError)
		logger.WithError(err).Error("НАРУШЕН ИНВАРИАНТ леджера")
		return 0, err
	default:
		s.opts.Metrics.LedgerApply(ctx, string(reason), telemetry.OutcomeError)
		logger.WithError(err).Error("Ошибка применения проводки")
		return 0, err
	}

	if entry.BalanceAfter < 0 {
		err := fmt.Errorf("%w: баланс %d после проводки %s", common.ErrInvariantViolation, entry.BalanceAfter, entry.ID)
		logger.WithError(err).Error("НАРУШЕН ИНВАРИАНТ леджера")
		return 0, err
	}

	s.opts.Metrics.LedgerApply(ctx, string(reason), telemetry.OutcomeOK)
	logger.WithFields(log.Fields{
		"entry_id":      entry.ID,
		"balance_after": entry.BalanceAfter,
	}).Info("Проводка применена")
	return entry.BalanceAfter, nil
}

// BalanceOf возвращает текущий баланс. Может отставать не более чем на одну
// выполняющуюся проводку.
func (s *Service) BalanceOf(ctx context.Context, accountID int64) (int64, error) {
	var balance int64
	err := s.opts.Retry.Do(ctx, "ledger.balance", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		b, err := s.store.Balance(tctx, accountID)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return 0, err
	}

	if balance < 0 {
		err := fmt.Errorf("%w: баланс аккаунта %d = %d", common.ErrInvariantViolation, accountID, balance)
		log.WithField("account_id", accountID).WithError(err).Error("НАРУШЕН ИНВАРИАНТ леджера")
		return 0, err
	}
	return balance, nil
}

// History возвращает последние limit проводок.
func (s *Service) History(ctx context.Context, accountID int64, limit int) ([]*Entry, error) {
	var entries []*Entry
	err := s.opts.Retry.Do(ctx, "ledger.history", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		entries, err = s.store.Entries(tctx, accountID, limit)
		return err
	})
	return entries, err
}

// Top возвращает таблицу лидеров.
func (s *Service) Top(ctx context.Context, limit int) ([]*Holder, error) {
	var holders []*Holder
	err := s.opts.Retry.Do(ctx, "ledger.top", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		holders, err = s.store.Top(tctx, limit)
		return err
	})
	return holders, err
}

// Reconcile сверяет балансы с проводками. Каждое расхождение — нарушение
// инварианта: оно логируется с уровнем Error и никогда не исправляется молча.
func (s *Service) Reconcile(ctx context.Context) ([]*Discrepancy, error) {
	var found []*Discrepancy
	err := s.opts.Retry.Do(ctx, "ledger.reconcile", func(ctx context.Context) error {
		var err error
		found, err = s.store.Discrepancies(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка сверки леджера: %w", err)
	}

	for _, d := range found {
		log.WithFields(log.Fields{
			"account_id":  d.AccountID,
			"balance":     d.Balance,
			"entries_sum": d.EntriesSum,
		}).WithError(common.ErrInvariantViolation).Error("Баланс не сходится с проводками")
	}
	if len(found) == 0 {
		log.Debug("Сверка леджера: расхождений нет")
	}
	return found, nil
}
