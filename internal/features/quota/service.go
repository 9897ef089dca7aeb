package quota

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/telemetry"
)

// Store — хранилище окон. CheckAndRecord обязан быть атомарным на уровне
// хранилища: строка под FOR UPDATE или Lua-скрипт.
type Store interface {
	CheckAndRecord(ctx context.Context, key Key, limit int, period time.Duration, now time.Time) (Decision, error)
	Release(ctx context.Context, key Key, windowStart, now time.Time) error
	Get(ctx context.Context, key Key) (Window, bool, error)
}

// Options — параметры трекера.
type Options struct {
	Timeout time.Duration
	Retry   common.RetryPolicy
	Metrics *telemetry.Instruments
	Clock   func() time.Time // для тестов
}

// Service — трекер квот.
type Service struct {
	store Store
	locks *common.KeyedMutex[string]
	opts  Options
}

// NewService создаёт трекер квот.
func NewService(store Store, locks *common.KeyedMutex[string], opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = common.DefaultRetryPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{store: store, locks: locks, opts: opts}
}

// now в UTC с точностью до микросекунды: так хранит timestamptz.
func (s *Service) now() time.Time {
	return s.opts.Clock().UTC().Truncate(time.Microsecond)
}

// CheckAndRecord проверяет квоту и, если вызов разрешён, засчитывает его.
// Отказ — обычный исход, а не ошибка.
func (s *Service) CheckAndRecord(ctx context.Context, accountID int64, command string, limit int, period time.Duration) (Decision, error) {
	if limit <= 0 || period <= 0 {
		return Decision{}, common.ErrInvalidQuota
	}

	ctx, span := telemetry.StartSpan(ctx, "quota.check_and_record")
	defer span.End()

	key := Key{AccountID: accountID, Command: command}
	var d Decision
	err := s.opts.Retry.Do(ctx, "quota.check_and_record", func(ctx context.Context) error {
		unlock := s.locks.Lock(key.String())
		defer unlock()

		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		d, err = s.store.CheckAndRecord(tctx, key, limit, period, s.now())
		return err
	})

	logger := log.WithFields(log.Fields{
		"account_id": accountID,
		"command":    command,
	})

	if err != nil {
		outcome := telemetry.OutcomeError
		if errors.Is(err, common.ErrStorageUnavailable) {
			outcome = telemetry.OutcomeUnavailable
		} else {
			logger.WithError(err).Error("Ошибка проверки квоты")
		}
		s.opts.Metrics.QuotaDecision(ctx, command, outcome)
		return Decision{}, err
	}

	if !d.Allowed {
		s.opts.Metrics.QuotaDecision(ctx, command, telemetry.OutcomeDenied)
		logger.WithField("retry_after", d.RetryAfter).Debug("Квота исчерпана")
		return d, nil
	}

	s.opts.Metrics.QuotaDecision(ctx, command, telemetry.OutcomeOK)
	logger.WithFields(log.Fields{"count": d.Count, "limit": d.Limit}).Debug("Вызов засчитан")
	return d, nil
}

// Require — CheckAndRecord, у которого отказ превращается в *ExceededError.
func (s *Service) Require(ctx context.Context, accountID int64, command string, limit int, period time.Duration) (Decision, error) {
	d, err := s.CheckAndRecord(ctx, accountID, command, limit, period)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, &ExceededError{Command: command, Limit: limit, RetryAfter: d.RetryAfter}
	}
	return d, nil
}

// Release возвращает засчитанный вызов, когда парная операция леджера
// не состоялась. Окно, начавшееся позже windowStart, не трогается.
func (s *Service) Release(ctx context.Context, accountID int64, command string, windowStart time.Time) error {
	key := Key{AccountID: accountID, Command: command}
	err := s.opts.Retry.Do(ctx, "quota.release", func(ctx context.Context) error {
		unlock := s.locks.Lock(key.String())
		defer unlock()

		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		return s.store.Release(tctx, key, windowStart, s.now())
	})
	if err != nil {
		log.WithFields(log.Fields{
			"account_id": accountID,
			"command":    command,
		}).WithError(err).Error("Не удалось вернуть вызов в квоту")
	}
	return err
}

// Status читает состояние окна, ничего не засчитывая.
func (s *Service) Status(ctx context.Context, accountID int64, command string, limit int, period time.Duration) (Status, error) {
	key := Key{AccountID: accountID, Command: command}
	var (
		w  Window
		ok bool
	)
	err := s.opts.Retry.Do(ctx, "quota.status", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		w, ok, err = s.store.Get(tctx, key)
		return err
	})
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{Command: command, Limit: limit}, nil
	}
	return w.StatusAt(s.now(), command, limit, period), nil
}
