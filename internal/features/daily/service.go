package daily

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/features/rewards"
	"serotonyl.ru/hacker-bot/internal/telemetry"
)

// Store — хранилище серии.
type Store interface {
	State(ctx context.Context, userID int64) (State, error)
	// Claim сдвигает last_login c prev на now и начисляет amount атомарно.
	// Если last_login уже не равен prev, возвращает common.ErrDailyAlreadyClaimed.
	Claim(ctx context.Context, userID int64, prev *time.Time, now time.Time, streak int, amount int64) (int64, error)
}

// Options — параметры сервиса.
type Options struct {
	Timeout time.Duration
	Retry   common.RetryPolicy
	Metrics *telemetry.Instruments
	Clock   func() time.Time
	Rand    *rand.Rand
}

// Service выдаёт ежедневный бонус.
type Service struct {
	store Store
	locks *common.KeyedMutex[int64]
	opts  Options

	rngMu sync.Mutex
}

// NewService создаёт сервис. locks — те же блокировки по аккаунтам, что у леджера.
func NewService(store Store, locks *common.KeyedMutex[int64], opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = common.DefaultRetryPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{store: store, locks: locks, opts: opts}
}

func (s *Service) draw(prevStreak int) rewards.DailyResult {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return rewards.DailyLogin(s.opts.Rand, prevStreak)
}

// Claim выдаёт бонус, если с прошлого прошло 24 часа.
// Иначе возвращает *NotYetError.
func (s *Service) Claim(ctx context.Context, userID int64) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "daily.claim")
	defer span.End()

	var res *Result
	err := s.opts.Retry.Do(ctx, "daily.claim", func(ctx context.Context) error {
		unlock := s.locks.Lock(userID)
		defer unlock()

		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		st, err := s.store.State(tctx, userID)
		if err != nil {
			return err
		}
		now := s.opts.Clock().UTC().Truncate(time.Microsecond)
		streak, err := Evaluate(st, now)
		if err != nil {
			return err
		}

		reward := s.draw(streak)
		balance, err := s.store.Claim(tctx, userID, st.LastLogin, now, reward.Streak, reward.Amount())
		if errors.Is(err, common.ErrDailyAlreadyClaimed) {
			// другой процесс успел раньше: перечитываем, чтобы показать время ожидания
			if st, rerr := s.store.State(tctx, userID); rerr == nil {
				if _, nerr := Evaluate(st, now); nerr != nil {
					return nerr
				}
			}
			return err
		}
		if err != nil {
			return err
		}

		res = &Result{
			Draw:        reward.Draw,
			StreakBonus: reward.StreakBonus,
			Streak:      reward.Streak,
			Balance:     balance,
			ClaimedAt:   now,
		}
		return nil
	})

	logger := log.WithField("user_id", userID)
	switch {
	case err == nil:
		s.opts.Metrics.LedgerApply(ctx, "daily_bonus", telemetry.OutcomeOK)
		logger.WithFields(log.Fields{
			"amount": res.Amount(),
			"streak": res.Streak,
		}).Info("Ежедневный бонус начислен")
		return res, nil
	case errors.Is(err, common.ErrDailyAlreadyClaimed):
		logger.Debug("Ежедневный бонус уже получен")
		return nil, err
	case errors.Is(err, common.ErrStorageUnavailable):
		s.opts.Metrics.LedgerApply(ctx, "daily_bonus", telemetry.OutcomeUnavailable)
		return nil, err
	default:
		s.opts.Metrics.LedgerApply(ctx, "daily_bonus", telemetry.OutcomeError)
		logger.WithError(err).Error("Ошибка начисления ежедневного бонуса")
		return nil, err
	}
}
