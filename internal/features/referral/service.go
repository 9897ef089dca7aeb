package referral

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/features/rewards"
	"serotonyl.ru/hacker-bot/internal/telemetry"
)

// Store — хранилище кодов и погашений.
type Store interface {
	CodeFor(ctx context.Context, ownerID int64) (*Code, error)
	Lookup(ctx context.Context, code string) (*Code, error)
	Redeem(ctx context.Context, red Redemption) error
	Invited(ctx context.Context, ownerID int64) (int, error)
}

// Options — параметры сервиса.
type Options struct {
	Timeout time.Duration
	Retry   common.RetryPolicy
	Metrics *telemetry.Instruments
	Clock   func() time.Time
}

// Service выдаёт и гасит реферальные коды.
type Service struct {
	store Store
	locks *common.KeyedMutex[int64]
	opts  Options
}

// NewService создаёт сервис. locks — общие блокировки по аккаунтам.
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
	return &Service{store: store, locks: locks, opts: opts}
}

// CodeFor возвращает код пользователя.
func (s *Service) CodeFor(ctx context.Context, userID int64) (*Code, error) {
	var c *Code
	err := s.opts.Retry.Do(ctx, "referral.code_for", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		c, err = s.store.CodeFor(tctx, userID)
		return err
	})
	return c, err
}

// Invited — число приглашённых.
func (s *Service) Invited(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.opts.Retry.Do(ctx, "referral.invited", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		n, err = s.store.Invited(tctx, userID)
		return err
	})
	return n, err
}

// Redeem гасит код для приглашённого: +10 владельцу, +5 приглашённому.
//
// Ожидаемые отказы: ErrReferralNotFound, ErrReferralExpired, ErrSelfReferral,
// ErrReferralAlreadyRedeemed. Повторное погашение ничего не начисляет.
func (s *Service) Redeem(ctx context.Context, refereeID int64, code string) (*Redemption, error) {
	code = strings.TrimSpace(code)

	ctx, span := telemetry.StartSpan(ctx, "referral.redeem")
	defer span.End()

	var red *Redemption
	err := s.opts.Retry.Do(ctx, "referral.redeem", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		c, err := s.store.Lookup(tctx, code)
		if err != nil {
			return err
		}
		payout, err := rewards.Referral(s.opts.Clock().Sub(c.CreatedAt), c.OwnerID, refereeID)
		if err != nil {
			return err
		}

		unlock := s.locks.LockMany(c.OwnerID, refereeID)
		defer unlock()

		candidate := Redemption{
			Code:       c.Code,
			ReferrerID: c.OwnerID,
			RefereeID:  refereeID,
			Referrer:   payout.Referrer,
			Referee:    payout.Referee,
		}
		if err := s.store.Redeem(tctx, candidate); err != nil {
			return err
		}
		red = &candidate
		return nil
	})

	logger := log.WithFields(log.Fields{"referee_id": refereeID, "code": code})
	switch {
	case err == nil:
		s.opts.Metrics.LedgerApply(ctx, "referral", telemetry.OutcomeOK)
		logger.WithField("referrer_id", red.ReferrerID).Info("Реферальный код погашен")
		return red, nil
	case errors.Is(err, common.ErrReferralNotFound),
		errors.Is(err, common.ErrReferralExpired),
		errors.Is(err, common.ErrSelfReferral),
		errors.Is(err, common.ErrReferralAlreadyRedeemed):
		s.opts.Metrics.LedgerApply(ctx, "referral", telemetry.OutcomeDenied)
		logger.WithError(err).Debug("Реферальный код не принят")
		return nil, err
	case errors.Is(err, common.ErrStorageUnavailable):
		s.opts.Metrics.LedgerApply(ctx, "referral", telemetry.OutcomeUnavailable)
		return nil, err
	default:
		s.opts.Metrics.LedgerApply(ctx, "referral", telemetry.OutcomeError)
		logger.WithError(err).Error("Ошибка погашения реферального кода")
		return nil, err
	}
}
