package premium

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/telemetry"
)

// Store — хранилище оплат.
type Store interface {
	Grant(ctx context.Context, p Payment, tier Tier, now time.Time) (*Grant, error)
}

// Options — параметры сервиса.
type Options struct {
	Currency string
	Timeout  time.Duration
	Retry    common.RetryPolicy
	Metrics  *telemetry.Instruments
	Clock    func() time.Time
}

// Service проверяет и зачисляет оплаты.
type Service struct {
	store Store
	locks *common.KeyedMutex[int64]
	opts  Options
}

// NewService создаёт сервис премиума.
func NewService(store Store, locks *common.KeyedMutex[int64], opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
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

// Currency — валюта счетов.
func (s *Service) Currency() string { return s.opts.Currency }

// ValidateCheckout проверяет pre-checkout: известный пропуск, валюта и сумма.
func (s *Service) ValidateCheckout(payload, currency string, total int) (Tier, error) {
	tier, err := TierFromPayload(payload)
	if err != nil {
		return Tier{}, err
	}
	if !strings.EqualFold(currency, s.opts.Currency) {
		return Tier{}, fmt.Errorf("валюта %s, ожидалась %s", currency, s.opts.Currency)
	}
	if total != tier.Price {
		return Tier{}, fmt.Errorf("сумма %d, ожидалась %d", total, tier.Price)
	}
	return tier, nil
}

// Grant зачисляет успешную оплату. Повтор с тем же ChargeID безопасен.
func (s *Service) Grant(ctx context.Context, p Payment) (*Grant, error) {
	tier, err := s.ValidateCheckout(p.Payload, p.Currency, p.TotalAmount)
	if err != nil {
		// деньги уже списаны: логируем громко, чтобы разобраться вручную
		log.WithFields(log.Fields{
			"user_id":   p.UserID,
			"charge_id": p.ChargeID,
			"payload":   p.Payload,
		}).WithError(err).Error("Оплата не соответствует счёту")
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "premium.grant")
	defer span.End()

	var g *Grant
	err = s.opts.Retry.Do(ctx, "premium.grant", func(ctx context.Context) error {
		unlock := s.locks.Lock(p.UserID)
		defer unlock()

		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		g, err = s.store.Grant(tctx, p, tier, s.opts.Clock().UTC())
		return err
	})

	logger := log.WithFields(log.Fields{
		"user_id":   p.UserID,
		"tier":      tier.Name,
		"charge_id": p.ChargeID,
	})
	if err != nil {
		s.opts.Metrics.LedgerApply(ctx, "premium_purchase", telemetry.OutcomeError)
		logger.WithError(err).Error("Ошибка зачисления оплаты")
		return nil, err
	}
	if g.Duplicate {
		logger.Info("Оплата уже зачислена, повтор пропущен")
		return g, nil
	}

	s.opts.Metrics.LedgerApply(ctx, "premium_purchase", telemetry.OutcomeOK)
	logger.WithField("premium_until", g.PremiumUntil).Info("Премиум оплачен")
	return g, nil
}
