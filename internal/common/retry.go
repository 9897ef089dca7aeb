package common

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetryPolicy — ограниченные повторы с экспоненциальной задержкой.
// Повторяются только ошибки ErrStorageUnavailable; бизнес-исходы
// (ErrInsufficientFunds, ErrQuotaExceeded и т.д.) возвращаются сразу.
type RetryPolicy struct {
	Attempts  int           // всего попыток, включая первую
	BaseDelay time.Duration // задержка перед второй попыткой, дальше ×2

	// OnRetry вызывается перед каждой повторной попыткой (метрики). Может быть nil.
	OnRetry func(op string, attempt int, err error)
}

// DefaultRetryPolicy — 3 попытки, 100ms → 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond}
}

// Do выполняет fn, повторяя её при ErrStorageUnavailable.
// Ожидание прерывается отменой ctx; в этом случае возвращается последняя ошибка fn.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrStorageUnavailable) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := p.BaseDelay << attempt
		log.WithFields(log.Fields{
			"op":      op,
			"attempt": attempt + 1,
			"delay":   delay,
		}).WithError(err).Warn("Хранилище недоступно, повторяем")
		if p.OnRetry != nil {
			p.OnRetry(op, attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}

	log.WithFields(log.Fields{
		"op":       op,
		"attempts": attempts,
	}).WithError(err).Error("Хранилище недоступно, попытки исчерпаны")
	return err
}
