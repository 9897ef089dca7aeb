package accounts

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
)

// Store — хранилище аккаунтов.
type Store interface {
	Upsert(ctx context.Context, p Profile) error
	Get(ctx context.Context, userID int64) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	ExpirePremium(ctx context.Context, now time.Time) (int64, error)
}

// Service — операции над профилями.
type Service struct {
	store   Store
	retry   common.RetryPolicy
	timeout time.Duration
}

// NewService создаёт сервис аккаунтов.
func NewService(store Store, retry common.RetryPolicy, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{store: store, retry: retry, timeout: timeout}
}

// Ensure гарантирует, что аккаунт есть, и освежает имя. Вызывается на каждую команду.
func (s *Service) Ensure(ctx context.Context, p Profile) error {
	return s.retry.Do(ctx, "accounts.ensure", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.store.Upsert(tctx, p)
	})
}

// Get возвращает аккаунт по Telegram ID.
func (s *Service) Get(ctx context.Context, userID int64) (*Account, error) {
	var a *Account
	err := s.retry.Do(ctx, "accounts.get", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var err error
		a, err = s.store.Get(tctx, userID)
		return err
	})
	return a, err
}

// Resolve понимает «123456» и «@username».
func (s *Service) Resolve(ctx context.Context, target string) (*Account, error) {
	target = strings.TrimSpace(target)
	if id, ok := common.ParseUserID(target); ok {
		return s.Get(ctx, id)
	}

	username := strings.TrimPrefix(target, "@")
	if username == "" {
		return nil, common.ErrAccountNotFound
	}
	var a *Account
	err := s.retry.Do(ctx, "accounts.by_username", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var err error
		a, err = s.store.GetByUsername(tctx, username)
		return err
	})
	return a, err
}

// ExpirePremium снимает истёкшие подписки.
func (s *Service) ExpirePremium(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.retry.Do(ctx, "accounts.expire_premium", func(ctx context.Context) error {
		var err error
		n, err = s.store.ExpirePremium(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.WithField("count", n).Info("Премиум истёк")
	}
	return n, nil
}
