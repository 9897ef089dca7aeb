package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
)

// Store — хранилище маркетплейса.
type Store interface {
	Insert(ctx context.Context, authorID int64, sub Submission, price int64) (*Script, error)
	Approved(ctx context.Context, limit int) ([]*Script, error)
	Approve(ctx context.Context, id int64) (*Script, error)
	Rate(ctx context.Context, userID, scriptID int64, stars int) (*Script, error)
	Pending(ctx context.Context) (int, error)
}

// Options — параметры сервиса.
type Options struct {
	Timeout time.Duration
	Retry   common.RetryPolicy
}

// Service — маркетплейс скриптов.
type Service struct {
	store Store
	opts  Options
}

func NewService(store Store, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = common.DefaultRetryPolicy()
	}
	return &Service{store: store, opts: opts}
}

// ParseSubmission разбирает «Title | Description | Script».
func ParseSubmission(args string) (Submission, error) {
	parts := strings.SplitN(args, "|", 3)
	if len(parts) != 3 {
		return Submission{}, fmt.Errorf("%w: нужно три поля через |", common.ErrInvalidScript)
	}
	sub := Submission{
		Title:       strings.TrimSpace(parts[0]),
		Description: strings.TrimSpace(parts[1]),
		Body:        strings.TrimSpace(parts[2]),
	}

	switch {
	case sub.Title == "" || sub.Description == "" || sub.Body == "":
		return Submission{}, fmt.Errorf("%w: пустое поле", common.ErrInvalidScript)
	case utf8.RuneCountInString(sub.Title) > maxTitleLength:
		return Submission{}, fmt.Errorf("%w: название длиннее %d", common.ErrInvalidScript, maxTitleLength)
	case utf8.RuneCountInString(sub.Description) > maxDescriptionLength:
		return Submission{}, fmt.Errorf("%w: описание длиннее %d", common.ErrInvalidScript, maxDescriptionLength)
	case utf8.RuneCountInString(sub.Body) > maxBodyLength:
		return Submission{}, fmt.Errorf("%w: скрипт длиннее %d", common.ErrInvalidScript, maxBodyLength)
	}
	return sub, nil
}

// ParseRating разбирает «<id> <1-5>».
func ParseRating(args string) (id int64, stars int, err error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return 0, 0, common.ErrInvalidRating
	}
	id, err = strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, common.ErrScriptNotFound
	}
	stars, err = strconv.Atoi(fields[1])
	if err != nil || stars < 1 || stars > 5 {
		return 0, 0, common.ErrInvalidRating
	}
	return id, stars, nil
}

// Submit принимает заявку. Скрипт появится на витрине после /approve.
func (s *Service) Submit(ctx context.Context, authorID int64, sub Submission) (*Script, error) {
	var script *Script
	err := s.opts.Retry.Do(ctx, "market.submit", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		script, err = s.store.Insert(tctx, authorID, sub, DefaultPrice)
		return err
	})
	if err != nil {
		log.WithError(err).WithField("author_id", authorID).Error("Ошибка сохранения заявки на скрипт")
		return nil, err
	}
	log.WithFields(log.Fields{
		"author_id": authorID,
		"script_id": script.ID,
		"title":     script.Title,
	}).Info("Скрипт отправлен на модерацию")
	return script, nil
}

// List возвращает витрину.
func (s *Service) List(ctx context.Context) ([]*Script, error) {
	var out []*Script
	err := s.opts.Retry.Do(ctx, "market.list", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		out, err = s.store.Approved(tctx, listLimit)
		return err
	})
	return out, err
}

// Top — лучший одобренный скрипт или nil, если витрина пуста.
func (s *Service) Top(ctx context.Context) (*Script, error) {
	var out []*Script
	err := s.opts.Retry.Do(ctx, "market.top", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		out, err = s.store.Approved(tctx, 1)
		return err
	})
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

// Approve одобряет скрипт. Права проверяет вызывающая сторона.
func (s *Service) Approve(ctx context.Context, id int64) (*Script, error) {
	var script *Script
	err := s.opts.Retry.Do(ctx, "market.approve", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		script, err = s.store.Approve(tctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"script_id": id, "title": script.Title}).Info("Скрипт одобрен")
	return script, nil
}

// Rate ставит оценку; повторная оценка того же пользователя заменяет прежнюю.
func (s *Service) Rate(ctx context.Context, userID, scriptID int64, stars int) (*Script, error) {
	if stars < 1 || stars > 5 {
		return nil, common.ErrInvalidRating
	}
	var script *Script
	err := s.opts.Retry.Do(ctx, "market.rate", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		script, err = s.store.Rate(tctx, userID, scriptID, stars)
		return err
	})
	if err != nil {
		if !errors.Is(err, common.ErrScriptNotFound) && !errors.Is(err, common.ErrOwnScript) {
			log.WithError(err).WithFields(log.Fields{
				"user_id":   userID,
				"script_id": scriptID,
			}).Error("Ошибка оценки скрипта")
		}
		return nil, err
	}
	return script, nil
}

// Pending — число заявок на модерации.
func (s *Service) Pending(ctx context.Context) (int, error) {
	var n int
	err := s.opts.Retry.Do(ctx, "market.pending", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		n, err = s.store.Pending(tctx)
		return err
	})
	return n, err
}

// FormatRating рендерит рейтинг: «4.5 (2)» или «N/A».
func FormatRating(s *Script) string {
	if s.Rating == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f (%d)", *s.Rating, s.Votes)
}
