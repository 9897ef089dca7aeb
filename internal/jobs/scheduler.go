// Package jobs — фоновые задачи по расписанию (cron).
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/features/ledger"
)

// Reconciler сверяет леджер.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]*ledger.Discrepancy, error)
}

// PremiumExpirer снимает истёкшие подписки.
type PremiumExpirer interface {
	ExpirePremium(ctx context.Context, now time.Time) (int64, error)
}

// QuizSweeper чистит просроченные вопросы квиза.
type QuizSweeper interface {
	SweepQuizzes() int
}

// Расписание задач
const (
	specReconcile = "0 * * * *"    // каждый час
	specPremium   = "5 0 * * *"    // ежедневно в 00:05
	specQuizzes   = "*/10 * * * *" // каждые 10 минут

	jobTimeout = 5 * time.Minute
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	ledger  Reconciler
	premium PremiumExpirer
	quizzes QuizSweeper
	clock   func() time.Time
}

// NewScheduler создаёт планировщик в часовом поясе loc.
func NewScheduler(loc *time.Location, l Reconciler, p PremiumExpirer, q QuizSweeper) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		ledger:  l,
		premium: p,
		quizzes: q,
		clock:   time.Now,
	}
}

// Start регистрирует задачи и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		spec string
		fn   func(context.Context)
	}{
		{specReconcile, s.reconcile},
		{specPremium, s.expirePremium},
		{specQuizzes, s.sweepQuizzes},
	}
	for _, j := range jobs {
		fn := j.fn
		if _, err := s.cron.AddFunc(j.spec, func() {
			jctx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			fn(jctx)
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	log.WithField("jobs", len(s.cron.Entries())).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт текущие задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// reconcile — ежечасная сверка. Расхождения логирует сам леджер.
func (s *Scheduler) reconcile(ctx context.Context) {
	found, err := s.ledger.Reconcile(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка сверки леджера")
		return
	}
	if len(found) > 0 {
		log.WithField("discrepancies", len(found)).Error("[CRON] Сверка леджера нашла расхождения")
	}
}

func (s *Scheduler) expirePremium(ctx context.Context) {
	if _, err := s.premium.ExpirePremium(ctx, s.clock()); err != nil {
		log.WithError(err).Error("[CRON] Ошибка снятия премиума")
	}
}

func (s *Scheduler) sweepQuizzes(context.Context) {
	if n := s.quizzes.SweepQuizzes(); n > 0 {
		log.WithField("count", n).Debug("[CRON] Просроченные вопросы удалены")
	}
}
