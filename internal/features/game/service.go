package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/config"
	"serotonyl.ru/hacker-bot/internal/features/ledger"
	"serotonyl.ru/hacker-bot/internal/features/quota"
	"serotonyl.ru/hacker-bot/internal/features/rewards"
	"serotonyl.ru/hacker-bot/internal/features/social"
)

// Ledger — то, что игре нужно от леджера.
type Ledger interface {
	Apply(ctx context.Context, accountID, amount int64, reason ledger.Reason, ref string) (int64, error)
	BalanceOf(ctx context.Context, accountID int64) (int64, error)
}

// Quota — то, что игре нужно от трекера квот.
type Quota interface {
	Require(ctx context.Context, accountID int64, command string, limit int, period time.Duration) (quota.Decision, error)
	Release(ctx context.Context, accountID int64, command string, windowStart time.Time) error
}

// Booster списывает cost и добавляет count подписчиков одной транзакцией.
type Booster interface {
	Boost(ctx context.Context, userID int64, count int, cost int64) (*social.BoostResult, error)
}

// Journal — журнал игровых событий.
type Journal interface {
	Record(ctx context.Context, e *LogEntry) error
	Recent(ctx context.Context, userID int64, limit int) ([]*LogEntry, error)
}

// Options — зависимости, которые удобно подменять в тестах.
type Options struct {
	Clock func() time.Time
	Rand  *rand.Rand
}

// Service — игровые команды.
type Service struct {
	ledger  Ledger
	quota   Quota
	booster Booster
	journal Journal
	content ContentSource
	catalog *config.Catalog
	quizzes *quizStates
	clock   func() time.Time

	quizLocks *common.KeyedMutex[int64]

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService создаёт игровой сервис.
func NewService(l Ledger, q Quota, booster Booster, journal Journal, content ContentSource, catalog *config.Catalog, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		ledger:  l,
		quota:   q,
		booster: booster,
		journal: journal,
		content: content,
		catalog: catalog,
		quizzes: newQuizStates(),
		clock:   opts.Clock,
		rng:     opts.Rand,

		quizLocks: common.NewKeyedMutex[int64](),
	}
}

// Cost — стоимость команды для count единиц.
func (s *Service) Cost(command string, count int) int64 {
	cmd, _ := s.catalog.Command(command)
	return cmd.Cost(count)
}

// Bounds — допустимый диапазон количества для команды.
func (s *Service) Bounds(command string) (int, int) {
	cmd, _ := s.catalog.Command(command)
	return cmd.MinCount, cmd.MaxCount
}

// Exploit — /exploit <target>: скрипт за 50 кредитов, 5 раз в сутки.
func (s *Service) Exploit(ctx context.Context, userID int64, target string) (*ExploitResult, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, common.ErrEmptyTarget
	}

	// контент — до квоты и проводки, без удержания блокировок
	script, err := s.content.ExploitScript(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации скрипта: %w", err)
	}

	cost, balance, err := s.spend(ctx, userID, config.CommandExploit, 1, s.charge(userID, ledger.ReasonExploitPurchase, target))
	s.record(ctx, userID, config.CommandExploit, err, -cost, map[string]any{"target": target})
	if err != nil {
		return nil, err
	}
	return &ExploitResult{Target: target, Script: script, Cost: cost, Balance: balance}, nil
}

// Spam — /spam <count>: реферальная рассылка, count × 5 кредитов.
func (s *Service) Spam(ctx context.Context, userID int64, count int) (*SpendResult, error) {
	return s.spendCount(ctx, userID, config.CommandSpam, count, ledger.ReasonSpamBlast)
}

// Boost — /boost <count>: накрутка подписчиков, count / 10 кредитов.
// Списание и рост счётчика идут одной транзакцией в соцпрофиле.
func (s *Service) Boost(ctx context.Context, userID int64, count int) (*BoostResult, error) {
	if err := s.checkCount(config.CommandBoost, count); err != nil {
		return nil, err
	}

	var boosted *social.BoostResult
	cost, balance, err := s.spend(ctx, userID, config.CommandBoost, count, func(ctx context.Context, cost int64) (int64, error) {
		res, err := s.booster.Boost(ctx, userID, count, cost)
		if err != nil {
			return 0, err
		}
		boosted = res
		return res.Balance, nil
	})
	s.record(ctx, userID, config.CommandBoost, err, -cost, map[string]any{"count": count})
	if err != nil {
		return nil, err
	}
	return &BoostResult{
		SpendResult: SpendResult{Count: count, Cost: cost, Balance: balance},
		Handle:      boosted.Handle,
		Followers:   boosted.Followers,
	}, nil
}

func (s *Service) checkCount(command string, count int) error {
	minCount, maxCount := s.Bounds(command)
	if count < minCount || (maxCount > 0 && count > maxCount) {
		return fmt.Errorf("%w: %d, допустимо %d..%d", common.ErrInvalidCount, count, minCount, maxCount)
	}
	return nil
}

func (s *Service) spendCount(ctx context.Context, userID int64, command string, count int, reason ledger.Reason) (*SpendResult, error) {
	if err := s.checkCount(command, count); err != nil {
		return nil, err
	}

	cost, balance, err := s.spend(ctx, userID, command, count, s.charge(userID, reason, fmt.Sprintf("x%d", count)))
	s.record(ctx, userID, command, err, -cost, map[string]any{"count": count})
	if err != nil {
		return nil, err
	}
	return &SpendResult{Count: count, Cost: cost, Balance: balance}, nil
}

// chargeFunc проводит списание cost и возвращает новый баланс.
type chargeFunc func(ctx context.Context, cost int64) (int64, error)

// charge — обычное списание через леджер.
func (s *Service) charge(userID int64, reason ledger.Reason, ref string) chargeFunc {
	return func(ctx context.Context, cost int64) (int64, error) {
		return s.ledger.Apply(ctx, userID, -cost, reason, ref)
	}
}

// spend — общий путь платной команды:
//  1. баланс меньше цены — отказ сразу, квота не тратится;
//  2. квота (если команда лимитирована);
//  3. списание через charge; при неудаче вызов возвращается в квоту.
func (s *Service) spend(ctx context.Context, userID int64, command string, count int, charge chargeFunc) (int64, int64, error) {
	cmd, ok := s.catalog.Command(command)
	if !ok {
		return 0, 0, fmt.Errorf("команда %q не описана в каталоге", command)
	}
	cost := cmd.Cost(count)
	if cost <= 0 {
		return 0, 0, fmt.Errorf("%w: стоимость %d", common.ErrInvalidAmount, cost)
	}

	balance, err := s.ledger.BalanceOf(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	if balance < cost {
		return 0, 0, fmt.Errorf("%w: нужно %d, есть %d", common.ErrInsufficientFunds, cost, balance)
	}

	var decision quota.Decision
	if cmd.Limited() {
		decision, err = s.quota.Require(ctx, userID, command, cmd.Limit, cmd.Period)
		if err != nil {
			return 0, 0, err
		}
	}

	balance, err = charge(ctx, cost)
	if err != nil {
		if cmd.Limited() {
			s.release(ctx, userID, command, decision)
		}
		return 0, 0, err
	}
	return cost, balance, nil
}

// release возвращает вызов в квоту. Запрос пользователя к этому моменту
// может быть отменён, поэтому используется свой контекст.
func (s *Service) release(ctx context.Context, userID int64, command string, d quota.Decision) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.quota.Release(rctx, userID, command, d.WindowStart); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id": userID,
			"command": command,
		}).Error("Квота не возвращена после неудачного списания")
	}
}

// CryptoHack — /cryptohack [tier]: один бросок по таблице сложности.
func (s *Service) CryptoHack(ctx context.Context, userID int64, tierName string) (*HackResult, error) {
	tier, err := rewards.ParseTier(tierName)
	if err != nil {
		return nil, err
	}
	cmd, _ := s.catalog.Command(config.CommandCryptoHack)

	var decision quota.Decision
	if cmd.Limited() {
		decision, err = s.quota.Require(ctx, userID, config.CommandCryptoHack, cmd.Limit, cmd.Period)
		if err != nil {
			s.record(ctx, userID, config.CommandCryptoHack, err, 0, map[string]any{"tier": tier})
			return nil, err
		}
	}

	s.rngMu.Lock()
	hack, err := rewards.CryptoHack(s.rng, tier)
	s.rngMu.Unlock()
	if err != nil {
		return nil, err
	}

	res := &HackResult{HackResult: hack, Balance: -1}
	if hack.Payout > 0 {
		res.Balance, err = s.ledger.Apply(ctx, userID, hack.Payout, ledger.ReasonCryptoHack, string(tier))
		if err != nil {
			if cmd.Limited() {
				s.release(ctx, userID, config.CommandCryptoHack, decision)
			}
			s.record(ctx, userID, config.CommandCryptoHack, err, 0, map[string]any{"tier": tier})
			return nil, err
		}
	}

	outcome := OutcomeLost
	if hack.Success {
		outcome = OutcomeWon
	}
	s.journalWrite(ctx, userID, config.CommandCryptoHack, outcome, hack.Payout, map[string]any{"tier": tier})
	return res, nil
}

// StartQuiz — /quiz [tier]. Если вопрос уже ждёт ответа, возвращает его,
// не тратя квоту. Проверка, квота и запись вопроса идут под блокировкой
// пользователя: параллельные /quiz получают один и тот же вопрос.
func (s *Service) StartQuiz(ctx context.Context, userID int64, tierName string) (*PendingQuiz, error) {
	if p := s.quizzes.get(userID, s.clock()); p != nil {
		return p, nil
	}

	tier, err := rewards.ParseTier(tierName)
	if err != nil {
		return nil, err
	}
	q, err := s.content.QuizQuestion(ctx, tier)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения вопроса: %w", err)
	}

	unlock := s.quizLocks.Lock(userID)
	defer unlock()

	// пока ждали контент, вопрос мог выдать параллельный вызов
	if p := s.quizzes.get(userID, s.clock()); p != nil {
		return p, nil
	}

	cmd, _ := s.catalog.Command(config.CommandQuiz)
	if cmd.Limited() {
		if _, err := s.quota.Require(ctx, userID, config.CommandQuiz, cmd.Limit, cmd.Period); err != nil {
			s.record(ctx, userID, config.CommandQuiz, err, 0, map[string]any{"tier": tier})
			return nil, err
		}
	}

	p := &PendingQuiz{Question: q, ExpiresAt: s.clock().Add(quizTTL)}
	s.quizzes.set(userID, p)
	s.journalWrite(ctx, userID, config.CommandQuiz, OutcomeOK, 0, map[string]any{"tier": tier, "prompt": q.Prompt})
	return p, nil
}

// Answer — /answer <n>, n с единицы. Вопрос закрывается после первого ответа.
func (s *Service) Answer(ctx context.Context, userID int64, choice int) (*AnswerResult, error) {
	p := s.quizzes.take(userID, s.clock())
	if p == nil {
		return nil, common.ErrNoActiveQuiz
	}
	q := p.Question
	if choice < 1 || choice > len(q.Options) {
		s.quizzes.set(userID, p)
		return nil, fmt.Errorf("%w: вариант %d из %d", common.ErrInvalidCount, choice, len(q.Options))
	}

	res := &AnswerResult{Correct: choice-1 == q.Answer, Right: q.Answer, Balance: -1}
	if !res.Correct {
		s.journalWrite(ctx, userID, "answer", OutcomeLost, 0, map[string]any{"tier": q.Tier, "choice": choice})
		return res, nil
	}

	reward, err := rewards.QuizReward(q.Tier)
	if err != nil {
		return nil, err
	}
	res.Reward = reward
	res.Balance, err = s.ledger.Apply(ctx, userID, reward, ledger.ReasonQuizReward, string(q.Tier))
	if err != nil {
		// начисление не прошло: вопрос возвращается, можно ответить ещё раз
		s.quizzes.set(userID, p)
		return nil, err
	}
	s.journalWrite(ctx, userID, "answer", OutcomeWon, reward, map[string]any{"tier": q.Tier, "choice": choice})
	return res, nil
}

// Recent — последние игровые события пользователя.
func (s *Service) Recent(ctx context.Context, userID int64, limit int) ([]*LogEntry, error) {
	return s.journal.Recent(ctx, userID, limit)
}

// SweepQuizzes удаляет просроченные вопросы; вызывается планировщиком.
func (s *Service) SweepQuizzes() int {
	return s.quizzes.sweep(s.clock())
}

// record пишет исход платной команды по ошибке err.
func (s *Service) record(ctx context.Context, userID int64, command string, err error, amount int64, detail map[string]any) {
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, common.ErrQuotaExceeded):
		outcome, amount = OutcomeDenied, 0
	case errors.Is(err, common.ErrInsufficientFunds):
		outcome, amount = OutcomeInsufficient, 0
	case errors.Is(err, common.ErrNoSocialProfile):
		outcome, amount = OutcomeDenied, 0
	default:
		outcome, amount = OutcomeFailed, 0
	}
	s.journalWrite(ctx, userID, command, outcome, amount, detail)
}

func (s *Service) journalWrite(ctx context.Context, userID int64, command, outcome string, amount int64, detail map[string]any) {
	raw, err := json.Marshal(detail)
	if err != nil {
		raw = json.RawMessage(`{}`)
	}
	e := &LogEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Command:   command,
		Outcome:   outcome,
		Amount:    amount,
		Detail:    raw,
		CreatedAt: s.clock(),
	}
	if err := s.journal.Record(ctx, e); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id": userID,
			"command": command,
		}).Warn("Не удалось записать игровое событие")
	}
}
