package social

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/db/postgres"
	"serotonyl.ru/hacker-bot/internal/telemetry"
)

// Store — хранилище профилей. Boost и Follow атомарны на уровне хранилища.
type Store interface {
	Upsert(ctx context.Context, userID int64, handle string, d Draft) (*Profile, bool, error)
	Get(ctx context.Context, userID int64) (*Profile, error)
	ByHandle(ctx context.Context, handle string) (*Profile, error)
	Follow(ctx context.Context, followerID, followedID int64) (*Profile, error)
	Boost(ctx context.Context, userID int64, count int, cost int64) (*BoostResult, error)
}

// Options — параметры сервиса.
type Options struct {
	Timeout time.Duration
	Retry   common.RetryPolicy
	Metrics *telemetry.Instruments
	Rand    *rand.Rand // суффиксы ников
}

// Service управляет соцпрофилями.
type Service struct {
	store Store
	locks *common.KeyedMutex[int64]
	opts  Options

	rngMu sync.Mutex
}

// NewService создаёт сервис. locks — общие блокировки аккаунтов леджера.
func NewService(store Store, locks *common.KeyedMutex[int64], opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = common.DefaultRetryPolicy()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{store: store, locks: locks, opts: opts}
}

var (
	themeColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	handleBaseRe = regexp.MustCompile(`[^a-zA-Z0-9_]+`)
)

// ParseDraft разбирает «bio | avatar | #color». Пустые поля получают
// значения по умолчанию.
func ParseDraft(args string) (Draft, error) {
	d := Draft{Bio: DefaultBio, ThemeColor: DefaultThemeColor}
	parts := strings.Split(args, "|")
	if len(parts) > 3 {
		return Draft{}, fmt.Errorf("%w: больше трёх полей", common.ErrInvalidProfile)
	}
	get := func(i int) string {
		if i < len(parts) {
			return strings.TrimSpace(parts[i])
		}
		return ""
	}

	if bio := get(0); bio != "" {
		if utf8.RuneCountInString(bio) > maxBioLength {
			return Draft{}, fmt.Errorf("%w: био длиннее %d символов", common.ErrInvalidProfile, maxBioLength)
		}
		d.Bio = bio
	}
	if avatar := get(1); avatar != "" {
		u, err := url.ParseRequestURI(avatar)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Draft{}, fmt.Errorf("%w: аватар должен быть http(s)-ссылкой", common.ErrInvalidProfile)
		}
		d.Avatar = avatar
	}
	if color := get(2); color != "" {
		if !themeColorRe.MatchString(color) {
			return Draft{}, fmt.Errorf("%w: цвет в формате #rrggbb", common.ErrInvalidProfile)
		}
		d.ThemeColor = strings.ToLower(color)
	}
	return d, nil
}

// newHandle собирает ник «@name_1234» из username или имени.
func (s *Service) newHandle(username, firstName string) string {
	base := handleBaseRe.ReplaceAllString(username, "")
	if base == "" {
		base = handleBaseRe.ReplaceAllString(firstName, "")
	}
	if base == "" {
		base = "hacker"
	}
	if len(base) > 24 {
		base = base[:24]
	}

	s.rngMu.Lock()
	suffix := 1000 + s.opts.Rand.Intn(9000)
	s.rngMu.Unlock()
	return fmt.Sprintf("@%s_%d", base, suffix)
}

// Create создаёт профиль или обновляет существующий. created=false —
// профиль уже был, ник и подписчики сохранены.
func (s *Service) Create(ctx context.Context, userID int64, username, firstName string, d Draft) (*Profile, bool, error) {
	var (
		p       *Profile
		created bool
	)
	err := s.opts.Retry.Do(ctx, "social.create", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		for attempt := 0; attempt < handleAttempts; attempt++ {
			var err error
			p, created, err = s.store.Upsert(tctx, userID, s.newHandle(username, firstName), d)
			if postgres.IsUniqueViolation(err) {
				continue
			}
			return err
		}
		return fmt.Errorf("не удалось подобрать свободный ник за %d попыток", handleAttempts)
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка создания соцпрофиля")
		return nil, false, err
	}
	if created {
		log.WithFields(log.Fields{"user_id": userID, "handle": p.Handle}).Info("Соцпрофиль создан")
	}
	return p, created, nil
}

// Get возвращает профиль пользователя.
func (s *Service) Get(ctx context.Context, userID int64) (*Profile, error) {
	var p *Profile
	err := s.opts.Retry.Do(ctx, "social.get", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		p, err = s.store.Get(tctx, userID)
		return err
	})
	return p, err
}

// ByHandle ищет профиль по нику; «@» в начале необязателен.
func (s *Service) ByHandle(ctx context.Context, handle string) (*Profile, error) {
	handle = normalizeHandle(handle)
	if handle == "@" {
		return nil, common.ErrProfileNotFound
	}
	var p *Profile
	err := s.opts.Retry.Do(ctx, "social.by_handle", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		p, err = s.store.ByHandle(tctx, handle)
		return err
	})
	return p, err
}

// Follow подписывает пользователя на профиль с ником handle.
// Каждая пара подписчик-цель засчитывается один раз.
func (s *Service) Follow(ctx context.Context, followerID int64, handle string) (*Profile, error) {
	target, err := s.ByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if target.UserID == followerID {
		return nil, common.ErrSelfFollow
	}

	var p *Profile
	err = s.opts.Retry.Do(ctx, "social.follow", func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		p, err = s.store.Follow(tctx, followerID, target.UserID)
		return err
	})
	if err != nil {
		if !errors.Is(err, common.ErrAlreadyFollowing) {
			log.WithError(err).WithFields(log.Fields{
				"follower_id": followerID,
				"followed_id": target.UserID,
			}).Error("Ошибка подписки")
		}
		return nil, err
	}
	log.WithFields(log.Fields{
		"follower_id": followerID,
		"followed_id": p.UserID,
		"followers":   p.Followers,
	}).Debug("Подписка оформлена")
	return p, nil
}

// Boost списывает cost и добавляет count подписчиков одной транзакцией.
// Идёт под той же блокировкой аккаунта, что и остальные проводки.
func (s *Service) Boost(ctx context.Context, userID int64, count int, cost int64) (*BoostResult, error) {
	if count <= 0 || cost <= 0 {
		return nil, common.ErrInvalidAmount
	}

	ctx, span := telemetry.StartSpan(ctx, "social.boost")
	defer span.End()

	var res *BoostResult
	err := s.opts.Retry.Do(ctx, "social.boost", func(ctx context.Context) error {
		unlock := s.locks.Lock(userID)
		defer unlock()

		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var err error
		res, err = s.store.Boost(tctx, userID, count, cost)
		return err
	})

	logger := log.WithFields(log.Fields{"user_id": userID, "count": count, "cost": cost})
	switch {
	case err == nil:
		s.opts.Metrics.LedgerApply(ctx, "follower_boost", telemetry.OutcomeOK)
		logger.WithField("followers", res.Followers).Info("Подписчики накручены")
		return res, nil
	case errors.Is(err, common.ErrInsufficientFunds):
		s.opts.Metrics.LedgerApply(ctx, "follower_boost", telemetry.OutcomeInsufficient)
		return nil, err
	case errors.Is(err, common.ErrNoSocialProfile):
		s.opts.Metrics.LedgerApply(ctx, "follower_boost", telemetry.OutcomeDenied)
		return nil, err
	case errors.Is(err, common.ErrStorageUnavailable):
		s.opts.Metrics.LedgerApply(ctx, "follower_boost", telemetry.OutcomeUnavailable)
		return nil, err
	default:
		s.opts.Metrics.LedgerApply(ctx, "follower_boost", telemetry.OutcomeError)
		logger.WithError(err).Error("Ошибка накрутки подписчиков")
		return nil, err
	}
}

func normalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(h, "@") {
		h = "@" + h
	}
	return h
}
