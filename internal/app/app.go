// Package app собирает приложение: БД, Redis, сервисы, обработчики,
// планировщик и ops HTTP-сервер.
package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/bot"
	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/config"
	"serotonyl.ru/hacker-bot/internal/db/postgres"
	"serotonyl.ru/hacker-bot/internal/db/redis"
	"serotonyl.ru/hacker-bot/internal/features/accounts"
	"serotonyl.ru/hacker-bot/internal/features/admin"
	"serotonyl.ru/hacker-bot/internal/features/daily"
	"serotonyl.ru/hacker-bot/internal/features/game"
	"serotonyl.ru/hacker-bot/internal/features/ledger"
	"serotonyl.ru/hacker-bot/internal/features/market"
	"serotonyl.ru/hacker-bot/internal/features/premium"
	"serotonyl.ru/hacker-bot/internal/features/quota"
	"serotonyl.ru/hacker-bot/internal/features/referral"
	"serotonyl.ru/hacker-bot/internal/features/social"
	"serotonyl.ru/hacker-bot/internal/httpapi"
	"serotonyl.ru/hacker-bot/internal/jobs"
	"serotonyl.ru/hacker-bot/internal/telemetry"
)

// redisKeyPrefix — префикс ключей квот в Redis.
const redisKeyPrefix = "hackerbot:"

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	HTTP      *httpapi.Server
	DB        *pgxpool.Pool
	Redis     *goredis.Client // nil, если квоты в PostgreSQL
	BotAPI    *tgbotapi.BotAPI
}

// New создаёт и связывает компоненты.
func New(ctx context.Context, cfg *config.Config, catalog *config.Catalog) (*App, error) {
	// === 1. Хранилища ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool, migrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb, err = redis.NewClient(ctx, cfg.RedisURL, cfg.StorageTimeout)
		if err != nil {
			pool.Close()
			return nil, err
		}
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		(&App{DB: pool, Redis: rdb}).Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development" && cfg.AppLogLevel == "trace"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Общие зависимости ===
	metrics := telemetry.NewInstruments()
	retry := common.RetryPolicy{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBaseDelay,
		OnRetry:   metrics.StorageRetry,
	}
	accountLocks := common.NewKeyedMutex[int64]()
	quotaLocks := common.NewKeyedMutex[string]()
	loc := common.LoadLocation(cfg.AppTimezone)
	seed := time.Now().UnixNano()

	var quotaStore quota.Store
	switch cfg.QuotaBackend {
	case config.QuotaBackendRedis:
		quotaStore = quota.NewRedisStore(rdb, redisKeyPrefix)
	default:
		quotaStore = quota.NewRepository(pool)
	}
	log.WithField("backend", cfg.QuotaBackend).Info("Хранилище квот выбрано")

	// === 4. Сервисы ===
	accountService := accounts.NewService(accounts.NewRepository(pool), retry, cfg.StorageTimeout)
	ledgerService := ledger.NewService(ledger.NewRepository(pool), accountLocks, ledger.Options{
		Timeout: cfg.StorageTimeout,
		Retry:   retry,
		Metrics: metrics,
	})
	quotaService := quota.NewService(quotaStore, quotaLocks, quota.Options{
		Timeout: cfg.StorageTimeout,
		Retry:   retry,
		Metrics: metrics,
	})
	dailyService := daily.NewService(daily.NewRepository(pool), accountLocks, daily.Options{
		Timeout: cfg.StorageTimeout,
		Retry:   retry,
		Metrics: metrics,
		Rand:    rand.New(rand.NewSource(seed)),
	})
	referralService := referral.NewService(referral.NewRepository(pool), accountLocks, referral.Options{
		Timeout: cfg.StorageTimeout,
		Retry:   retry,
		Metrics: metrics,
	})
	premiumService := premium.NewService(premium.NewRepository(pool), accountLocks, premium.Options{
		Currency: cfg.PaymentCurrency,
		Timeout:  cfg.StorageTimeout,
		Retry:    retry,
		Metrics:  metrics,
	})
	socialService := social.NewService(social.NewRepository(pool), accountLocks, social.Options{
		Timeout: cfg.StorageTimeout,
		Retry:   retry,
		Metrics: metrics,
		Rand:    rand.New(rand.NewSource(seed + 3)),
	})
	marketService := market.NewService(market.NewRepository(pool), market.Options{
		Timeout: cfg.StorageTimeout,
		Retry:   retry,
	})
	gameService := game.NewService(
		ledgerService, quotaService, socialService, game.NewRepository(pool),
		game.NewTemplateSource(rand.New(rand.NewSource(seed+1))), catalog,
		game.Options{Rand: rand.New(rand.NewSource(seed + 2))},
	)
	adminService := admin.NewService(admin.NewRepository(pool), ledgerService, accountService, marketService, admin.Options{
		AdminIDs:     cfg.AdminIDs,
		PasswordHash: cfg.AdminPasswordHash,
		Retry:        retry,
	})

	// === 5. Обработчики и бот ===
	b := bot.New(botAPI, cfg, accountService, referralService, bot.Handlers{
		Ledger:   ledger.NewHandler(ledgerService, botAPI, loc),
		Quota:    quota.NewHandler(quotaService, catalog, botAPI),
		Daily:    daily.NewHandler(dailyService, botAPI),
		Referral: referral.NewHandler(referralService, botAPI),
		Premium:  premium.NewHandler(premiumService, botAPI, cfg.PaymentProviderToken, loc),
		Game:     game.NewHandler(gameService, botAPI, loc),
		Social:   social.NewHandler(socialService, botAPI),
		Market:   market.NewHandler(marketService, botAPI, cfg.AdminIDs),
		Admin:    admin.NewHandler(adminService, botAPI),
	})

	// === 6. Фон и ops ===
	scheduler := jobs.NewScheduler(loc, ledgerService, accountService, gameService)

	checks := map[string]httpapi.Pinger{"postgres": pool}
	if rdb != nil {
		checks["redis"] = httpapi.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	metricsHandler := telemetry.Handler()
	if !cfg.MetricsEnabled {
		metricsHandler = nil
	}
	server := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewRouter(checks, metricsHandler))

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		HTTP:      server,
		DB:        pool,
		Redis:     rdb,
		BotAPI:    botAPI,
	}, nil
}

// Close освобождает соединения.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	a.DB.Close()
}
