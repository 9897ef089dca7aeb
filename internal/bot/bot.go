// Package bot — long polling Telegram и маршрутизация апдейтов по фичам.
package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/bot/filters"
	"serotonyl.ru/hacker-bot/internal/bot/middleware"
	"serotonyl.ru/hacker-bot/internal/config"
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
)

// Handlers — обработчики фич, которые нужны роутеру.
type Handlers struct {
	Ledger   *ledger.Handler
	Quota    *quota.Handler
	Daily    *daily.Handler
	Referral *referral.Handler
	Premium  *premium.Handler
	Game     *game.Handler
	Social   *social.Handler
	Market   *market.Handler
	Admin    *admin.Handler
}

// Bot — главная структура бота.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter
	parser      *CommandParser

	accounts *accounts.Service
	referral *referral.Service
	h        Handlers

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	accountService *accounts.Service,
	referralService *referral.Service,
	handlers Handlers,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:         api,
		cfg:         cfg,
		chatFilter:  filters.NewChatFilter(cfg.AllowedChatIDs),
		rateLimiter: middleware.NewRateLimiter(cfg.AntifloodRPS, cfg.AntifloodBurst),
		parser:      NewCommandParser(api.Self.UserName),
		accounts:    accountService,
		referral:    referralService,
		h:           handlers,
		inflight:    make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling и блокируется до отмены ctx.
// Перед возвратом дожидается обработчиков, которые ещё работают.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds
	u.AllowedUpdates = []string{"message", "pre_checkout_query"}

	updates := b.api.GetUpdatesChan(u)
	defer b.rateLimiter.Close()

	log.WithFields(log.Fields{
		"username":     b.api.Self.UserName,
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается...")
			b.api.StopReceivingUpdates()
			b.drain()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				b.drain()
				return
			}

			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// drain ждёт, пока освободятся все слоты семафора.
func (b *Bot) drain() {
	for i := 0; i < cap(b.inflight); i++ {
		b.inflight <- struct{}{}
	}
}

// handleUpdate обрабатывает одно обновление.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	// платёжный поток идёт мимо антифлуда: Telegram ждёт ответа 10 секунд
	if update.PreCheckoutQuery != nil {
		b.h.Premium.HandlePreCheckout(update.PreCheckoutQuery)
		return
	}

	message := update.Message
	if message == nil {
		return
	}
	if message.SuccessfulPayment != nil {
		b.h.Premium.HandleSuccessfulPayment(ctx, message)
		return
	}
	if message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(message) {
		return
	}
	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	if err := b.accounts.Ensure(ctx, accounts.Profile{
		UserID:    userID,
		Username:  message.From.UserName,
		FirstName: message.From.FirstName,
	}); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Ensure account failed")
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)

	// в личке обычный текст может быть паролем после /login
	if !isCommand && message.Chat.IsPrivate() {
		b.h.Admin.HandleStateMessage(ctx, chatID, userID, message.MessageID, message.Text)
		return
	}
	if !isCommand {
		return
	}

	log.WithFields(log.Fields{
		"cmd":     cmd,
		"user_id": userID,
	}).Debug("parsed command")

	b.routeCommand(ctx, message, cmd, args)
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
