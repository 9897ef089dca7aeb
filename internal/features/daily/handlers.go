package daily

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/features/rewards"
)

// Handler обрабатывает /daily.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleDaily — /daily.
func (h *Handler) HandleDaily(ctx context.Context, chatID, userID int64) {
	h.sendMessage(chatID, h.ClaimText(ctx, userID))
}

// ClaimText выдаёт бонус и возвращает текст ответа. Используется и в /start.
func (h *Handler) ClaimText(ctx context.Context, userID int64) string {
	res, err := h.service.Claim(ctx, userID)
	var notYet *NotYetError
	switch {
	case err == nil:
		return FormatResult(res)
	case errors.As(err, &notYet):
		return fmt.Sprintf("⏳ Daily bonus already claimed. Next one in %s", common.FormatWait(notYet.RetryAfter))
	case errors.Is(err, common.ErrDailyAlreadyClaimed):
		return "⏳ Daily bonus already claimed"
	default:
		log.WithError(err).WithField("user_id", userID).Error("Ошибка /daily")
		return "❌ Couldn't claim your daily bonus, try again later"
	}
}

// FormatResult рендерит начисление.
func FormatResult(r *Result) string {
	text := fmt.Sprintf("🎁 Daily login: %s\n", common.FormatCreditsDelta(r.Draw))
	if r.StreakBonus > 0 {
		text += fmt.Sprintf("🔥 %d-day streak bonus: %s\n", rewards.StreakLength, common.FormatCreditsDelta(r.StreakBonus))
	} else {
		text += fmt.Sprintf("🔥 Streak: %d/%d\n", r.Streak, rewards.StreakLength)
	}
	text += fmt.Sprintf("💰 Balance: %s", common.FormatCredits(r.Balance))
	return text
}

func (h *Handler) sendMessage(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
