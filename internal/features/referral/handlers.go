package referral

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
)

// Handler обрабатывает /ref и код в /start.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleRef — /ref: код, ссылка и число приглашённых.
func (h *Handler) HandleRef(ctx context.Context, chatID, userID int64) {
	code, err := h.service.CodeFor(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка выдачи реферального кода")
		h.sendMessage(chatID, "❌ Couldn't issue your referral code, try again later")
		return
	}
	invited, err := h.service.Invited(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось посчитать приглашённых")
	}

	h.sendMessage(chatID, fmt.Sprintf(
		"🤝 Your referral code: %s\n🔗 %s\n\nInvited hackers: %d\nYou get +10 credits, they get +5. Codes are valid for 7 days.",
		code.Code, DeepLink(h.bot.Self.UserName, code.Code), invited,
	))
}

// RedeemText гасит код из /start и возвращает текст ответа.
func (h *Handler) RedeemText(ctx context.Context, userID int64, code string) string {
	red, err := h.service.Redeem(ctx, userID, code)
	switch {
	case err == nil:
		return fmt.Sprintf("🤝 Referral accepted: %s for you, your friend gets %s",
			common.FormatCreditsDelta(red.Referee), common.FormatCredits(red.Referrer))
	case errors.Is(err, common.ErrReferralNotFound):
		return "❓ Unknown referral code"
	case errors.Is(err, common.ErrReferralExpired):
		return "⌛ This referral code has expired"
	case errors.Is(err, common.ErrSelfReferral):
		return "🙃 You can't use your own referral code"
	case errors.Is(err, common.ErrReferralAlreadyRedeemed):
		return "ℹ️ You've already used a referral code"
	default:
		return "❌ Couldn't apply the referral code, try again later"
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
