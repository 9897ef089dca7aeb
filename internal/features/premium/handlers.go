package premium

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
)

// Handler — /premium, pre-checkout и успешная оплата.
type Handler struct {
	service       *Service
	bot           *tgbotapi.BotAPI
	providerToken string
	loc           *time.Location
}

func NewHandler(service *Service, bot *tgbotapi.BotAPI, providerToken string, loc *time.Location) *Handler {
	return &Handler{service: service, bot: bot, providerToken: providerToken, loc: loc}
}

// HandlePremium — /premium [basic|pro]: отправляет счёт в личку.
func (h *Handler) HandlePremium(chatID, userID int64, args string) {
	if h.providerToken == "" {
		h.sendMessage(chatID, "💳 Payments are not configured")
		return
	}

	tier, err := ParseTier(args)
	if err != nil {
		h.sendMessage(chatID, TiersText())
		return
	}

	invoice := tgbotapi.NewInvoice(
		userID,
		tier.Title(),
		fmt.Sprintf("Unlock %s features and %d credits for 30 days!", tier.Name, tier.Bonus),
		tier.Payload(),
		h.providerToken,
		tier.Name,
		h.service.Currency(),
		[]tgbotapi.LabeledPrice{{Label: tier.Title(), Amount: tier.Price}},
	)
	invoice.SuggestedTipAmounts = []int{}

	if _, err := h.bot.Send(invoice); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка отправки счёта")
		h.sendMessage(chatID, "❌ Couldn't create an invoice. Start a private chat with me and try again")
		return
	}
	if chatID != userID {
		h.sendMessage(chatID, "📬 Invoice sent to your DM")
	}
}

// HandlePreCheckout подтверждает или отклоняет оплату до списания.
func (h *Handler) HandlePreCheckout(q *tgbotapi.PreCheckoutQuery) {
	cfg := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}
	if _, err := h.service.ValidateCheckout(q.InvoicePayload, q.Currency, q.TotalAmount); err != nil {
		log.WithError(err).WithField("user_id", q.From.ID).Warn("Pre-checkout отклонён")
		cfg.OK = false
		cfg.ErrorMessage = "This invoice is no longer valid, request a new one with /premium"
	}
	if _, err := h.bot.Request(cfg); err != nil {
		log.WithError(err).Error("Ошибка ответа на pre-checkout")
	}
}

// HandleSuccessfulPayment зачисляет оплату.
func (h *Handler) HandleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	sp := msg.SuccessfulPayment
	g, err := h.service.Grant(ctx, Payment{
		UserID:           msg.From.ID,
		Payload:          sp.InvoicePayload,
		Currency:         sp.Currency,
		TotalAmount:      sp.TotalAmount,
		ChargeID:         sp.TelegramPaymentChargeID,
		ProviderChargeID: sp.ProviderPaymentChargeID,
	})
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ Payment received but not applied yet. An admin will sort it out")
		return
	}
	if g.Duplicate {
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf(
		"🎉 %s unlocked until %s! You got %s.\n💰 Balance: %s",
		g.Tier.Title(), common.FormatDateTime(g.PremiumUntil, h.loc),
		common.FormatCredits(g.Bonus), common.FormatCredits(g.Balance),
	))
}

// TiersText — список пропусков.
func TiersText() string {
	var sb strings.Builder
	sb.WriteString("💎 Hacker Pass tiers:\n\n")
	for _, name := range TierNames {
		t := Tiers[name]
		fmt.Fprintf(&sb, "• %s: %d.%02d, +%s, 30 days\n", name, t.Price/100, t.Price%100, common.FormatCredits(t.Bonus))
	}
	sb.WriteString("\nUsage: /premium basic|pro")
	return sb.String()
}

func (h *Handler) sendMessage(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
