package market

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
)

// Handler обрабатывает /submitscript, /market и /rate.
type Handler struct {
	service  *Service
	bot      *tgbotapi.BotAPI
	adminIDs []int64
}

// NewHandler создаёт обработчик. adminIDs получают уведомления о новых заявках.
func NewHandler(service *Service, bot *tgbotapi.BotAPI, adminIDs []int64) *Handler {
	return &Handler{service: service, bot: bot, adminIDs: adminIDs}
}

// HandleSubmit — /submitscript Title | Description | Script.
func (h *Handler) HandleSubmit(ctx context.Context, chatID int64, from *tgbotapi.User, args string) {
	sub, err := ParseSubmission(args)
	if err != nil {
		h.sendMessage(chatID, "Usage: /submitscript Title | Description | Script")
		return
	}
	script, err := h.service.Submit(ctx, from.ID, sub)
	if err != nil {
		h.sendMessage(chatID, errorText(err))
		return
	}

	author := from.UserName
	if author == "" {
		author = fmt.Sprintf("id%d", from.ID)
	}
	notice := fmt.Sprintf("🆕 Скрипт #%d от @%s\n%s\n%s\n\n<pre>%s</pre>\n\nОдобрить: /approve %d",
		script.ID, escapeHTML(author), escapeHTML(script.Title), escapeHTML(script.Description),
		escapeHTML(script.Body), script.ID)
	for _, adminID := range h.adminIDs {
		msg := tgbotapi.NewMessage(adminID, notice)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := h.bot.Send(msg); err != nil {
			log.WithError(err).WithField("admin_id", adminID).Warn("Не удалось уведомить админа о заявке")
		}
	}

	h.sendMessage(chatID, fmt.Sprintf("📨 Script #%d submitted for review. Price once approved: %s",
		script.ID, common.FormatCredits(script.Price)))
}

// HandleMarket — /market: одобренные скрипты по рейтингу.
func (h *Handler) HandleMarket(ctx context.Context, chatID int64) {
	scripts, err := h.service.List(ctx)
	if err != nil {
		h.sendMessage(chatID, errorText(err))
		return
	}
	h.sendMessage(chatID, FormatMarket(scripts))
}

// HandleRate — /rate <id> <1-5>.
func (h *Handler) HandleRate(ctx context.Context, chatID, userID int64, args string) {
	id, stars, err := ParseRating(args)
	if err != nil {
		h.sendMessage(chatID, "Usage: /rate <script id> <1-5>")
		return
	}
	script, err := h.service.Rate(ctx, userID, id, stars)
	if err != nil {
		h.sendMessage(chatID, errorText(err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("⭐ Rated %q: %s", script.Title, FormatRating(script)))
}

// FormatMarket рендерит витрину.
func FormatMarket(scripts []*Script) string {
	if len(scripts) == 0 {
		return "🛒 No scripts available yet. Submit yours with /submitscript"
	}
	var sb strings.Builder
	sb.WriteString("🛒 Script Marketplace\n\n")
	for _, s := range scripts {
		fmt.Fprintf(&sb, "#%d %s: %s | %s | ⭐ %s\n",
			s.ID, s.Title, s.Description, common.FormatCredits(s.Price), FormatRating(s))
	}
	sb.WriteString("\nRate a script: /rate <id> <1-5>")
	return sb.String()
}

func errorText(err error) string {
	switch {
	case errors.Is(err, common.ErrScriptNotFound):
		return "🔍 Script not found"
	case errors.Is(err, common.ErrOwnScript):
		return "🙅 You can't rate your own script"
	case errors.Is(err, common.ErrInvalidRating):
		return "Rating must be from 1 to 5"
	case errors.Is(err, common.ErrStorageUnavailable):
		return "⚠️ The grid is down, try again in a minute"
	default:
		log.WithError(err).Error("Ошибка команды маркетплейса")
		return "❌ Something went wrong, try again later"
	}
}

func escapeHTML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

func (h *Handler) sendMessage(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
