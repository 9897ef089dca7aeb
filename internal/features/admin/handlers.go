package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/features/market"
)

// Handler обрабатывает админ-команды. Все они работают только в личке.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleLogin — /login [password]. Без аргумента пароль ждём следующим сообщением.
func (h *Handler) HandleLogin(ctx context.Context, chatID, userID int64, messageID int, args string) {
	if !h.service.IsAdmin(userID) {
		h.sendMessage(chatID, "⛔ "+common.ErrNotAdmin.Error())
		return
	}
	password := strings.TrimSpace(args)
	if password == "" {
		h.service.SetState(userID, StateAwaitingPassword)
		h.sendMessage(chatID, "🔐 Введите пароль:")
		return
	}
	h.login(ctx, chatID, userID, messageID, password)
}

// HandleStateMessage обрабатывает обычный текст от админа, если идёт диалог.
// Возвращает false, если сообщение не относится к админке.
func (h *Handler) HandleStateMessage(ctx context.Context, chatID, userID int64, messageID int, text string) bool {
	if !h.service.IsAdmin(userID) {
		return false
	}
	state := h.service.GetState(userID)
	if state == nil || state.Name != StateAwaitingPassword {
		return false
	}
	h.login(ctx, chatID, userID, messageID, strings.TrimSpace(text))
	return true
}

func (h *Handler) login(ctx context.Context, chatID, userID int64, messageID int, password string) {
	h.service.ClearState(userID)
	// пароль не должен оставаться в истории чата
	if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		log.WithError(err).Debug("Не удалось удалить сообщение с паролем")
	}

	if err := h.service.Login(ctx, userID, password); err != nil {
		h.sendMessage(chatID, "❌ "+h.errorText(err))
		return
	}
	h.sendMessage(chatID, "✅ Аутентификация успешна. Сессия на 24 часа.\n\n"+
		"/adjust <id|@username> <±сумма> [заметка]\n/audit\n/approve <id скрипта>\n/admindash\n/logout")
}

// HandleLogout — /logout.
func (h *Handler) HandleLogout(ctx context.Context, chatID, userID int64) {
	if err := h.service.Logout(ctx, userID); err != nil {
		h.sendMessage(chatID, "❌ "+h.errorText(err))
		return
	}
	h.sendMessage(chatID, "👋 Сессия закрыта")
}

// HandleAdjust — /adjust <id|@username> <±amount> [note].
func (h *Handler) HandleAdjust(ctx context.Context, chatID, userID int64, args string) {
	target, amount, note, err := ParseAdjust(args)
	if err != nil {
		h.sendMessage(chatID, "Использование: /adjust <id|@username> <±сумма> [заметка]")
		return
	}
	adj, err := h.service.Adjust(ctx, userID, target, amount, note)
	if err != nil {
		h.sendMessage(chatID, "❌ "+h.errorText(err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ %s: %s\nБаланс: %s",
		adj.Target, common.FormatCreditsDelta(adj.Amount), common.FormatCredits(adj.Balance)))
}

// HandleAudit — /audit: сверка балансов с проводками.
func (h *Handler) HandleAudit(ctx context.Context, chatID, userID int64) {
	found, err := h.service.Audit(ctx, userID)
	if err != nil {
		h.sendMessage(chatID, "❌ "+h.errorText(err))
		return
	}
	if len(found) == 0 {
		h.sendMessage(chatID, "✅ Леджер сходится, расхождений нет")
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🚨 Расхождений: %d\n\n", len(found))
	for _, d := range found {
		fmt.Fprintf(&sb, "• %d: баланс %d, сумма проводок %d\n", d.AccountID, d.Balance, d.EntriesSum)
	}
	h.sendMessage(chatID, sb.String())
}

// HandleApprove — /approve <id>.
func (h *Handler) HandleApprove(ctx context.Context, chatID, userID int64, args string) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil || id <= 0 {
		h.sendMessage(chatID, "Использование: /approve <id скрипта>")
		return
	}
	script, err := h.service.Approve(ctx, userID, id)
	if err != nil {
		h.sendMessage(chatID, "❌ "+h.errorText(err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Скрипт #%d «%s» одобрен", script.ID, script.Title))
}

// HandleDashboard — /admindash.
func (h *Handler) HandleDashboard(ctx context.Context, chatID, userID int64) {
	d, err := h.service.Dashboard(ctx, userID)
	if err != nil {
		h.sendMessage(chatID, "❌ "+h.errorText(err))
		return
	}
	h.sendMessage(chatID, FormatDashboard(d))
}

// FormatDashboard рендерит сводку.
func FormatDashboard(d *Dashboard) string {
	var sb strings.Builder
	sb.WriteString("📊 Админ-панель\n\n")
	fmt.Fprintf(&sb, "Аккаунтов: %s\nПремиум активен: %s\nКредитов в обороте: %s\n",
		common.FormatNumber(d.Accounts), common.FormatNumber(d.PremiumActive), common.FormatNumber(d.Circulation))

	if len(d.Revenue) == 0 {
		sb.WriteString("Выручка: 0\n")
	}
	for _, r := range d.Revenue {
		fmt.Fprintf(&sb, "Выручка: %s (%d платежей)\n", formatMoney(r.Amount, r.Currency), r.Payments)
	}

	fmt.Fprintf(&sb, "Скриптов на модерации: %d\n", d.PendingScripts)
	if d.TopScript != nil {
		fmt.Fprintf(&sb, "Топ-скрипт: #%d «%s» ⭐ %s", d.TopScript.ID, d.TopScript.Title, market.FormatRating(d.TopScript))
	} else {
		sb.WriteString("Топ-скрипт: нет")
	}
	return sb.String()
}

// formatMoney: звёзды Telegram целые, остальные валюты в копейках/центах.
func formatMoney(amount int64, currency string) string {
	if currency == "XTR" {
		return fmt.Sprintf("%d ⭐", amount)
	}
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, currency)
}

func (h *Handler) errorText(err error) string {
	switch {
	case errors.Is(err, common.ErrNotAdmin),
		errors.Is(err, common.ErrWrongPassword),
		errors.Is(err, common.ErrTooManyAttempts),
		errors.Is(err, common.ErrSessionExpired),
		errors.Is(err, common.ErrAccountNotFound),
		errors.Is(err, common.ErrInsufficientFunds),
		errors.Is(err, common.ErrInvalidAmount),
		errors.Is(err, common.ErrScriptNotFound):
		return err.Error()
	default:
		log.WithError(err).Error("Ошибка админ-команды")
		return "внутренняя ошибка, см. логи"
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
