package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
)

const (
	historyLimit     = 10
	leaderboardLimit = 5
)

// Handler обрабатывает команды /balance, /history, /top.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
	loc     *time.Location
}

// NewHandler создаёт обработчик команд леджера.
func NewHandler(service *Service, bot *tgbotapi.BotAPI, loc *time.Location) *Handler {
	return &Handler{service: service, bot: bot, loc: loc}
}

// HandleBalance — /balance.
func (h *Handler) HandleBalance(ctx context.Context, chatID, userID int64) {
	balance, err := h.service.BalanceOf(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения баланса")
		h.sendMessage(chatID, "❌ Couldn't load your balance, try again later")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("💰 Balance: %s", common.FormatCredits(balance)))
}

// HandleHistory — /history, последние 10 проводок.
func (h *Handler) HandleHistory(ctx context.Context, chatID, userID int64) {
	entries, err := h.service.History(ctx, userID, historyLimit)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения истории")
		h.sendMessage(chatID, "❌ Couldn't load your history, try again later")
		return
	}
	h.sendMessage(chatID, FormatHistory(entries, h.loc))
}

// HandleTop — /top, пятёрка лидеров.
func (h *Handler) HandleTop(ctx context.Context, chatID int64) {
	holders, err := h.service.Top(ctx, leaderboardLimit)
	if err != nil {
		log.WithError(err).Error("Ошибка получения лидеров")
		h.sendMessage(chatID, "❌ Leaderboard is offline, try again later")
		return
	}
	h.sendMessage(chatID, FormatLeaderboard(holders))
}

// FormatHistory рендерит историю проводок.
func FormatHistory(entries []*Entry, loc *time.Location) string {
	if len(entries) == 0 {
		return "📋 No transactions yet"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Last %d transactions:\n\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. %s | %s | %s\n",
			i+1,
			common.FormatDateTime(e.CreatedAt, loc),
			common.FormatCreditsDelta(e.Amount),
			e.Reason.Title(),
		)
	}
	return sb.String()
}

// FormatLeaderboard рендерит таблицу лидеров.
func FormatLeaderboard(holders []*Holder) string {
	if len(holders) == 0 {
		return "🏆 Leaderboard is empty. Go hack something!"
	}

	var sb strings.Builder
	sb.WriteString("🏆 Top hackers\n\n")
	for i, hd := range holders {
		name := "n/a"
		if hd.Username != "" {
			name = "@" + hd.Username
		}
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, name, common.FormatCredits(hd.Balance))
	}
	return sb.String()
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
