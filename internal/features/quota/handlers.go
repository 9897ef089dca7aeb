package quota

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/config"
)

// Handler обрабатывает /limits.
type Handler struct {
	service *Service
	catalog *config.Catalog
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик квот.
func NewHandler(service *Service, catalog *config.Catalog, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, catalog: catalog, bot: bot}
}

// HandleLimits показывает остаток по всем лимитированным командам.
func (h *Handler) HandleLimits(ctx context.Context, chatID, userID int64) {
	names := make([]string, 0, len(h.catalog.Commands))
	for name, cmd := range h.catalog.Commands {
		if cmd.Limited() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		cmd := h.catalog.Commands[name]
		st, err := h.service.Status(ctx, userID, name, cmd.Limit, cmd.Period)
		if err != nil {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка чтения квот")
			h.sendMessage(chatID, "❌ Couldn't load your limits, try again later")
			return
		}
		statuses = append(statuses, st)
	}
	h.sendMessage(chatID, FormatStatuses(statuses))
}

// FormatStatuses рендерит таблицу лимитов.
func FormatStatuses(statuses []Status) string {
	var sb strings.Builder
	sb.WriteString("⏱ Your limits\n\n")
	for _, st := range statuses {
		fmt.Fprintf(&sb, "/%s: %d/%d left", st.Command, st.Remaining(), st.Limit)
		if st.ResetIn > 0 {
			fmt.Fprintf(&sb, " (resets in %s)", common.FormatWait(st.ResetIn))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatExceeded — текст отказа для пользователя.
func FormatExceeded(e *ExceededError) string {
	return fmt.Sprintf("⛔ /%s limit reached (%d per window). Try again in %s",
		e.Command, e.Limit, common.FormatWait(e.RetryAfter))
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
