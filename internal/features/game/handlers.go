package game

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/config"
	"serotonyl.ru/hacker-bot/internal/features/quota"
)

const recentLimit = 5

// Handler обрабатывает игровые команды.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
	loc     *time.Location
}

func NewHandler(service *Service, bot *tgbotapi.BotAPI, loc *time.Location) *Handler {
	return &Handler{service: service, bot: bot, loc: loc}
}

// HandleExploit — /exploit <target>.
func (h *Handler) HandleExploit(ctx context.Context, chatID, userID int64, args string) {
	res, err := h.service.Exploit(ctx, userID, args)
	if err != nil {
		h.sendMessage(chatID, h.errorText(config.CommandExploit, 1, err))
		return
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"💻 Exploit for %s (%s):\n\n<pre>%s</pre>\n\n💰 Balance: %s",
		escapeHTML(res.Target), common.FormatCreditsDelta(-res.Cost), escapeHTML(res.Script), common.FormatCredits(res.Balance),
	))
	msg.ParseMode = tgbotapi.ModeHTML
	h.send(msg)
}

// HandleSpam — /spam <count>.
func (h *Handler) HandleSpam(ctx context.Context, chatID, userID int64, args string) {
	count, ok := parseCount(args)
	if !ok {
		h.sendMessage(chatID, h.usage(config.CommandSpam))
		return
	}
	res, err := h.service.Spam(ctx, userID, count)
	if err != nil {
		h.sendMessage(chatID, h.errorText(config.CommandSpam, count, err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("📣 Sent %d referral blasts (%s)\n💰 Balance: %s",
		res.Count, common.FormatCreditsDelta(-res.Cost), common.FormatCredits(res.Balance)))
}

// HandleBoost — /boost <count>.
func (h *Handler) HandleBoost(ctx context.Context, chatID, userID int64, args string) {
	count, ok := parseCount(args)
	if !ok {
		h.sendMessage(chatID, h.usage(config.CommandBoost))
		return
	}
	res, err := h.service.Boost(ctx, userID, count)
	if err != nil {
		h.sendMessage(chatID, h.errorText(config.CommandBoost, count, err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🔥 %s now has %s followers (+%s, %s)\n💰 Balance: %s",
		res.Handle, common.FormatNumber(res.Followers), common.FormatNumber(int64(res.Count)),
		common.FormatCreditsDelta(-res.Cost), common.FormatCredits(res.Balance)))
}

// HandleCryptoHack — /cryptohack [easy|medium|hard].
func (h *Handler) HandleCryptoHack(ctx context.Context, chatID, userID int64, args string) {
	res, err := h.service.CryptoHack(ctx, userID, strings.TrimSpace(args))
	if err != nil {
		h.sendMessage(chatID, h.errorText(config.CommandCryptoHack, 1, err))
		return
	}
	if !res.Success {
		h.sendMessage(chatID, fmt.Sprintf("🔒 %s hack failed. Sharpen your skills!", res.Tier))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🔓 %s hack succeeded: %s\n💰 Balance: %s",
		res.Tier, common.FormatCreditsDelta(res.Payout), common.FormatCredits(res.Balance)))
}

// HandleQuiz — /quiz [tier].
func (h *Handler) HandleQuiz(ctx context.Context, chatID, userID int64, args string) {
	p, err := h.service.StartQuiz(ctx, userID, strings.TrimSpace(args))
	if err != nil {
		h.sendMessage(chatID, h.errorText(config.CommandQuiz, 1, err))
		return
	}
	h.sendMessage(chatID, FormatQuestion(p.Question))
}

// HandleAnswer — /answer <n>.
func (h *Handler) HandleAnswer(ctx context.Context, chatID, userID int64, args string) {
	choice, ok := parseCount(args)
	if !ok {
		h.sendMessage(chatID, "Usage: /answer <option number>")
		return
	}
	res, err := h.service.Answer(ctx, userID, choice)
	switch {
	case errors.Is(err, common.ErrNoActiveQuiz):
		h.sendMessage(chatID, "❓ No active question. Start one with /quiz")
		return
	case errors.Is(err, common.ErrInvalidCount):
		h.sendMessage(chatID, "Pick one of the listed options")
		return
	case err != nil:
		log.WithError(err).WithField("user_id", userID).Error("Ошибка ответа на квиз")
		h.sendMessage(chatID, "❌ Couldn't record your answer, try again")
		return
	}

	if !res.Correct {
		h.sendMessage(chatID, fmt.Sprintf("❌ Wrong. The right answer was %d", res.Right+1))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Correct! %s\n💰 Balance: %s",
		common.FormatCreditsDelta(res.Reward), common.FormatCredits(res.Balance)))
}

// HandleGames — /games: последние игровые события.
func (h *Handler) HandleGames(ctx context.Context, chatID, userID int64) {
	entries, err := h.service.Recent(ctx, userID, recentLimit)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка чтения game_log")
		h.sendMessage(chatID, "❌ Couldn't load your game log")
		return
	}
	if len(entries) == 0 {
		h.sendMessage(chatID, "🎮 No games yet")
		return
	}
	var sb strings.Builder
	sb.WriteString("🎮 Recent games\n\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s /%s %s", common.FormatDateTime(e.CreatedAt, h.loc), e.Command, e.Outcome)
		if e.Amount != 0 {
			fmt.Fprintf(&sb, " %s", common.FormatCreditsDelta(e.Amount))
		}
		sb.WriteString("\n")
	}
	h.sendMessage(chatID, sb.String())
}

// FormatQuestion рендерит вопрос с вариантами.
func FormatQuestion(q Question) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🧠 Quiz (%s)\n\n%s\n\n", q.Tier, q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, opt)
	}
	sb.WriteString("\nReply with /answer <number> within 10 minutes")
	return sb.String()
}

// errorText переводит ошибку команды в ответ пользователю.
func (h *Handler) errorText(command string, count int, err error) string {
	var exceeded *quota.ExceededError
	switch {
	case errors.As(err, &exceeded):
		return quota.FormatExceeded(exceeded)
	case errors.Is(err, common.ErrInsufficientFunds):
		return fmt.Sprintf("💸 Not enough credits: /%s costs %s. Try /daily", command,
			common.FormatCredits(h.service.Cost(command, count)))
	case errors.Is(err, common.ErrNoSocialProfile):
		return "👤 Boosts need a social profile. Create one with /createsocial"
	case errors.Is(err, common.ErrInvalidCount), errors.Is(err, common.ErrEmptyTarget):
		return h.usage(command)
	case errors.Is(err, common.ErrUnknownTier):
		return "Difficulty must be easy, medium or hard"
	case errors.Is(err, common.ErrStorageUnavailable):
		return "⚠️ The grid is down, try again in a minute"
	default:
		log.WithError(err).WithField("command", command).Error("Ошибка игровой команды")
		return "❌ Something went wrong, try again later"
	}
}

func (h *Handler) usage(command string) string {
	minCount, maxCount := h.service.Bounds(command)
	switch command {
	case config.CommandExploit:
		return fmt.Sprintf("Usage: /exploit <target>. Costs %s", common.FormatCredits(h.service.Cost(command, 1)))
	default:
		return fmt.Sprintf("Usage: /%s <count>, count from %d to %d", command, minCount, maxCount)
	}
}

func parseCount(args string) (int, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return n, true
}

func escapeHTML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

func (h *Handler) sendMessage(chatID int64, text string) {
	h.send(tgbotapi.NewMessage(chatID, text))
}

func (h *Handler) send(msg tgbotapi.MessageConfig) {
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", msg.ChatID).Error("Ошибка отправки сообщения")
	}
}
