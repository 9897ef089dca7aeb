package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/features/referral"
)

const helpText = `💻 Hacker bot

/daily: daily login bonus (5-15 credits, +50 on a 7-day streak)
/balance, /history, /top: your credits
/ref: invite friends (+10 for you, +5 for them)
/limits: what you have left today

/exploit <target>: buy an exploit script (50 credits, 5/day)
/quiz [easy|medium|hard], /answer <n>: earn 5/10/20 credits (3/day)
/spam <1-10>: referral blast, 5 credits each (2/day)
/cryptohack [easy|medium|hard]: try your luck (5/day)
/games: your recent runs

/createsocial [bio | avatar url | #color]: your hacker profile
/profile [@handle], /followuser @handle
/boost <10-1000>: follower boost, 1 credit per 10

/submitscript Title | Description | Script: sell on the market
/market, /rate <id> <1-5>

/premium [basic|pro]: Hacker Pass`

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *tgbotapi.Message, cmd, args string) {
	chatID := message.Chat.ID
	userID := message.From.ID
	private := message.Chat.IsPrivate()

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID, userID, args)
	case "help":
		b.sendMessage(chatID, helpText)

	case "daily":
		b.h.Daily.HandleDaily(ctx, chatID, userID)
	case "balance":
		b.h.Ledger.HandleBalance(ctx, chatID, userID)
	case "history":
		b.h.Ledger.HandleHistory(ctx, chatID, userID)
	case "top":
		b.h.Ledger.HandleTop(ctx, chatID)
	case "ref":
		b.h.Referral.HandleRef(ctx, chatID, userID)
	case "limits":
		b.h.Quota.HandleLimits(ctx, chatID, userID)
	case "premium":
		b.h.Premium.HandlePremium(chatID, userID, args)

	case "exploit":
		b.h.Game.HandleExploit(ctx, chatID, userID, args)
	case "quiz":
		b.h.Game.HandleQuiz(ctx, chatID, userID, args)
	case "answer":
		b.h.Game.HandleAnswer(ctx, chatID, userID, args)
	case "spam":
		b.h.Game.HandleSpam(ctx, chatID, userID, args)
	case "boost":
		b.h.Game.HandleBoost(ctx, chatID, userID, args)
	case "cryptohack":
		b.h.Game.HandleCryptoHack(ctx, chatID, userID, args)
	case "games":
		b.h.Game.HandleGames(ctx, chatID, userID)

	case "createsocial":
		b.h.Social.HandleCreate(ctx, chatID, message.From, args)
	case "profile":
		b.h.Social.HandleProfile(ctx, chatID, userID, args)
	case "followuser", "follow":
		b.h.Social.HandleFollow(ctx, chatID, userID, args)

	case "submitscript":
		b.h.Market.HandleSubmit(ctx, chatID, message.From, args)
	case "market":
		b.h.Market.HandleMarket(ctx, chatID)
	case "rate":
		b.h.Market.HandleRate(ctx, chatID, userID, args)

	// админ-команды только в личке
	case "login":
		if private {
			b.h.Admin.HandleLogin(ctx, chatID, userID, message.MessageID, args)
		}
	case "logout":
		if private {
			b.h.Admin.HandleLogout(ctx, chatID, userID)
		}
	case "adjust":
		if private {
			b.h.Admin.HandleAdjust(ctx, chatID, userID, args)
		}
	case "audit":
		if private {
			b.h.Admin.HandleAudit(ctx, chatID, userID)
		}
	case "approve":
		if private {
			b.h.Admin.HandleApprove(ctx, chatID, userID, args)
		}
	case "admindash":
		if private {
			b.h.Admin.HandleDashboard(ctx, chatID, userID)
		}
	}
}

// handleStart — /start [ref_code]: реферальный код из ссылки, ежедневный
// бонус и собственный код пользователя одним сообщением.
func (b *Bot) handleStart(ctx context.Context, chatID, userID int64, args string) {
	var parts []string
	parts = append(parts, "👋 Welcome to the grid, hacker.")

	if code := strings.TrimSpace(args); referral.IsCode(code) {
		parts = append(parts, b.h.Referral.RedeemText(ctx, userID, code))
	}
	parts = append(parts, b.h.Daily.ClaimText(ctx, userID))

	if code, err := b.referral.CodeFor(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось выдать реферальный код в /start")
	} else {
		parts = append(parts, fmt.Sprintf("🤝 Your referral link: %s",
			referral.DeepLink(b.api.Self.UserName, code.Code)))
	}

	parts = append(parts, "Type /help for the command list.")
	b.sendMessage(chatID, strings.Join(parts, "\n\n"))
}
