package social

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/hacker-bot/internal/common"
)

// Handler обрабатывает /createsocial, /profile и /followuser.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleCreate — /createsocial [bio | avatar | #color].
func (h *Handler) HandleCreate(ctx context.Context, chatID int64, from *tgbotapi.User, args string) {
	d, err := ParseDraft(args)
	if err != nil {
		h.sendMessage(chatID, "Usage: /createsocial [bio | https://avatar.url | #rrggbb]")
		return
	}
	p, created, err := h.service.Create(ctx, from.ID, from.UserName, from.FirstName, d)
	if err != nil {
		h.sendMessage(chatID, errorText(err))
		return
	}

	title := "✨ Social profile created!"
	if !created {
		title = "✏️ Social profile updated"
	}
	h.sendMessage(chatID, title+"\n\n"+FormatProfile(p)+"\n\nUse /boost or /followuser")
}

// HandleProfile — /profile [@handle].
func (h *Handler) HandleProfile(ctx context.Context, chatID, userID int64, args string) {
	var (
		p   *Profile
		err error
	)
	if handle := strings.TrimSpace(args); handle != "" {
		p, err = h.service.ByHandle(ctx, handle)
	} else {
		p, err = h.service.Get(ctx, userID)
	}
	if err != nil {
		h.sendMessage(chatID, errorText(err))
		return
	}
	h.sendMessage(chatID, FormatProfile(p))
}

// HandleFollow — /followuser @handle.
func (h *Handler) HandleFollow(ctx context.Context, chatID, userID int64, args string) {
	handle := strings.TrimSpace(args)
	if handle == "" {
		h.sendMessage(chatID, "Usage: /followuser @handle")
		return
	}
	p, err := h.service.Follow(ctx, userID, handle)
	if err != nil {
		h.sendMessage(chatID, errorText(err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ You followed %s (%s followers)",
		p.Handle, common.FormatNumber(p.Followers)))
}

// FormatProfile рендерит карточку профиля.
func FormatProfile(p *Profile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 %s\n📝 %s\n", p.Handle, p.Bio)
	if p.Avatar != "" {
		fmt.Fprintf(&sb, "🖼 %s\n", p.Avatar)
	}
	fmt.Fprintf(&sb, "🎨 %s\n👥 %s followers", p.ThemeColor, common.FormatNumber(p.Followers))
	return sb.String()
}

func errorText(err error) string {
	switch {
	case errors.Is(err, common.ErrNoSocialProfile):
		return "👤 You have no social profile yet. Create one with /createsocial"
	case errors.Is(err, common.ErrProfileNotFound):
		return "🔍 Profile not found"
	case errors.Is(err, common.ErrSelfFollow):
		return "🪞 You can't follow yourself"
	case errors.Is(err, common.ErrAlreadyFollowing):
		return "👌 You already follow this hacker"
	case errors.Is(err, common.ErrStorageUnavailable):
		return "⚠️ The grid is down, try again in a minute"
	default:
		log.WithError(err).Error("Ошибка команды соцпрофиля")
		return "❌ Something went wrong, try again later"
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
