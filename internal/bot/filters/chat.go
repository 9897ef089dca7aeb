// Package filters решает, в каких чатах бот отвечает.
package filters

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// ChatFilter пропускает личку всегда, группы из ALLOWED_CHAT_IDS.
// Пустой список — разрешены все группы.
type ChatFilter struct {
	allowed map[int64]struct{}
}

func NewChatFilter(allowedChatIDs []int64) *ChatFilter {
	allowed := make(map[int64]struct{}, len(allowedChatIDs))
	for _, id := range allowedChatIDs {
		allowed[id] = struct{}{}
	}
	return &ChatFilter{allowed: allowed}
}

// CheckAccess проверяет сообщение.
func (f *ChatFilter) CheckAccess(message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "ChatFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil || message.From.IsBot {
		// служебные сообщения каналов и другие боты
		return false
	}
	if message.Chat.IsPrivate() || len(f.allowed) == 0 {
		return true
	}
	if _, ok := f.allowed[message.Chat.ID]; ok {
		return true
	}

	log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	}).Debug("deny: chat not in ALLOWED_CHAT_IDS")
	return false
}
