// Package middleware — логирование входящих сообщений, восстановление
// после паники и антифлуд.
package middleware

import (
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

const logTextLimit = 50

// LogMessage логирует входящее сообщение. Аргументы /login не пишутся.
func LogMessage(message *tgbotapi.Message) {
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}

	text := message.Text
	if message.IsCommand() && message.Command() == "login" {
		text = "/login ***"
	}
	if utf8.RuneCountInString(text) > logTextLimit {
		text = string([]rune(text)[:logTextLimit]) + "..."
	}

	log.WithFields(log.Fields{
		"user_id":   message.From.ID,
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"username":  message.From.UserName,
		"text":      text,
	}).Debug("Входящее сообщение")
}
