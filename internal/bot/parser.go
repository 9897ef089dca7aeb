package bot

import (
	"strings"
)

// CommandParser разбирает команды с префиксами /, ! и .
type CommandParser struct {
	validPrefixes []string
	botUsername   string
}

// NewCommandParser создаёт парсер. botUsername нужен, чтобы понимать /cmd@botname.
func NewCommandParser(botUsername string) *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!", "."},
		botUsername:   strings.ToLower(botUsername),
	}
}

// ParseCommand разбирает текст на команду и строку аргументов.
// Команда, адресованная другому боту (/cmd@other), не считается командой.
func (p *CommandParser) ParseCommand(text string) (string, string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", "", false
	}

	head, args, _ := strings.Cut(text, " ")
	head = strings.ToLower(head)
	if head == "" {
		return "", "", false
	}

	if name, target, ok := strings.Cut(head, "@"); ok {
		if target != p.botUsername {
			return "", "", false
		}
		head = name
	}
	return head, strings.TrimSpace(args), true
}
