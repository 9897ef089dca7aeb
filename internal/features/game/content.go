package game

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"serotonyl.ru/hacker-bot/internal/features/rewards"
)

// ContentSource поставляет игровой контент. Может ходить во внешние
// сервисы, поэтому вызывается до любых блокировок и транзакций.
type ContentSource interface {
	ExploitScript(ctx context.Context, target string) (string, error)
	QuizQuestion(ctx context.Context, tier rewards.Tier) (Question, error)
}

// TemplateSource — контент из встроенных шаблонов.
type TemplateSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTemplateSource создаёт источник шаблонного контента.
func NewTemplateSource(rng *rand.Rand) *TemplateSource {
	return &TemplateSource{rng: rng}
}

var payloads = []string{
	"inject_payload('/admin', bypass=True)",
	"spoof_session(token=steal_cookie())",
	"overflow_buffer(size=0xFFFF)",
	"escalate_privileges(user='root')",
}

// ExploitScript собирает «скрипт» под цель.
func (s *TemplateSource) ExploitScript(_ context.Context, target string) (string, error) {
	s.mu.Lock()
	first := s.rng.Intn(len(payloads))
	second := s.rng.Intn(len(payloads))
	s.mu.Unlock()

	lines := []string{
		"-- exploit for " + target,
		fmt.Sprintf("local target = %q", target),
		"connect(target)",
		payloads[first],
	}
	if second != first {
		lines = append(lines, payloads[second])
	}
	lines = append(lines, "print('pwned')")
	return strings.Join(lines, "\n"), nil
}

var questionBank = map[rewards.Tier][]Question{
	rewards.TierEasy: {
		{Prompt: "What does HTTP stand for?", Options: []string{"HyperText Transfer Protocol", "High Transfer Text Process", "Host Transfer Protocol"}, Answer: 0},
		{Prompt: "Which port does HTTPS use by default?", Options: []string{"80", "443", "22"}, Answer: 1},
		{Prompt: "What is phishing?", Options: []string{"A fishing game", "Tricking users into giving up secrets", "A firewall rule"}, Answer: 1},
	},
	rewards.TierMedium: {
		{Prompt: "Which attack injects code via unsanitized SQL input?", Options: []string{"XSS", "CSRF", "SQL injection"}, Answer: 2},
		{Prompt: "What does a salt protect a password hash against?", Options: []string{"Rainbow tables", "Keyloggers", "DDoS"}, Answer: 0},
		{Prompt: "Which tool is a classic network scanner?", Options: []string{"nmap", "grep", "vim"}, Answer: 0},
	},
	rewards.TierHard: {
		{Prompt: "Which Argon2 variant mixes data-dependent and independent passes?", Options: []string{"Argon2d", "Argon2i", "Argon2id"}, Answer: 2},
		{Prompt: "What does ASLR randomize?", Options: []string{"Memory layout", "Packet order", "Password salts"}, Answer: 0},
		{Prompt: "A TOCTOU bug is a kind of…", Options: []string{"Race condition", "Buffer overflow", "Format string bug"}, Answer: 0},
	},
}

// QuizQuestion выбирает вопрос нужной сложности.
func (s *TemplateSource) QuizQuestion(_ context.Context, tier rewards.Tier) (Question, error) {
	bank, ok := questionBank[tier]
	if !ok || len(bank) == 0 {
		return Question{}, fmt.Errorf("нет вопросов для уровня %q", tier)
	}
	s.mu.Lock()
	q := bank[s.rng.Intn(len(bank))]
	s.mu.Unlock()

	q.Tier = tier
	return q, nil
}
