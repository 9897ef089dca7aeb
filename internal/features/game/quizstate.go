package game

import (
	"sync"
	"time"
)

// quizTTL — сколько вопрос ждёт ответа.
const quizTTL = 10 * time.Minute

// quizStates — вопросы, ждущие ответа, по пользователям. Живут в памяти
// процесса: после рестарта вопрос пропадает, квота остаётся засчитанной.
type quizStates struct {
	mu     sync.Mutex
	states map[int64]*PendingQuiz
}

func newQuizStates() *quizStates {
	return &quizStates{states: make(map[int64]*PendingQuiz)}
}

// get возвращает активный вопрос или nil.
func (s *quizStates) get(userID int64, now time.Time) *PendingQuiz {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.states[userID]
	if !ok {
		return nil
	}
	if !now.Before(p.ExpiresAt) {
		delete(s.states, userID)
		return nil
	}
	return p
}

func (s *quizStates) set(userID int64, p *PendingQuiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = p
}

// take забирает вопрос: ответить на него можно только один раз.
func (s *quizStates) take(userID int64, now time.Time) *PendingQuiz {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.states[userID]
	if !ok {
		return nil
	}
	delete(s.states, userID)
	if !now.Before(p.ExpiresAt) {
		return nil
	}
	return p
}

// sweep удаляет просроченные вопросы.
func (s *quizStates) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, p := range s.states {
		if !now.Before(p.ExpiresAt) {
			delete(s.states, id)
			n++
		}
	}
	return n
}
