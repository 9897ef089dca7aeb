package common

import (
	"cmp"
	"slices"
	"sync"
)

// KeyedMutex выдаёт отдельный мьютекс на каждый ключ.
// Операции над разными ключами не блокируют друг друга; запись в карте
// живёт, пока у ключа есть хотя бы один держатель или ожидающий.
type KeyedMutex[K cmp.Ordered] struct {
	mu    sync.Mutex
	locks map[K]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex создаёт пустой набор блокировок.
func NewKeyedMutex[K cmp.Ordered]() *KeyedMutex[K] {
	return &KeyedMutex[K]{locks: make(map[K]*keyLock)}
}

// Lock захватывает блокировку ключа и возвращает функцию освобождения.
func (m *KeyedMutex[K]) Lock(key K) (unlock func()) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			m.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(m.locks, key)
			}
			m.mu.Unlock()
		})
	}
}

// LockMany захватывает несколько ключей в порядке возрастания,
// чтобы две операции над одной парой аккаунтов не взаимоблокировались.
func (m *KeyedMutex[K]) LockMany(keys ...K) (unlock func()) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for _, k := range sorted {
		unlocks = append(unlocks, m.Lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// Len возвращает число ключей с активными держателями.
func (m *KeyedMutex[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
