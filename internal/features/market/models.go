// Package market — маркетплейс хакерских скриптов: заявки пользователей,
// модерация администратором, витрина одобренных скриптов с оценками.
package market

import "time"

// Ограничения заявки
const (
	DefaultPrice = 50

	maxTitleLength       = 64
	maxDescriptionLength = 256
	maxBodyLength        = 4000

	// сколько скриптов показывает /market
	listLimit = 20
)

// Script — скрипт на маркетплейсе.
type Script struct {
	ID          int64     `db:"id"`
	AuthorID    int64     `db:"author_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Body        string    `db:"body"`
	Price       int64     `db:"price"`
	Rating      *float64  `db:"rating"` // nil, пока нет оценок
	Votes       int       `db:"votes"`
	Approved    bool      `db:"approved"`
	CreatedAt   time.Time `db:"created_at"`
}

// Submission — разобранная заявка /submitscript.
type Submission struct {
	Title       string
	Description string
	Body        string
}
