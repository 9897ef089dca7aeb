// Package social — соцпрофили хакеров: ник, био, подписчики и подписки.
// Накрутка подписчиков (/boost) списывает кредиты в той же транзакции,
// в которой растёт счётчик.
package social

import "time"

// Значения профиля по умолчанию
const (
	DefaultBio        = "Digital renegade 😈"
	DefaultThemeColor = "#0077cc"

	maxBioLength = 160
	// сколько раз подбираем суффикс ника при коллизии
	handleAttempts = 5
)

// Profile — соцпрофиль пользователя.
type Profile struct {
	UserID     int64     `db:"user_id"`
	Handle     string    `db:"handle"` // @name_1234, выдаётся один раз
	Bio        string    `db:"bio"`
	Avatar     string    `db:"avatar"`
	ThemeColor string    `db:"theme_color"`
	Followers  int64     `db:"followers"`
	CreatedAt  time.Time `db:"created_at"`
}

// Draft — поля, которые пользователь задаёт в /createsocial.
type Draft struct {
	Bio        string
	Avatar     string
	ThemeColor string
}

// BoostResult — итог накрутки.
type BoostResult struct {
	Handle    string
	Followers int64
	Balance   int64
}
