// Package referral — реферальные коды. Код выдаётся один раз на владельца
// и больше не меняется; каждый приглашённый может погасить код только один раз.
package referral

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// CodePrefix — префикс кодов, он же признак кода в /start.
const CodePrefix = "ref_"

// Code — выданный код.
type Code struct {
	Code      string    `db:"code"`
	OwnerID   int64     `db:"owner_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Redemption — результат погашения.
type Redemption struct {
	Code       string
	ReferrerID int64
	RefereeID  int64
	Referrer   int64 // начислено пригласившему
	Referee    int64 // начислено приглашённому
}

// NewCode генерирует ref_ + 6 случайных цифр.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("генерация кода: %w", err)
	}
	return fmt.Sprintf("%s%06d", CodePrefix, n.Int64()), nil
}

// IsCode — похоже ли на реферальный код.
func IsCode(s string) bool {
	return strings.HasPrefix(s, CodePrefix) && len(s) == len(CodePrefix)+6
}

// DeepLink — ссылка, открывающая бота с кодом.
func DeepLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, code)
}
