// Package premium — платный Hacker Pass через Telegram Payments.
// Оплата засчитывается один раз на telegram_payment_charge_id.
package premium

import (
	"fmt"
	"strings"
	"time"

	"serotonyl.ru/hacker-bot/internal/common"
)

// Tier — уровень пропуска.
type Tier struct {
	Name     string
	Price    int // в минимальных единицах валюты
	Bonus    int64
	Duration time.Duration
}

// Title — «Basic Hacker Pass».
func (t Tier) Title() string {
	return strings.ToUpper(t.Name[:1]) + t.Name[1:] + " Hacker Pass"
}

// Payload — полезная нагрузка счёта.
func (t Tier) Payload() string {
	return t.Name + "_pass"
}

const passDuration = 30 * 24 * time.Hour

// Tiers — доступные пропуска.
var Tiers = map[string]Tier{
	"basic": {Name: "basic", Price: 500, Bonus: 100, Duration: passDuration},
	"pro":   {Name: "pro", Price: 1000, Bonus: 250, Duration: passDuration},
}

// TierNames — в порядке возрастания цены.
var TierNames = []string{"basic", "pro"}

// ParseTier: пустая строка — basic.
func ParseTier(name string) (Tier, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "basic"
	}
	t, ok := Tiers[name]
	if !ok {
		return Tier{}, fmt.Errorf("%w: %q", common.ErrUnknownTier, name)
	}
	return t, nil
}

// TierFromPayload разбирает «basic_pass».
func TierFromPayload(payload string) (Tier, error) {
	name, ok := strings.CutSuffix(payload, "_pass")
	if !ok {
		return Tier{}, fmt.Errorf("%w: payload %q", common.ErrUnknownTier, payload)
	}
	t, ok := Tiers[name]
	if !ok {
		return Tier{}, fmt.Errorf("%w: payload %q", common.ErrUnknownTier, payload)
	}
	return t, nil
}

// Payment — успешная оплата из Telegram.
type Payment struct {
	UserID           int64
	Payload          string
	Currency         string
	TotalAmount      int
	ChargeID         string // telegram_payment_charge_id, уникален
	ProviderChargeID string
}

// Grant — результат зачисления оплаты.
type Grant struct {
	Tier         Tier
	Bonus        int64
	Balance      int64
	PremiumUntil time.Time
	Duplicate    bool // оплата уже была зачислена раньше
}
