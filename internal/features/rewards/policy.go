// Package rewards — политика начислений. Чистые функции без ввода-вывода:
// источник случайности передаётся снаружи, чтобы тесты были детерминированы.
package rewards

import (
	"fmt"
	"math/rand"
	"time"

	"serotonyl.ru/hacker-bot/internal/common"
)

// Параметры ежедневного бонуса
const (
	DailyMin     = 5
	DailyMax     = 15
	StreakLength = 7
	StreakBonus  = 50
)

// Параметры реферальной программы
const (
	ReferrerReward = 10
	RefereeReward  = 5
	ReferralMaxAge = 7 * 24 * time.Hour
)

// Tier — сложность взлома или вопроса.
type Tier string

const (
	TierEasy   Tier = "easy"
	TierMedium Tier = "medium"
	TierHard   Tier = "hard"
)

// ParseTier разбирает сложность; пустая строка — easy.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case "":
		return TierEasy, nil
	case TierEasy, TierMedium, TierHard:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", common.ErrUnknownTier, s)
	}
}

// DailyResult — итог ежедневного входа.
type DailyResult struct {
	Draw        int64 // случайная часть, [5,15]
	StreakBonus int64 // 50 на седьмой день подряд, иначе 0
	Streak      int   // новое значение серии
}

// Amount — всего к начислению.
func (r DailyResult) Amount() int64 { return r.Draw + r.StreakBonus }

// DailyLogin считает бонус за вход. Серия растёт на 1; на седьмом дне
// начисляется +50 и серия обнуляется.
func DailyLogin(rng *rand.Rand, prevStreak int) DailyResult {
	if prevStreak < 0 || prevStreak >= StreakLength {
		prevStreak = 0
	}
	res := DailyResult{
		Draw:   int64(DailyMin + rng.Intn(DailyMax-DailyMin+1)),
		Streak: prevStreak + 1,
	}
	if res.Streak >= StreakLength {
		res.StreakBonus = StreakBonus
		res.Streak = 0
	}
	return res
}

// ReferralResult — выплаты по реферальному коду.
type ReferralResult struct {
	Referrer int64
	Referee  int64
}

// Referral проверяет условия и возвращает выплаты. Однократность
// погашения обеспечивает хранилище.
func Referral(codeAge time.Duration, referrerID, refereeID int64) (ReferralResult, error) {
	if referrerID == refereeID {
		return ReferralResult{}, common.ErrSelfReferral
	}
	if codeAge > ReferralMaxAge {
		return ReferralResult{}, common.ErrReferralExpired
	}
	return ReferralResult{Referrer: ReferrerReward, Referee: RefereeReward}, nil
}

type hackOdds struct {
	probability float64
	payout      int64
}

var hackTable = map[Tier]hackOdds{
	TierEasy:   {probability: 0.9, payout: 10},
	TierMedium: {probability: 0.7, payout: 50},
	TierHard:   {probability: 0.5, payout: 100},
}

// HackResult — исход взлома.
type HackResult struct {
	Tier    Tier
	Success bool
	Payout  int64
}

// CryptoHack делает один бросок по таблице сложности. Неудача — 0.
func CryptoHack(rng *rand.Rand, tier Tier) (HackResult, error) {
	odds, ok := hackTable[tier]
	if !ok {
		return HackResult{}, fmt.Errorf("%w: %q", common.ErrUnknownTier, tier)
	}
	res := HackResult{Tier: tier}
	if rng.Float64() < odds.probability {
		res.Success = true
		res.Payout = odds.payout
	}
	return res, nil
}

var quizTable = map[Tier]int64{
	TierEasy:   5,
	TierMedium: 10,
	TierHard:   20,
}

// QuizReward — награда за правильный ответ.
func QuizReward(tier Tier) (int64, error) {
	amount, ok := quizTable[tier]
	if !ok {
		return 0, fmt.Errorf("%w: %q", common.ErrUnknownTier, tier)
	}
	return amount, nil
}
