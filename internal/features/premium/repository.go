package premium

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/hacker-bot/internal/db/postgres"
	"serotonyl.ru/hacker-bot/internal/features/ledger"
)

// Repository — таблица payments и премиум-поля accounts.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Grant зачисляет оплату: запись в payments, продление премиума от
// max(now, premium_until) и бонусная проводка. Повторная оплата с тем же
// charge id ничего не меняет и возвращает Duplicate.
func (r *Repository) Grant(ctx context.Context, p Payment, tier Tier, now time.Time) (*Grant, error) {
	g := &Grant{Tier: tier, Bonus: tier.Bonus}
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, p.UserID,
		); err != nil {
			return postgres.Classify(fmt.Errorf("ошибка создания аккаунта: %w", err))
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO payments (telegram_charge_id, provider_charge_id, user_id, tier, amount, currency)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (telegram_charge_id) DO NOTHING
		`, p.ChargeID, p.ProviderChargeID, p.UserID, tier.Name, p.TotalAmount, p.Currency)
		if err != nil {
			return postgres.Classify(fmt.Errorf("ошибка записи платежа: %w", err))
		}
		if tag.RowsAffected() == 0 {
			g.Duplicate = true
			return nil
		}

		days := int(tier.Duration / (24 * time.Hour))
		err = tx.QueryRow(ctx, `
			UPDATE accounts
			SET premium_tier = $2,
			    premium_until = GREATEST(COALESCE(premium_until, $3), $3) + make_interval(days => $4),
			    updated_at = NOW()
			WHERE user_id = $1
			RETURNING premium_until
		`, p.UserID, tier.Name, now, days).Scan(&g.PremiumUntil)
		if err != nil {
			return postgres.Classify(fmt.Errorf("ошибка продления премиума: %w", err))
		}

		e, err := ledger.ApplyInTx(ctx, tx, p.UserID, tier.Bonus, ledger.ReasonPremiumPurchase, p.ChargeID)
		if err != nil {
			return err
		}
		g.Balance = e.BalanceAfter
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}
