package referral

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/db/postgres"
	"serotonyl.ru/hacker-bot/internal/features/ledger"
)

const maxCodeAttempts = 5

// Repository — таблицы referral_codes и referral_redemptions.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CodeFor возвращает код владельца, выдавая новый при первом обращении.
// При коллизии кода генерирует другой.
func (r *Repository) CodeFor(ctx context.Context, ownerID int64) (*Code, error) {
	if c, err := r.byOwner(ctx, ownerID); err == nil {
		return c, nil
	} else if !errors.Is(err, common.ErrReferralNotFound) {
		return nil, err
	}

	if _, err := r.db.Exec(ctx,
		`INSERT INTO accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, ownerID,
	); err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка создания аккаунта: %w", err))
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := NewCode()
		if err != nil {
			return nil, err
		}

		var c Code
		err = r.db.QueryRow(ctx, `
			INSERT INTO referral_codes (code, owner_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING code, owner_id, created_at
		`, code, ownerID).Scan(&c.Code, &c.OwnerID, &c.CreatedAt)
		if err == nil {
			return &c, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, postgres.Classify(fmt.Errorf("ошибка выдачи кода: %w", err))
		}

		// конфликт: либо код занят, либо владельцу код выдали параллельно
		if c, err := r.byOwner(ctx, ownerID); err == nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("не удалось подобрать свободный код за %d попыток", maxCodeAttempts)
}

// Lookup ищет код; если нет — common.ErrReferralNotFound.
func (r *Repository) Lookup(ctx context.Context, code string) (*Code, error) {
	var c Code
	err := r.db.QueryRow(ctx,
		`SELECT code, owner_id, created_at FROM referral_codes WHERE code = $1`, code,
	).Scan(&c.Code, &c.OwnerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrReferralNotFound
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка поиска кода: %w", err))
	}
	return &c, nil
}

// Redeem записывает погашение и начисляет обоим участникам в одной транзакции.
// Повторное погашение тем же приглашённым — common.ErrReferralAlreadyRedeemed.
func (r *Repository) Redeem(ctx context.Context, red Redemption) error {
	return postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, red.RefereeID,
		); err != nil {
			return postgres.Classify(fmt.Errorf("ошибка создания аккаунта: %w", err))
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO referral_redemptions (referee_id, code, referrer_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (referee_id) DO NOTHING
		`, red.RefereeID, red.Code, red.ReferrerID)
		if err != nil {
			return postgres.Classify(fmt.Errorf("ошибка записи погашения: %w", err))
		}
		if tag.RowsAffected() == 0 {
			return common.ErrReferralAlreadyRedeemed
		}

		// строки аккаунтов блокируются по возрастанию id
		payouts := []struct {
			id     int64
			amount int64
		}{
			{red.ReferrerID, red.Referrer},
			{red.RefereeID, red.Referee},
		}
		sort.Slice(payouts, func(i, j int) bool { return payouts[i].id < payouts[j].id })

		for _, p := range payouts {
			if _, err := ledger.ApplyInTx(ctx, tx, p.id, p.amount, ledger.ReasonReferral, red.Code); err != nil {
				return err
			}
		}
		return nil
	})
}

// Invited — сколько человек пришло по коду владельца.
func (r *Repository) Invited(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM referral_redemptions WHERE referrer_id = $1`, ownerID,
	).Scan(&n)
	if err != nil {
		return 0, postgres.Classify(fmt.Errorf("ошибка подсчёта приглашённых: %w", err))
	}
	return n, nil
}

func (r *Repository) byOwner(ctx context.Context, ownerID int64) (*Code, error) {
	var c Code
	err := r.db.QueryRow(ctx,
		`SELECT code, owner_id, created_at FROM referral_codes WHERE owner_id = $1`, ownerID,
	).Scan(&c.Code, &c.OwnerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrReferralNotFound
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка чтения кода: %w", err))
	}
	return &c, nil
}
