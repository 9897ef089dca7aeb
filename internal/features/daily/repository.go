package daily

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/db/postgres"
	"serotonyl.ru/hacker-bot/internal/features/ledger"
)

// Repository — серия и время входа в accounts плюс проводка daily_bonus.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// State читает серию; аккаунт создаётся, если его ещё нет.
func (r *Repository) State(ctx context.Context, userID int64) (State, error) {
	var st State
	err := r.db.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO accounts (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING
			RETURNING streak, last_login
		)
		SELECT streak, last_login FROM ins
		UNION ALL
		SELECT streak, last_login FROM accounts WHERE user_id = $1
		LIMIT 1
	`, userID).Scan(&st.Streak, &st.LastLogin)
	if err != nil {
		return State{}, postgres.Classify(fmt.Errorf("ошибка чтения серии: %w", err))
	}
	return st, nil
}

// Claim в одной транзакции сдвигает last_login (только если он всё ещё
// равен prev) и пишет проводку. Если кто-то успел раньше — ErrDailyAlreadyClaimed.
func (r *Repository) Claim(ctx context.Context, userID int64, prev *time.Time, now time.Time, streak int, amount int64) (int64, error) {
	var balance int64
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts SET streak = $2, last_login = $3, updated_at = NOW()
			WHERE user_id = $1 AND last_login IS NOT DISTINCT FROM $4
		`, userID, streak, now, prev)
		if err != nil {
			return postgres.Classify(fmt.Errorf("ошибка обновления серии: %w", err))
		}
		if tag.RowsAffected() == 0 {
			return common.ErrDailyAlreadyClaimed
		}

		e, err := ledger.ApplyInTx(ctx, tx, userID, amount, ledger.ReasonDailyBonus, fmt.Sprintf("streak:%d", streak))
		if err != nil {
			return err
		}
		balance = e.BalanceAfter
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}
