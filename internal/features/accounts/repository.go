package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/db/postgres"
)

const accountColumns = `user_id, username, first_name, balance, streak, last_login,
	premium_tier, premium_until, created_at, updated_at`

// Repository отвечает за таблицу accounts.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert создаёт аккаунт или обновляет имя/username. Баланс, серию
// и премиум не трогает.
func (r *Repository) Upsert(ctx context.Context, p Profile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (user_id, username, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    updated_at = NOW()
		WHERE accounts.username IS DISTINCT FROM EXCLUDED.username
		   OR accounts.first_name IS DISTINCT FROM EXCLUDED.first_name
	`, p.UserID, p.Username, p.FirstName)
	if err != nil {
		return postgres.Classify(fmt.Errorf("ошибка создания/обновления аккаунта: %w", err))
	}
	return nil
}

// Get: если не найден — common.ErrAccountNotFound.
func (r *Repository) Get(ctx context.Context, userID int64) (*Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("аккаунт user_id=%d: %w", userID, err)
	}
	return a, nil
}

// GetByUsername ищет без учёта регистра.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(username) = LOWER($1)`, username)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("аккаунт @%s: %w", username, err)
	}
	return a, nil
}

// ExpirePremium снимает истёкший премиум. Возвращает число аккаунтов.
func (r *Repository) ExpirePremium(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET premium_tier = '', updated_at = NOW()
		WHERE premium_tier <> '' AND premium_until <= $1
	`, now)
	if err != nil {
		return 0, postgres.Classify(fmt.Errorf("ошибка снятия премиума: %w", err))
	}
	return tag.RowsAffected(), nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.UserID, &a.Username, &a.FirstName, &a.Balance, &a.Streak, &a.LastLogin,
		&a.PremiumTier, &a.PremiumUntil, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrAccountNotFound
	}
	if err != nil {
		return nil, postgres.Classify(err)
	}
	return &a, nil
}
