package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/db/postgres"
)

// Repository — pgx-реализация Store поверх таблиц accounts и ledger_entries.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий леджера.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Apply применяет проводку в отдельной транзакции.
func (r *Repository) Apply(ctx context.Context, accountID, amount int64, reason Reason, ref string) (*Entry, error) {
	var entry *Entry
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		e, err := ApplyInTx(ctx, tx, accountID, amount, reason, ref)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ApplyInTx применяет проводку внутри уже открытой транзакции.
// Строка аккаунта блокируется FOR UPDATE до конца транзакции, так что
// параллельные списания с одного аккаунта выстраиваются в очередь.
// Аккаунт создаётся, если его ещё нет.
//
// Другие фичи (ежедневный бонус, рефералы, премиум) вызывают её, чтобы их
// собственные изменения и проводка закоммитились вместе.
func ApplyInTx(ctx context.Context, tx pgx.Tx, accountID, amount int64, reason Reason, ref string) (*Entry, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, accountID,
	); err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка создания аккаунта: %w", err))
	}

	var balance int64
	err := tx.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE user_id = $1 FOR UPDATE`, accountID,
	).Scan(&balance)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка получения баланса: %w", err))
	}

	if balance < 0 {
		return nil, fmt.Errorf("%w: баланс аккаунта %d = %d", common.ErrInvariantViolation, accountID, balance)
	}
	next := balance + amount
	if next < 0 {
		return nil, fmt.Errorf("%w: нужно %d, есть %d", common.ErrInsufficientFunds, -amount, balance)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = $2, updated_at = NOW() WHERE user_id = $1`, accountID, next,
	); err != nil {
		if postgres.IsCheckViolation(err) {
			return nil, fmt.Errorf("%w: CHECK balance >= 0: %w", common.ErrInvariantViolation, err)
		}
		return nil, postgres.Classify(fmt.Errorf("ошибка обновления баланса: %w", err))
	}

	e := &Entry{
		ID:           uuid.New(),
		AccountID:    accountID,
		Amount:       amount,
		Reason:       reason,
		Ref:          ref,
		BalanceAfter: next,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, account_id, amount, reason, ref, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.AccountID, e.Amount, string(e.Reason), e.Ref, e.BalanceAfter).Scan(&e.CreatedAt)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка записи проводки: %w", err))
	}
	return e, nil
}

// Balance возвращает текущий баланс; для неизвестного аккаунта — 0.
func (r *Repository) Balance(ctx context.Context, accountID int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, postgres.Classify(fmt.Errorf("ошибка получения баланса: %w", err))
	}
	return balance, nil
}

// Entries возвращает последние limit проводок аккаунта, новые первыми.
func (r *Repository) Entries(ctx context.Context, accountID int64, limit int) ([]*Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, amount, reason, ref, balance_after, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка получения проводок: %w", err))
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var reason string
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &reason, &e.Ref, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования проводки: %w", err)
		}
		e.Reason = Reason(reason)
		entries = append(entries, &e)
	}
	return entries, postgres.Classify(rows.Err())
}

// Top возвращает limit самых богатых аккаунтов.
func (r *Repository) Top(ctx context.Context, limit int) ([]*Holder, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, COALESCE(username, ''), balance
		FROM accounts
		ORDER BY balance DESC, user_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка получения лидеров: %w", err))
	}
	defer rows.Close()

	var holders []*Holder
	for rows.Next() {
		var h Holder
		if err := rows.Scan(&h.UserID, &h.Username, &h.Balance); err != nil {
			return nil, fmt.Errorf("ошибка сканирования лидера: %w", err)
		}
		holders = append(holders, &h)
	}
	return holders, postgres.Classify(rows.Err())
}

// Discrepancies сверяет балансы с суммой проводок.
func (r *Repository) Discrepancies(ctx context.Context) ([]*Discrepancy, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.user_id, a.balance, COALESCE(SUM(e.amount), 0)::BIGINT AS entries_sum
		FROM accounts a
		LEFT JOIN ledger_entries e ON e.account_id = a.user_id
		GROUP BY a.user_id, a.balance
		HAVING a.balance <> COALESCE(SUM(e.amount), 0) OR a.balance < 0
	`)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка сверки: %w", err))
	}
	defer rows.Close()

	var out []*Discrepancy
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.AccountID, &d.Balance, &d.EntriesSum); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сверки: %w", err)
		}
		out = append(out, &d)
	}
	return out, postgres.Classify(rows.Err())
}
