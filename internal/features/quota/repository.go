package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/hacker-bot/internal/db/postgres"
)

// Виды записей в quota_events
const (
	eventUsed     = "used"
	eventReleased = "released"
)

// Repository — PostgreSQL-бэкенд трекера квот.
// Строка quota_windows блокируется FOR UPDATE, решение считает Window.Advance,
// каждый засчитанный вызов дописывается в quota_events для аудита.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий квот.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CheckAndRecord атомарно проверяет и засчитывает вызов.
func (r *Repository) CheckAndRecord(ctx context.Context, key Key, limit int, period time.Duration, now time.Time) (Decision, error) {
	var d Decision
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO quota_windows (account_id, command, window_start, count)
			VALUES ($1, $2, $3, 0)
			ON CONFLICT (account_id, command) DO NOTHING
		`, key.AccountID, key.Command, now); err != nil {
			return postgres.Classify(fmt.Errorf("ошибка создания окна: %w", err))
		}

		var w Window
		if err := tx.QueryRow(ctx, `
			SELECT window_start, count FROM quota_windows
			WHERE account_id = $1 AND command = $2
			FOR UPDATE
		`, key.AccountID, key.Command).Scan(&w.Start, &w.Count); err != nil {
			return postgres.Classify(fmt.Errorf("ошибка чтения окна: %w", err))
		}

		next, dec := w.Advance(now, limit, period)
		d = dec
		if !dec.Allowed {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE quota_windows SET window_start = $3, count = $4, updated_at = NOW()
			WHERE account_id = $1 AND command = $2
		`, key.AccountID, key.Command, next.Start, next.Count); err != nil {
			return postgres.Classify(fmt.Errorf("ошибка обновления окна: %w", err))
		}
		return insertEvent(ctx, tx, key, next.Start, now, eventUsed)
	})
	if err != nil {
		return Decision{}, err
	}
	return d, nil
}

// Release возвращает один вызов в окно, если окно всё ещё то же самое.
// now попадает в quota_events.
func (r *Repository) Release(ctx context.Context, key Key, windowStart, now time.Time) error {
	return postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE quota_windows SET count = count - 1, updated_at = NOW()
			WHERE account_id = $1 AND command = $2 AND window_start = $3 AND count > 0
		`, key.AccountID, key.Command, windowStart)
		if err != nil {
			return postgres.Classify(fmt.Errorf("ошибка возврата вызова: %w", err))
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return insertEvent(ctx, tx, key, windowStart, now, eventReleased)
	})
}

// Get читает окно без блокировки. ok=false, если окна ещё не было.
func (r *Repository) Get(ctx context.Context, key Key) (Window, bool, error) {
	var w Window
	err := r.db.QueryRow(ctx, `
		SELECT window_start, count FROM quota_windows
		WHERE account_id = $1 AND command = $2
	`, key.AccountID, key.Command).Scan(&w.Start, &w.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, postgres.Classify(fmt.Errorf("ошибка чтения окна: %w", err))
	}
	return w, true, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, key Key, windowStart, at time.Time, kind string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO quota_events (account_id, command, window_start, kind, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, key.AccountID, key.Command, windowStart, kind, at)
	if err != nil {
		return postgres.Classify(fmt.Errorf("ошибка записи события квоты: %w", err))
	}
	return nil
}
