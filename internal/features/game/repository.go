package game

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/hacker-bot/internal/db/postgres"
)

// Repository пишет журнал game_log.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Record добавляет запись в журнал.
func (r *Repository) Record(ctx context.Context, e *LogEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO game_log (id, user_id, command, outcome, amount, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.UserID, e.Command, e.Outcome, e.Amount, e.Detail)
	if err != nil {
		return postgres.Classify(fmt.Errorf("ошибка записи game_log: %w", err))
	}
	return nil
}

// Recent возвращает последние записи пользователя.
func (r *Repository) Recent(ctx context.Context, userID int64, limit int) ([]*LogEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, command, outcome, amount, detail, created_at
		FROM game_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка чтения game_log: %w", err))
	}
	defer rows.Close()

	var out []*LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Command, &e.Outcome, &e.Amount, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования game_log: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
