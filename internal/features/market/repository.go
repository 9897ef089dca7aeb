package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/db/postgres"
)

// Repository — таблицы script_market и script_ratings.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const scriptColumns = `id, author_id, title, description, body, price, rating, votes, approved, created_at`

func scanScript(row pgx.Row) (*Script, error) {
	var s Script
	err := row.Scan(&s.ID, &s.AuthorID, &s.Title, &s.Description, &s.Body,
		&s.Price, &s.Rating, &s.Votes, &s.Approved, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Insert сохраняет заявку на модерацию.
func (r *Repository) Insert(ctx context.Context, authorID int64, sub Submission, price int64) (*Script, error) {
	s, err := scanScript(r.db.QueryRow(ctx, `
		INSERT INTO script_market (author_id, title, description, body, price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+scriptColumns,
		authorID, sub.Title, sub.Description, sub.Body, price))
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка сохранения скрипта: %w", err))
	}
	return s, nil
}

// Approved возвращает одобренные скрипты: сначала с лучшей оценкой.
func (r *Repository) Approved(ctx context.Context, limit int) ([]*Script, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+scriptColumns+` FROM script_market
		WHERE approved
		ORDER BY rating DESC NULLS LAST, votes DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка чтения маркета: %w", err))
	}
	defer rows.Close()

	var out []*Script
	for rows.Next() {
		s, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования скрипта: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Approve одобряет скрипт. Повторное одобрение ничего не меняет.
func (r *Repository) Approve(ctx context.Context, id int64) (*Script, error) {
	s, err := scanScript(r.db.QueryRow(ctx, `
		UPDATE script_market SET approved = TRUE, approved_at = COALESCE(approved_at, NOW())
		WHERE id = $1
		RETURNING `+scriptColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrScriptNotFound
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка одобрения скрипта: %w", err))
	}
	return s, nil
}

// Rate ставит или меняет оценку пользователя и пересчитывает средний
// рейтинг в одной транзакции. Оценивать можно только одобренные скрипты.
func (r *Repository) Rate(ctx context.Context, userID, scriptID int64, stars int) (*Script, error) {
	var s *Script
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		var (
			authorID int64
			approved bool
		)
		err := tx.QueryRow(ctx, `
			SELECT author_id, approved FROM script_market WHERE id = $1 FOR UPDATE
		`, scriptID).Scan(&authorID, &approved)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && !approved) {
			return common.ErrScriptNotFound
		}
		if err != nil {
			return postgres.Classify(fmt.Errorf("ошибка блокировки скрипта: %w", err))
		}
		if authorID == userID {
			return common.ErrOwnScript
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO script_ratings (script_id, user_id, stars) VALUES ($1, $2, $3)
			ON CONFLICT (script_id, user_id) DO UPDATE SET stars = EXCLUDED.stars, rated_at = NOW()
		`, scriptID, userID, stars); err != nil {
			return postgres.Classify(fmt.Errorf("ошибка записи оценки: %w", err))
		}

		s, err = scanScript(tx.QueryRow(ctx, `
			UPDATE script_market m SET
				rating = agg.avg,
				votes = agg.cnt
			FROM (
				SELECT AVG(stars)::float8 AS avg, COUNT(*)::int AS cnt
				FROM script_ratings WHERE script_id = $1
			) agg
			WHERE m.id = $1
			RETURNING m.id, m.author_id, m.title, m.description, m.body, m.price,
				m.rating, m.votes, m.approved, m.created_at
		`, scriptID))
		if err != nil {
			return postgres.Classify(fmt.Errorf("ошибка пересчёта рейтинга: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Pending — число заявок, ждущих модерации.
func (r *Repository) Pending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM script_market WHERE NOT approved`).Scan(&n); err != nil {
		return 0, postgres.Classify(fmt.Errorf("ошибка подсчёта заявок: %w", err))
	}
	return n, nil
}
