package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/hacker-bot/internal/db/postgres"
)

// Repository работает с таблицами admin_sessions и admin_login_attempts.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateSession создаёт новую сессию, закрывая предыдущие.
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	return postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE admin_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`,
			s.UserID,
		); err != nil {
			return postgres.Classify(fmt.Errorf("ошибка закрытия старых сессий: %w", err))
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO admin_sessions (user_id, session_token, authenticated_at, expires_at, last_activity, is_active)
			VALUES ($1, $2, $3, $4, $3, TRUE)
		`, s.UserID, s.SessionToken, s.AuthenticatedAt, s.ExpiresAt)
		if err != nil {
			return postgres.Classify(fmt.Errorf("ошибка создания сессии: %w", err))
		}
		return nil
	})
}

// ActiveSession возвращает действующую сессию или nil.
func (r *Repository) ActiveSession(ctx context.Context, userID int64, now time.Time) (*Session, error) {
	var s Session
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, session_token, authenticated_at, expires_at, last_activity, is_active
		FROM admin_sessions
		WHERE user_id = $1 AND is_active AND expires_at > $2
		ORDER BY authenticated_at DESC
		LIMIT 1
	`, userID, now).Scan(
		&s.ID, &s.UserID, &s.SessionToken, &s.AuthenticatedAt,
		&s.ExpiresAt, &s.LastActivity, &s.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка чтения сессии: %w", err))
	}
	return &s, nil
}

// Deactivate закрывает все сессии пользователя.
func (r *Repository) Deactivate(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE admin_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return postgres.Classify(fmt.Errorf("ошибка закрытия сессии: %w", err))
	}
	return nil
}

// Touch обновляет время последней активности.
func (r *Repository) Touch(ctx context.Context, userID int64, now time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE admin_sessions SET last_activity = $2 WHERE user_id = $1 AND is_active`, userID, now)
	if err != nil {
		return postgres.Classify(fmt.Errorf("ошибка обновления сессии: %w", err))
	}
	return nil
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, userID int64, success bool, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO admin_login_attempts (user_id, attempt_time, success) VALUES ($1, $2, $3)`,
		userID, at, success,
	)
	if err != nil {
		return postgres.Classify(fmt.Errorf("ошибка записи попытки входа: %w", err))
	}
	return nil
}

// FailedAttemptsSince — число неудачных попыток начиная с since.
func (r *Repository) FailedAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE user_id = $1 AND NOT success AND attempt_time >= $2
	`, userID, since).Scan(&n)
	if err != nil {
		return 0, postgres.Classify(fmt.Errorf("ошибка подсчёта попыток входа: %w", err))
	}
	return n, nil
}

// Dashboard собирает сводку по аккаунтам и платежам. Данные маркетплейса
// добавляет сервис.
func (r *Repository) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	d := &Dashboard{}
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE premium_tier <> '' AND premium_until > $1),
			COALESCE(SUM(balance), 0)::bigint
		FROM accounts
	`, now).Scan(&d.Accounts, &d.PremiumActive, &d.Circulation)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка сводки по аккаунтам: %w", err))
	}

	rows, err := r.db.Query(ctx, `
		SELECT currency, SUM(amount), COUNT(*)
		FROM payments
		GROUP BY currency
		ORDER BY currency
	`)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка сводки по платежам: %w", err))
	}
	defer rows.Close()
	for rows.Next() {
		var rev Revenue
		if err := rows.Scan(&rev.Currency, &rev.Amount, &rev.Payments); err != nil {
			return nil, fmt.Errorf("ошибка сканирования выручки: %w", err)
		}
		d.Revenue = append(d.Revenue, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Classify(err)
	}
	return d, nil
}
