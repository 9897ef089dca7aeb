package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/db/postgres"
	"serotonyl.ru/hacker-bot/internal/features/ledger"
)

// Repository — таблицы social_profiles и follows.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const profileColumns = `user_id, handle, bio, avatar, theme_color, followers, created_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	if err := row.Scan(&p.UserID, &p.Handle, &p.Bio, &p.Avatar, &p.ThemeColor, &p.Followers, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert создаёт профиль или обновляет био, аватар и цвет существующего.
// Ник и подписчики при обновлении не меняются. Занятый ник даёт
// ошибку уникальности, её разбирает сервис.
func (r *Repository) Upsert(ctx context.Context, userID int64, handle string, d Draft) (*Profile, bool, error) {
	var (
		p       Profile
		created bool
	)
	err := r.db.QueryRow(ctx, `
		INSERT INTO social_profiles (user_id, handle, bio, avatar, theme_color)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			bio = EXCLUDED.bio,
			avatar = EXCLUDED.avatar,
			theme_color = EXCLUDED.theme_color,
			updated_at = NOW()
		RETURNING `+profileColumns+`, (xmax = 0)
	`, userID, handle, d.Bio, d.Avatar, d.ThemeColor).Scan(
		&p.UserID, &p.Handle, &p.Bio, &p.Avatar, &p.ThemeColor, &p.Followers, &p.CreatedAt, &created,
	)
	if err != nil {
		return nil, false, postgres.Classify(fmt.Errorf("ошибка сохранения профиля: %w", err))
	}
	return &p, created, nil
}

// Get возвращает профиль или common.ErrNoSocialProfile.
func (r *Repository) Get(ctx context.Context, userID int64) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM social_profiles WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNoSocialProfile
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка чтения профиля: %w", err))
	}
	return p, nil
}

// ByHandle ищет профиль по нику без учёта регистра.
func (r *Repository) ByHandle(ctx context.Context, handle string) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM social_profiles WHERE LOWER(handle) = LOWER($1)`, handle))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrProfileNotFound
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("ошибка поиска профиля: %w", err))
	}
	return p, nil
}

// Follow записывает подписку и увеличивает счётчик цели одной транзакцией.
// Повторная подписка на того же пользователя даёт common.ErrAlreadyFollowing.
func (r *Repository) Follow(ctx context.Context, followerID, followedID int64) (*Profile, error) {
	var target *Profile
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO follows (follower_id, followed_id) VALUES ($1, $2)
			ON CONFLICT (follower_id, followed_id) DO NOTHING
		`, followerID, followedID)
		if err != nil {
			return postgres.Classify(fmt.Errorf("ошибка записи подписки: %w", err))
		}
		if tag.RowsAffected() == 0 {
			return common.ErrAlreadyFollowing
		}

		target, err = scanProfile(tx.QueryRow(ctx, `
			UPDATE social_profiles SET followers = followers + 1, updated_at = NOW()
			WHERE user_id = $1
			RETURNING `+profileColumns, followedID))
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrProfileNotFound
		}
		if err != nil {
			return postgres.Classify(fmt.Errorf("ошибка обновления подписчиков: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

// Boost списывает cost проводкой follower_boost и добавляет count подписчиков.
// Без профиля ничего не списывается: common.ErrNoSocialProfile.
func (r *Repository) Boost(ctx context.Context, userID int64, count int, cost int64) (*BoostResult, error) {
	res := &BoostResult{}
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT handle FROM social_profiles WHERE user_id = $1 FOR UPDATE
		`, userID).Scan(&res.Handle)
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrNoSocialProfile
		}
		if err != nil {
			return postgres.Classify(fmt.Errorf("ошибка блокировки профиля: %w", err))
		}

		e, err := ledger.ApplyInTx(ctx, tx, userID, -cost, ledger.ReasonFollowerBoost, fmt.Sprintf("x%d", count))
		if err != nil {
			return err
		}
		res.Balance = e.BalanceAfter

		if err := tx.QueryRow(ctx, `
			UPDATE social_profiles SET followers = followers + $2, updated_at = NOW()
			WHERE user_id = $1
			RETURNING followers
		`, userID, count).Scan(&res.Followers); err != nil {
			return postgres.Classify(fmt.Errorf("ошибка накрутки подписчиков: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
