package account

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTokenNotFound is returned for unknown reset tokens.
var ErrTokenNotFound = errors.New("reset token not found")

// ResetToken authorizes one password reset.
type ResetToken struct {
	Token    string
	UserID   string
	ExpireAt time.Time
}

// ResetTokenStore persists reset tokens.
type ResetTokenStore interface {
	Create(ctx context.Context, t ResetToken) error
	Find(ctx context.Context, token string) (*ResetToken, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PostgresResetTokens implements ResetTokenStore on the reset_tokens table.
type PostgresResetTokens struct {
	pool *pgxpool.Pool
}

func NewPostgresResetTokens(pool *pgxpool.Pool) *PostgresResetTokens {
	return &PostgresResetTokens{pool: pool}
}

func (s *PostgresResetTokens) Create(ctx context.Context, t ResetToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reset_tokens (token, user_id, expire_at) VALUES ($1, $2, $3)`,
		t.Token, t.UserID, t.ExpireAt)
	return err
}

func (s *PostgresResetTokens) Find(ctx context.Context, token string) (*ResetToken, error) {
	var t ResetToken
	err := s.pool.QueryRow(ctx,
		`SELECT token, user_id::text, expire_at FROM reset_tokens WHERE token = $1`, token,
	).Scan(&t.Token, &t.UserID, &t.ExpireAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresResetTokens) Delete(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM reset_tokens WHERE token = $1`, token)
	return err
}

func (s *PostgresResetTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reset_tokens WHERE expire_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
