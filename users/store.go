package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/postboard-go/db"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when an insert hits the unique email index.
	ErrEmailTaken = errors.New("email already registered")
)

// ProfileChanges lists the profile columns to update. Nil fields are kept.
type ProfileChanges struct {
	Name     *string
	Contact  *string
	Location *string
	Image    *string
}

// Store is the persistence the user service needs.
type Store interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdateProfile(ctx context.Context, id string, changes ProfileChanges) (*User, error)
	SetOneTimeCode(ctx context.Context, id, code string, expireAt time.Time) error
	MarkVerified(ctx context.Context, id string) error
	StartPasswordReset(ctx context.Context, id string) error
	SetPassword(ctx context.Context, id, hash string) error
	ClearExpiredCodes(ctx context.Context, now time.Time) (int64, error)
}

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on the users table.
type PostgresStore struct {
	db dbtx
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

const userColumns = `id::text, name, role, contact, email, password, location, image, status,
	verified, version, created_at, updated_at, is_reset_password, one_time_code, otp_expire_at`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		code *string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Role, &u.Contact, &u.Email, &u.Password, &u.Location, &u.Image, &u.Status,
		&u.Verified, &u.Version, &u.CreatedAt, &u.UpdatedAt,
		&u.Authentication.IsResetPassword, &code, &u.Authentication.ExpireAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if code != nil {
		u.Authentication.OneTimeCode = *code
	}
	return &u, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
}

// Create inserts u. ID must already be set; timestamps and version are
// filled from the database.
func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, name, role, contact, email, password, location, image, status, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING version, created_at, updated_at`
	err := s.db.QueryRow(ctx, query,
		u.ID, u.Name, u.Role, u.Contact, u.Email, u.Password, u.Location, u.Image, u.Status, u.Verified,
	).Scan(&u.Version, &u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err, "users_email_key") {
		return ErrEmailTaken
	}
	return err
}

// UpdateProfile applies changes and returns the updated user.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, changes ProfileChanges) (*User, error) {
	var (
		setClauses []string
		args       []any
	)
	set := func(column string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	set("name", changes.Name)
	set("contact", changes.Contact)
	set("location", changes.Location)
	set("image", changes.Image)
	if len(setClauses) == 0 {
		return s.FindByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s, version = version + 1, updated_at = now() WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), len(args), userColumns)
	return scanUser(s.db.QueryRow(ctx, query, args...))
}

func (s *PostgresStore) SetOneTimeCode(ctx context.Context, id, code string, expireAt time.Time) error {
	return s.execOne(ctx, `UPDATE users SET one_time_code = $2, otp_expire_at = $3, updated_at = now() WHERE id = $1`,
		id, code, expireAt)
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE users SET verified = TRUE, one_time_code = NULL, otp_expire_at = NULL, updated_at = now() WHERE id = $1`, id)
}

func (s *PostgresStore) StartPasswordReset(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE users SET is_reset_password = TRUE, one_time_code = NULL, otp_expire_at = NULL, updated_at = now() WHERE id = $1`, id)
}

// SetPassword stores a new hash and ends any reset in progress.
func (s *PostgresStore) SetPassword(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, `UPDATE users SET password = $2, is_reset_password = FALSE, updated_at = now() WHERE id = $1`, id, hash)
}

// ClearExpiredCodes drops one-time codes whose expiry has passed.
func (s *PostgresStore) ClearExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE users SET one_time_code = NULL, otp_expire_at = NULL WHERE otp_expire_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
