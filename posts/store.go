package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/postboard-go/db"
)

var (
	// ErrNotFound is returned when no post matches.
	ErrNotFound = errors.New("post not found")
	// ErrTitleTaken is returned when a write hits the unique title index.
	ErrTitleTaken = errors.New("post title already exists")
)

// PostChanges lists the columns to update. Nil fields are kept.
type PostChanges struct {
	Title       *string
	Description *string
	Image       *string
}

// Store is the persistence the post service needs.
type Store interface {
	FindByID(ctx context.Context, id string) (*Post, error)
	TitleExists(ctx context.Context, title string) (bool, error)
	Create(ctx context.Context, p *Post) error
	Update(ctx context.Context, id string, changes PostChanges) (*Post, error)
	Delete(ctx context.Context, id string) (*Post, error)
}

// PostgresStore implements Store on the posts table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postColumns = `id::text, creator_id::text, title, description, image, version, created_at, updated_at`

func scanPost(row pgx.Row) (*Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.CreatorID, &p.Title, &p.Description, &p.Image, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &p, nil
}

func mapWriteError(err error) error {
	if db.IsUniqueViolation(err, "posts_title_key") {
		return ErrTitleTaken
	}
	return err
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Post, error) {
	return scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
}

func (s *PostgresStore) TitleExists(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE title = $1)`, title).Scan(&exists)
	return exists, err
}

// Create inserts p. ID must already be set.
func (s *PostgresStore) Create(ctx context.Context, p *Post) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO posts (id, creator_id, title, description, image)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING version, created_at, updated_at`,
		p.ID, p.CreatorID, p.Title, p.Description, p.Image,
	).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	return mapWriteError(err)
}

func (s *PostgresStore) Update(ctx context.Context, id string, changes PostChanges) (*Post, error) {
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
	set("title", changes.Title)
	set("description", changes.Description)
	set("image", changes.Image)
	if len(setClauses) == 0 {
		return s.FindByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE posts SET %s, version = version + 1, updated_at = now() WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), len(args), postColumns)
	return scanPost(s.pool.QueryRow(ctx, query, args...))
}

// Delete removes the post and returns it as it was.
func (s *PostgresStore) Delete(ctx context.Context, id string) (*Post, error) {
	return scanPost(s.pool.QueryRow(ctx, `DELETE FROM posts WHERE id = $1 RETURNING `+postColumns, id))
}
