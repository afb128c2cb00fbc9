package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"user-gateway/internal/apperr"
)

// Pool is satisfied by *pgxpool.Pool and by pgxmock pools.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Pool = (*pgxpool.Pool)(nil)

const (
	uniqueViolation = "23505"

	schemaSQL = `CREATE TABLE IF NOT EXISTS users (
	user_id  UUID PRIMARY KEY,
	username TEXT NOT NULL,
	email    TEXT
)`
	findSQL   = "SELECT user_id, username, email FROM users WHERE user_id = $1"
	createSQL = "INSERT INTO users (user_id, username, email) VALUES ($1, $2, $3) RETURNING user_id, username, email"
	deleteSQL = "DELETE FROM users WHERE user_id = $1"
)

type PostgresStore struct {
	pool Pool
}

func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the users table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, findSQL, id.String()))
}

func (s *PostgresStore) Create(ctx context.Context, u User) (User, error) {
	var email any
	if u.Email != nil {
		email = *u.Email
	}
	return scanUser(s.pool.QueryRow(ctx, createSQL, u.ID.String(), u.Username, email))
}

func (s *PostgresStore) Update(ctx context.Context, cmd UpdateCommand) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, cmd.SQL, cmd.Args...))
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, deleteSQL, id.String())
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		rawID string
		name  string
		email pgtype.Text
	)
	if err := row.Scan(&rawID, &name, &email); err != nil {
		return User{}, classify(err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return User{}, apperr.Internal(err)
	}
	u := User{ID: id, Username: name}
	if email.Valid {
		u.Email = &email.String
	}
	return u, nil
}

func classify(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrUserExists.Wrap(err)
	}
	return apperr.Internal(err)
}
