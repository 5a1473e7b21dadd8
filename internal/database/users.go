package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"

	"YOGA_TRAINER/posecoach/internal/models"
)

const uniqueViolation = "23505"

// CreateUser inserts a user. A taken email or username is ErrDuplicate,
// wrapped with the offending column.
func (s *Store) CreateUser(ctx context.Context, email, username, passwordHash string) (models.User, error) {
	u := models.User{Email: email, Username: username}
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO users (email, username, password_hash) VALUES ($1, $2, $3) RETURNING id, created_at",
		email, username, passwordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			field := "email"
			if strings.Contains(pgErr.ConstraintName, "username") {
				field = "username"
			}
			return models.User{}, fmt.Errorf("%s: %w", field, ErrDuplicate)
		}
		return models.User{}, fmt.Errorf("could not create user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, username, password_hash, created_at FROM users WHERE email = $1",
		email,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("could not load user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id int) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, username, created_at FROM users WHERE id = $1",
		id,
	).Scan(&u.ID, &u.Email, &u.Username, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("could not load user: %w", err)
	}
	return u, nil
}
