package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oversift/trustwatch/internal/trust"
)

// CreateUser inserts a user; an existing email is left untouched.
func (s *Store) CreateUser(ctx context.Context, u trust.User) error {
	if _, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
	`, u.ID, u.Email, u.Name, u.CreatedAt); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (trust.User, error) {
	var u trust.User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, name, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return trust.User{}, trust.ErrNotFound
	}
	if err != nil {
		return trust.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}
