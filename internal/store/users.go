package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/prenos/internal/model"
)

// CreateUser creates a new user.
func CreateUser(ctx context.Context, q Querier, username, passwordHash, role string) (*model.User, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
		username, passwordHash, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, q, id)
}

// GetUser returns a user by ID, including soft-deleted users.
func GetUser(ctx context.Context, q Querier, id int64) (*model.User, error) {
	u := &model.User{}
	err := q.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at, deleted_at
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetActiveUser returns a user by ID, or nil if it does not exist or was deleted.
func GetActiveUser(ctx context.Context, q Querier, id int64) (*model.User, error) {
	u, err := GetUser(ctx, q, id)
	if err != nil || u == nil || u.DeletedAt != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByUsername returns a user by username (including soft-deleted for auth checks).
func GetUserByUsername(ctx context.Context, q Querier, username string) (*model.User, error) {
	u := &model.User{}
	err := q.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at, deleted_at
		 FROM users WHERE username = ? ORDER BY deleted_at IS NULL DESC, id DESC LIMIT 1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, q Querier) ([]model.User, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, username, password_hash, role, created_at, deleted_at
		 FROM users WHERE deleted_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, q Querier, id int64) error {
	result, err := q.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	return nil
}

// UpdateUserRole changes the role of an active user.
func UpdateUserRole(ctx context.Context, q Querier, id int64, role string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL`, role, id,
	)
	if err != nil {
		return fmt.Errorf("updating user role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating user role: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	return nil
}

// UpdateUserPassword replaces the password hash of an active user.
func UpdateUserPassword(ctx context.Context, q Querier, id int64, passwordHash string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`, passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	return nil
}
