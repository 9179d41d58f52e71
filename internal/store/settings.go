package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const jwtSecretKey = "jwt_secret"

// GetJWTSecret returns the token signing secret, generating and storing a
// random one on first use.
func GetJWTSecret(ctx context.Context, q Querier) (string, error) {
	return settingOrInit(ctx, q, jwtSecretKey, func() (string, error) {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		return hex.EncodeToString(buf), nil
	})
}

// settingOrInit returns the value of key, storing the result of gen first if
// the key is unset. Concurrent first calls agree on one value: the insert is
// ignored when another caller won, and the stored value is read back.
func settingOrInit(ctx context.Context, q Querier, key string, gen func() (string, error)) (string, error) {
	candidate, err := gen()
	if err != nil {
		return "", fmt.Errorf("generating %s: %w", key, err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, key, candidate,
	); err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}

	var value string
	if err := q.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value); err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}
