package store

import (
	"context"
	"testing"

	"github.com/erazemk/prenos/internal/db"
)

func TestGetJWTSecret_GeneratesAndPersists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	// First call should generate a secret.
	secret1, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 == "" {
		t.Fatal("expected non-empty secret")
	}
	if len(secret1) != 64 { // 32 bytes = 64 hex chars
		t.Fatalf("expected 64 hex chars, got %d", len(secret1))
	}

	// Second call should return the same secret.
	secret2, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Fatalf("expected same secret, got %q and %q", secret1, secret2)
	}
}

func TestSettingOrInitKeepsFirstValue(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	gen := func(v string) func() (string, error) {
		return func() (string, error) { return v, nil }
	}

	first, err := settingOrInit(ctx, database, "instance_id", gen("a"))
	if err != nil {
		t.Fatalf("settingOrInit: %v", err)
	}
	second, err := settingOrInit(ctx, database, "instance_id", gen("b"))
	if err != nil {
		t.Fatalf("settingOrInit: %v", err)
	}
	if first != "a" || second != "a" {
		t.Errorf("expected the first stored value to win, got %q then %q", first, second)
	}
}
