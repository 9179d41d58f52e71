package store

import (
	"context"
	"testing"

	"github.com/erazemk/prenos/internal/db"
	"github.com/erazemk/prenos/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "testuser", "hash123", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", user.Username)
	}
	if user.Role != model.RoleUser {
		t.Errorf("expected role 'user', got %q", user.Role)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", got.Username)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "alice", "hash", model.RoleAdmin)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Username != "alice" {
		t.Errorf("expected 'alice', got %q", user.Username)
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListUsers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "a", "hash", model.RoleUser)
	CreateUser(ctx, database, "b", "hash", model.RoleManager)

	users, err := ListUsers(ctx, database)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}

func TestDeleteUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "deleteme", "hash", model.RoleUser)
	if err := DeleteUser(ctx, database, user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	users, _ := ListUsers(ctx, database)
	if len(users) != 0 {
		t.Errorf("expected 0 users after delete, got %d", len(users))
	}

	if err := DeleteUser(ctx, database, user.ID); err == nil {
		t.Error("expected an error deleting an already deleted user")
	}
}

func TestGetActiveUserSkipsDeleted(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "gone", "hash", model.RoleUser)
	DeleteUser(ctx, database, user.ID)

	got, err := GetActiveUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetActiveUser: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for deleted user, got %+v", got)
	}

	// Still resolvable by plain lookup for history.
	got, _ = GetUser(ctx, database, user.ID)
	if got == nil {
		t.Error("expected deleted user to still be fetchable by ID")
	}
}

func TestUpdateUserRole(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "bob", "hash", model.RoleUser)
	if err := UpdateUserRole(ctx, database, user.ID, model.RoleManager); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.Role != model.RoleManager {
		t.Errorf("expected role 'manager', got %q", got.Role)
	}

	if err := UpdateUserRole(ctx, database, 999, model.RoleAdmin); err == nil {
		t.Error("expected error for missing user")
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "carol", "old-hash", model.RoleUser)
	if err := UpdateUserPassword(ctx, database, user.ID, "new-hash"); err != nil {
		t.Fatalf("UpdateUserPassword: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "new-hash" {
		t.Errorf("expected updated hash, got %q", got.PasswordHash)
	}

	DeleteUser(ctx, database, user.ID)
	if err := UpdateUserPassword(ctx, database, user.ID, "other"); err == nil {
		t.Error("expected error for deleted user")
	}
}
