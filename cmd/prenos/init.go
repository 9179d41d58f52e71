package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/erazemk/prenos/internal/auth"
	"github.com/erazemk/prenos/internal/config"
	"github.com/erazemk/prenos/internal/db"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

func newInitCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and the first admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, *cfgFile)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.DB); err == nil {
				return fmt.Errorf("database %s already exists", cfg.DB)
			}

			database, password, err := initDatabase(cfg.DB, cfg.AdminUser)
			if err != nil {
				return err
			}
			defer database.Close()

			printInitResult(cfg.DB, cfg.AdminUser, password)
			return nil
		},
	}
}

// initDatabase creates a new database with the schema and an admin user. On
// failure the partially created file is removed.
func initDatabase(path, adminUsername string) (_ *sql.DB, _ string, err error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err != nil {
			database.Close()
			os.Remove(path)
		}
	}()

	if err := db.Migrate(database); err != nil {
		return nil, "", fmt.Errorf("creating schema: %w", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return nil, "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	if _, err := store.CreateUser(context.Background(), database, adminUsername, hash, model.RoleAdmin); err != nil {
		return nil, "", fmt.Errorf("creating admin user: %w", err)
	}

	return database, password, nil
}

// openDatabase opens the database at path, creating it with an admin user
// if it does not exist yet.
func openDatabase(path, adminUsername string) (*sql.DB, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		database, password, err := initDatabase(path, adminUsername)
		if err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		printInitResult(path, adminUsername, password)
		fmt.Println()
		return database, nil
	}

	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	// Idempotent; applies migrations added since the database was created.
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return database, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
