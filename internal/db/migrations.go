package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS departments (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS locations (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS categories (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS assets (
    id            INTEGER PRIMARY KEY,
    name          TEXT NOT NULL,
    category_id   INTEGER REFERENCES categories(id),
    value         TEXT NOT NULL DEFAULT '0',
    status        TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'maintenance', 'retired')),
    user_id       INTEGER REFERENCES users(id),
    department_id INTEGER REFERENCES departments(id),
    location_id   INTEGER REFERENCES locations(id),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transfers (
    id                 INTEGER PRIMARY KEY,
    transfer_type      TEXT NOT NULL CHECK (transfer_type IN ('USER', 'DEPARTMENT', 'LOCATION', 'COMPLETE')),
    status             TEXT NOT NULL DEFAULT 'PENDING'
                       CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED', 'CANCELLED', 'COMPLETED')),
    from_user_id       INTEGER REFERENCES users(id),
    to_user_id         INTEGER REFERENCES users(id),
    from_department_id INTEGER REFERENCES departments(id),
    to_department_id   INTEGER REFERENCES departments(id),
    from_location_id   INTEGER REFERENCES locations(id),
    to_location_id     INTEGER REFERENCES locations(id),
    approval_required  INTEGER NOT NULL DEFAULT 0,
    reason             TEXT NOT NULL,
    notes              TEXT,
    scheduled_date     DATETIME,
    requested_by       INTEGER NOT NULL REFERENCES users(id),
    approved_by        INTEGER REFERENCES users(id),
    rejected_by        INTEGER REFERENCES users(id),
    rejection_reason   TEXT,
    completed_at       DATETIME,
    created_at         DATETIME NOT NULL,
    updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transfers_status ON transfers(status);
CREATE INDEX IF NOT EXISTS idx_transfers_requested_by ON transfers(requested_by);
CREATE INDEX IF NOT EXISTS idx_transfers_scheduled_date ON transfers(scheduled_date);

CREATE TABLE IF NOT EXISTS transfer_assets (
    transfer_id        INTEGER NOT NULL REFERENCES transfers(id),
    asset_id           INTEGER NOT NULL REFERENCES assets(id),
    position           INTEGER NOT NULL,
    prev_user_id       INTEGER,
    prev_department_id INTEGER,
    prev_location_id   INTEGER,
    captured           INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (transfer_id, asset_id)
);

CREATE TABLE IF NOT EXISTS approval_rules (
    id               INTEGER PRIMARY KEY,
    name             TEXT NOT NULL,
    description      TEXT,
    conditions       TEXT NOT NULL DEFAULT '{}',
    approver_role    TEXT CHECK (approver_role IS NULL OR approver_role IN ('admin', 'manager', 'user')),
    approver_user_id INTEGER REFERENCES users(id),
    priority         INTEGER NOT NULL DEFAULT 0,
    is_active        INTEGER NOT NULL DEFAULT 1,
    created_at       DATETIME NOT NULL,
    updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS asset_history (
    id                 INTEGER PRIMARY KEY,
    asset_id           INTEGER NOT NULL REFERENCES assets(id),
    transfer_id        INTEGER REFERENCES transfers(id),
    action             TEXT NOT NULL,
    performed_by       INTEGER REFERENCES users(id),
    details            TEXT,
    from_user_id       INTEGER,
    to_user_id         INTEGER,
    from_department_id INTEGER,
    to_department_id   INTEGER,
    from_location_id   INTEGER,
    to_location_id     INTEGER,
    created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_asset_history_asset ON asset_history(asset_id);

CREATE TABLE IF NOT EXISTS jobs (
    id           INTEGER PRIMARY KEY,
    transfer_id  INTEGER NOT NULL REFERENCES transfers(id),
    status       TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'running', 'done', 'failed')),
    attempts     INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL,
    run_at       DATETIME NOT NULL,
    lease_until  DATETIME,
    last_error   TEXT,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_transfer_open
    ON jobs(transfer_id) WHERE status IN ('pending', 'running');
CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(status, run_at);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: history lookups are always "latest first" for one transfer.
	`CREATE INDEX IF NOT EXISTS idx_asset_history_transfer
	     ON asset_history(transfer_id, created_at)`,
}

// Migrate creates the schema and runs the migrations.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
