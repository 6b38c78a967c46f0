/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB initializes the SQLite database and creates necessary tables.
// dbPath may be a file path, a "sqlite://" URL or ":memory:".
func InitDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	dsn, inMemory := buildDSN(dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	if inMemory {
		// every connection to :memory: is a distinct database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	// Create tables and indexes
	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// buildDSN turns a configured database location into a go-sqlite3 DSN.
// Connection-level pragmas go into the DSN so that every pooled connection
// gets them, not only the first one.
func buildDSN(dbPath string) (string, bool) {
	path := strings.TrimPrefix(dbPath, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite:")
	if path == ":memory:" || path == "" {
		return "file::memory:?_foreign_keys=on", true
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", false
}

// createSchema creates all necessary database tables.
func createSchema(ctx context.Context, db *sql.DB) error {
	schema := `
	-- Enrolled identities
	CREATE TABLE IF NOT EXISTS identities (
		id TEXT PRIMARY KEY,
		public_key TEXT UNIQUE NOT NULL,
		private_key TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at INTEGER -- unix seconds, NULL if never expires
	);

	CREATE INDEX IF NOT EXISTS idx_identities_created_at ON identities(created_at);
	CREATE INDEX IF NOT EXISTS idx_identities_expires_at ON identities(expires_at);

	-- Addresses admitted on behalf of an identity
	CREATE TABLE IF NOT EXISTS hosts (
		ip_address TEXT PRIMARY KEY,
		identity_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		-- table constraints (placed after column definitions for compatibility)
		FOREIGN KEY (identity_id) REFERENCES identities(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_hosts_identity_id ON hosts(identity_id);
	`

	// Execute schema using transaction
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CloseDB closes the database connection.
func CloseDB(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
