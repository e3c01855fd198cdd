// Package db opens the DuckDB database that backs the asset registry.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
	// InMemory skips the data directory and opens a private in-memory database.
	InMemory bool
}

// schema is applied on every open; statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS assets (
		id                VARCHAR PRIMARY KEY,
		type              VARCHAR NOT NULL,
		latitude          DOUBLE NOT NULL,
		longitude         DOUBLE NOT NULL,
		installation_date DATE NOT NULL,
		manufacturer      VARCHAR NOT NULL,
		model             VARCHAR NOT NULL,
		capacity          VARCHAR NOT NULL,
		condition         VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS panchayats (
		id   VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS consumables (
		id                     VARCHAR PRIMARY KEY,
		item_name              VARCHAR NOT NULL,
		current_quantity       INTEGER NOT NULL,
		minimum_threshold      INTEGER NOT NULL,
		replenishment_due_date DATE NOT NULL,
		panchayat_id           VARCHAR NOT NULL
	)`,
}

// Open opens (creating if needed) the DuckDB database and applies the schema.
// The caller owns the returned handle.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn := ""
	if !cfg.InMemory {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "assets"
		}
		dsn = filepath.Join(duckdbDir, name+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Migrate creates missing tables.
func Migrate(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Tables lists the tables in the main schema.
func Tables(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
