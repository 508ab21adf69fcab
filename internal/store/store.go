package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store owns the SQLite database backing the plugin platform: installation
// records, the marketplace catalog, and the per-plugin document store.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the platform database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS installed_plugins (
		id           TEXT PRIMARY KEY,
		tenant_id    TEXT NOT NULL,
		plugin_id    TEXT NOT NULL,
		version      TEXT NOT NULL,
		status       TEXT NOT NULL,
		settings     TEXT NOT NULL DEFAULT '{}',
		permissions  TEXT NOT NULL DEFAULT '[]',
		installed_at TIMESTAMP NOT NULL,
		enabled_at   TIMESTAMP,
		disabled_at  TIMESTAMP,
		last_error   TEXT NOT NULL DEFAULT '',
		updated_at   TIMESTAMP NOT NULL,
		UNIQUE (tenant_id, plugin_id)
	);
	CREATE INDEX IF NOT EXISTS idx_installed_tenant_status
		ON installed_plugins (tenant_id, status);

	CREATE TABLE IF NOT EXISTS marketplace_plugins (
		id          TEXT PRIMARY KEY,
		plugin_id   TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		version     TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		author      TEXT NOT NULL DEFAULT '',
		category    TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_marketplace_category
		ON marketplace_plugins (category);

	CREATE TABLE IF NOT EXISTS plugin_documents (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		plugin_id  TEXT NOT NULL,
		collection TEXT NOT NULL,
		body       TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_scope
		ON plugin_documents (tenant_id, plugin_id, collection);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Tenants returns every tenant that has at least one installation.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM installed_plugins ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenantID)
	}
	return tenants, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
