package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campuskit/campus/pkg/plugin"
)

// Catalog returns the marketplace repository backed by this store.
func (s *Store) Catalog() plugin.CatalogRepository {
	return &catalogRepo{store: s}
}

type catalogRepo struct {
	store *Store
}

const catalogColumns = `id, plugin_id, name, version, description, author, category, created_at, updated_at`

func (r *catalogRepo) FindAll(ctx context.Context) ([]plugin.CatalogEntry, error) {
	return r.query(ctx, `SELECT `+catalogColumns+` FROM marketplace_plugins ORDER BY name`)
}

func (r *catalogRepo) FindByID(ctx context.Context, id string) (*plugin.CatalogEntry, error) {
	return r.queryOne(ctx, `SELECT `+catalogColumns+` FROM marketplace_plugins WHERE id = ?`, id)
}

func (r *catalogRepo) FindByPluginID(ctx context.Context, pluginID string) (*plugin.CatalogEntry, error) {
	return r.queryOne(ctx, `SELECT `+catalogColumns+` FROM marketplace_plugins WHERE plugin_id = ?`, pluginID)
}

func (r *catalogRepo) FindByCategory(ctx context.Context, category string) ([]plugin.CatalogEntry, error) {
	return r.query(ctx,
		`SELECT `+catalogColumns+` FROM marketplace_plugins WHERE category = ? ORDER BY name`,
		category)
}

func (r *catalogRepo) Search(ctx context.Context, query string) ([]plugin.CatalogEntry, error) {
	like := "%" + query + "%"
	return r.query(ctx,
		`SELECT `+catalogColumns+` FROM marketplace_plugins
		 WHERE name LIKE ? OR description LIKE ? OR plugin_id LIKE ?
		 ORDER BY name`,
		like, like, like)
}

func (r *catalogRepo) Save(ctx context.Context, entry plugin.CatalogEntry) (plugin.CatalogEntry, error) {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO marketplace_plugins
			(id, plugin_id, name, version, description, author, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			description = excluded.description,
			author = excluded.author,
			category = excluded.category,
			updated_at = excluded.updated_at`,
		entry.ID, entry.PluginID, entry.Name, entry.Version, entry.Description,
		entry.Author, entry.Category, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return plugin.CatalogEntry{}, fmt.Errorf("failed to save catalog entry: %w", err)
	}
	return entry, nil
}

func (r *catalogRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.store.db.ExecContext(ctx, `DELETE FROM marketplace_plugins WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete catalog entry: %w", err)
	}
	return nil
}

func (r *catalogRepo) query(ctx context.Context, q string, args ...any) ([]plugin.CatalogEntry, error) {
	rows, err := r.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var entries []plugin.CatalogEntry
	for rows.Next() {
		entry, err := scanCatalog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *catalogRepo) queryOne(ctx context.Context, q string, args ...any) (*plugin.CatalogEntry, error) {
	rows, err := r.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	entry, err := scanCatalog(rows)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func scanCatalog(rows *sql.Rows) (plugin.CatalogEntry, error) {
	var entry plugin.CatalogEntry
	err := rows.Scan(
		&entry.ID, &entry.PluginID, &entry.Name, &entry.Version,
		&entry.Description, &entry.Author, &entry.Category,
		&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return plugin.CatalogEntry{}, fmt.Errorf("failed to scan catalog entry: %w", err)
	}
	return entry, nil
}
