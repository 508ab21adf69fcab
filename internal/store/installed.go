package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/campuskit/campus/pkg/plugin"
)

// InstalledPlugins returns the installation-record repository backed by
// this store.
func (s *Store) InstalledPlugins() plugin.InstalledPluginRepository {
	return &installedRepo{store: s}
}

type installedRepo struct {
	store *Store
}

const installedColumns = `id, tenant_id, plugin_id, version, status, settings, permissions,
	installed_at, enabled_at, disabled_at, last_error, updated_at`

func (r *installedRepo) FindAll(ctx context.Context, tenantID string) ([]plugin.InstalledPlugin, error) {
	return r.query(ctx,
		`SELECT `+installedColumns+` FROM installed_plugins WHERE tenant_id = ? ORDER BY plugin_id`,
		tenantID)
}

func (r *installedRepo) FindByID(ctx context.Context, id, tenantID string) (*plugin.InstalledPlugin, error) {
	return r.queryOne(ctx,
		`SELECT `+installedColumns+` FROM installed_plugins WHERE id = ? AND tenant_id = ?`,
		id, tenantID)
}

func (r *installedRepo) FindByPluginID(ctx context.Context, pluginID, tenantID string) (*plugin.InstalledPlugin, error) {
	return r.queryOne(ctx,
		`SELECT `+installedColumns+` FROM installed_plugins WHERE plugin_id = ? AND tenant_id = ?`,
		pluginID, tenantID)
}

func (r *installedRepo) FindEnabled(ctx context.Context, tenantID string) ([]plugin.InstalledPlugin, error) {
	return r.query(ctx,
		`SELECT `+installedColumns+` FROM installed_plugins WHERE tenant_id = ? AND status = ? ORDER BY plugin_id`,
		tenantID, string(plugin.StatusEnabled))
}

func (r *installedRepo) Save(ctx context.Context, record plugin.InstalledPlugin) (plugin.InstalledPlugin, error) {
	settings, err := json.Marshal(record.Settings)
	if err != nil {
		return plugin.InstalledPlugin{}, fmt.Errorf("failed to encode settings: %w", err)
	}
	permissions, err := json.Marshal(record.Permissions)
	if err != nil {
		return plugin.InstalledPlugin{}, fmt.Errorf("failed to encode permissions: %w", err)
	}

	var enabledAt, disabledAt any
	if record.EnabledAt != nil {
		enabledAt = *record.EnabledAt
	}
	if record.DisabledAt != nil {
		disabledAt = *record.DisabledAt
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO installed_plugins
			(id, tenant_id, plugin_id, version, status, settings, permissions,
			 installed_at, enabled_at, disabled_at, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			version = excluded.version,
			status = excluded.status,
			settings = excluded.settings,
			permissions = excluded.permissions,
			enabled_at = excluded.enabled_at,
			disabled_at = excluded.disabled_at,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		record.ID, record.TenantID, record.PluginID, record.Version, string(record.Status),
		string(settings), string(permissions),
		record.InstalledAt, enabledAt, disabledAt, record.LastError, record.UpdatedAt)
	if err != nil {
		return plugin.InstalledPlugin{}, fmt.Errorf("failed to save installation: %w", err)
	}
	return record, nil
}

func (r *installedRepo) Delete(ctx context.Context, id, tenantID string) error {
	result, err := r.store.db.ExecContext(ctx,
		`DELETE FROM installed_plugins WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete installation: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("installation %s not found for tenant %s", id, tenantID)
	}
	return nil
}

func (r *installedRepo) query(ctx context.Context, q string, args ...any) ([]plugin.InstalledPlugin, error) {
	rows, err := r.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query installations: %w", err)
	}
	defer rows.Close()

	var records []plugin.InstalledPlugin
	for rows.Next() {
		record, err := scanInstalled(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *installedRepo) queryOne(ctx context.Context, q string, args ...any) (*plugin.InstalledPlugin, error) {
	rows, err := r.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query installation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	record, err := scanInstalled(rows)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func scanInstalled(rows *sql.Rows) (plugin.InstalledPlugin, error) {
	var (
		record                 plugin.InstalledPlugin
		status                 string
		settings, permissions  string
		enabledAt, disabledAt  sql.NullTime
	)
	err := rows.Scan(
		&record.ID, &record.TenantID, &record.PluginID, &record.Version, &status,
		&settings, &permissions,
		&record.InstalledAt, &enabledAt, &disabledAt, &record.LastError, &record.UpdatedAt)
	if err != nil {
		return plugin.InstalledPlugin{}, fmt.Errorf("failed to scan installation: %w", err)
	}

	record.Status = plugin.Status(status)
	if !plugin.ValidStatuses[record.Status] {
		return plugin.InstalledPlugin{}, errors.New("corrupt installation record: unknown status " + status)
	}
	if err := json.Unmarshal([]byte(settings), &record.Settings); err != nil {
		return plugin.InstalledPlugin{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := json.Unmarshal([]byte(permissions), &record.Permissions); err != nil {
		return plugin.InstalledPlugin{}, fmt.Errorf("failed to decode permissions: %w", err)
	}
	if record.Settings == nil {
		record.Settings = map[string]any{}
	}
	if record.Permissions == nil {
		record.Permissions = []plugin.Permission{}
	}
	if enabledAt.Valid {
		record.EnabledAt = &enabledAt.Time
	}
	if disabledAt.Valid {
		record.DisabledAt = &disabledAt.Time
	}
	return record, nil
}
