package plugin

import (
	"context"
)

// InstalledPluginRepository persists per-tenant installation records.
// Find methods return nil (not an error) when no record matches.
type InstalledPluginRepository interface {
	FindAll(ctx context.Context, tenantID string) ([]InstalledPlugin, error)
	FindByID(ctx context.Context, id, tenantID string) (*InstalledPlugin, error)
	FindByPluginID(ctx context.Context, pluginID, tenantID string) (*InstalledPlugin, error)
	FindEnabled(ctx context.Context, tenantID string) ([]InstalledPlugin, error)
	Save(ctx context.Context, record InstalledPlugin) (InstalledPlugin, error)
	Delete(ctx context.Context, id, tenantID string) error
}

// CatalogRepository persists the marketplace listing of available plugins.
type CatalogRepository interface {
	FindAll(ctx context.Context) ([]CatalogEntry, error)
	FindByID(ctx context.Context, id string) (*CatalogEntry, error)
	FindByPluginID(ctx context.Context, pluginID string) (*CatalogEntry, error)
	FindByCategory(ctx context.Context, category string) ([]CatalogEntry, error)
	Search(ctx context.Context, query string) ([]CatalogEntry, error)
	Save(ctx context.Context, entry CatalogEntry) (CatalogEntry, error)
	Delete(ctx context.Context, id string) error
}

// DatabaseAdapter is the data-access handle a plugin receives through its
// Context. Every operation is confined to one (tenant, plugin) namespace by
// construction: collection names are transparently prefixed
// {tenantID}_{pluginID}_ and rows are tagged with both identifiers, so a
// plugin cannot observe or mutate another tenant's rows through this handle.
type DatabaseAdapter interface {
	Insert(ctx context.Context, collection string, body map[string]any) (Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Find(ctx context.Context, collection string, filter map[string]any) ([]Document, error)
	Update(ctx context.Context, collection, id string, patch map[string]any) (Document, error)
	Delete(ctx context.Context, collection, id string) error
	Drop(ctx context.Context, collection string) error
}

// DatabaseProvider hands out tenant-and-plugin-scoped database adapters.
type DatabaseProvider interface {
	Scoped(tenantID, pluginID string) DatabaseAdapter
}
