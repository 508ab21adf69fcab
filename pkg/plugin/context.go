package plugin

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/campuskit/campus/pkg/bus"
	"github.com/campuskit/campus/pkg/storage"
	"github.com/rs/zerolog"
)

// Context is the capability bundle handed to every lifecycle hook. It is
// bound to exactly one (tenantID, pluginID) pair and does not outlive the
// single hook invocation it was built for; the registry builds a fresh one
// on every call so hooks never see stale settings.
type Context struct {
	tenantID    string
	pluginID    string
	permissions map[Permission]bool
	storage     storage.Storage
	database    DatabaseAdapter
	eventBus    *bus.Bus
	installed   InstalledPluginRepository
	logger      zerolog.Logger

	mu       sync.RWMutex
	settings map[string]any
}

// TenantID returns the tenant this context is bound to.
func (c *Context) TenantID() string {
	return c.tenantID
}

// PluginID returns the plugin this context is bound to.
func (c *Context) PluginID() string {
	return c.pluginID
}

// Storage returns a file-storage handle confined to
// plugins/{pluginID}/{tenantID}; the plugin cannot address another tenant's
// or another plugin's files through it.
func (c *Context) Storage() storage.Storage {
	return c.storage
}

// Database returns the tenant-and-plugin-scoped data-access handle.
func (c *Context) Database() DatabaseAdapter {
	return c.database
}

// EventBus returns the shared platform bus. Scoping happens at publish and
// subscribe call sites by tenant ID.
func (c *Context) EventBus() *bus.Bus {
	return c.eventBus
}

// Logger returns a logger pre-tagged with the plugin and tenant identity.
func (c *Context) Logger() zerolog.Logger {
	return c.logger
}

// HasPermission reports whether the installation was granted a permission.
func (c *Context) HasPermission(perm Permission) bool {
	return c.permissions[perm]
}

// RequirePermission fails unless the installation was granted the permission.
func (c *Context) RequirePermission(perm Permission) error {
	if !c.permissions[perm] {
		return fmt.Errorf("permission denied: %s", perm)
	}
	return nil
}

// Config returns a copy of the installation's current settings.
func (c *Context) Config(ctx context.Context) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.settings))
	for k, v := range c.settings {
		out[k] = v
	}
	return out
}

// SetConfig shallow-merges patch into the installation's settings and, when
// a record already exists, persists the merge through the repository. The
// read-modify-write is serialized by the per-(tenant, plugin) lock the
// calling lifecycle operation holds; this method is not safe for writers
// racing outside that lock.
func (c *Context) SetConfig(ctx context.Context, patch map[string]any) error {
	c.mu.Lock()
	for k, v := range patch {
		c.settings[k] = v
	}
	c.mu.Unlock()

	record, err := c.installed.FindByPluginID(ctx, c.pluginID, c.tenantID)
	if err != nil {
		return fmt.Errorf("failed to load installation: %w", err)
	}
	if record == nil {
		// Not yet persisted (install hook in flight); the pending settings
		// are folded into the record when the install use-case saves it.
		return nil
	}

	if _, err := c.installed.Save(ctx, record.UpdateSettings(patch)); err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	return nil
}

// ContextFactory builds plugin contexts. Construction is pure: no I/O, just
// wiring of the shared bus, storage, and database singletons plus a freshly
// namespaced logger.
type ContextFactory struct {
	eventBus  *bus.Bus
	storage   storage.Storage
	database  DatabaseProvider
	installed InstalledPluginRepository
	logger    zerolog.Logger
}

// NewContextFactory creates a context factory.
func NewContextFactory(
	eventBus *bus.Bus,
	store storage.Storage,
	database DatabaseProvider,
	installed InstalledPluginRepository,
	logger zerolog.Logger,
) *ContextFactory {
	return &ContextFactory{
		eventBus:  eventBus,
		storage:   store,
		database:  database,
		installed: installed,
		logger:    logger,
	}
}

// Create builds a context for one (tenant, plugin) pair, seeded with the
// installation's granted permissions and current settings.
func (f *ContextFactory) Create(tenantID, pluginID string, permissions []Permission, settings map[string]any) *Context {
	grants := make(map[Permission]bool, len(permissions))
	for _, perm := range permissions {
		grants[perm] = true
	}

	seeded := make(map[string]any, len(settings))
	for k, v := range settings {
		seeded[k] = v
	}

	return &Context{
		tenantID:    tenantID,
		pluginID:    pluginID,
		permissions: grants,
		storage:     storage.Scoped(f.storage, path.Join("plugins", pluginID, tenantID)),
		database:    f.database.Scoped(tenantID, pluginID),
		eventBus:    f.eventBus,
		installed:   f.installed,
		settings:    seeded,
		logger: f.logger.With().
			Str("plugin", pluginID).
			Str("tenant", tenantID).
			Logger(),
	}
}
