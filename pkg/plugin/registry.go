package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/campuskit/campus/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultHookTimeout bounds a single lifecycle hook invocation. Hooks are
// arbitrary plugin code; exceeding the deadline is treated as a hook failure.
const DefaultHookTimeout = 30 * time.Second

// Registry is the lifecycle orchestrator. It holds the catalog of loaded
// plugin implementations, drives lifecycle transitions by calling hooks
// with a freshly built context, and tracks the active context per
// (tenant, plugin) key so enables can be torn down later.
//
// Registry methods do not lock per key themselves; the use-case layer
// serializes lifecycle transitions per (tenant, plugin) pair and calls in
// under that lock.
type Registry struct {
	logger      zerolog.Logger
	validator   *Validator
	factory     *ContextFactory
	metrics     *metrics.Metrics
	hookTimeout time.Duration

	mu      sync.RWMutex
	catalog map[string]Plugin
	active  map[string]*Context
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Factory     *ContextFactory
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics // optional
	HookTimeout time.Duration    // defaults to DefaultHookTimeout
}

// NewRegistry creates a plugin registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = DefaultHookTimeout
	}
	return &Registry{
		logger:      cfg.Logger.With().Str("component", "plugin-registry").Logger(),
		validator:   NewValidator(cfg.Logger),
		factory:     cfg.Factory,
		metrics:     cfg.Metrics,
		hookTimeout: cfg.HookTimeout,
		catalog:     make(map[string]Plugin),
		active:      make(map[string]*Context),
	}
}

// Register validates an implementation's manifest and adds it to the
// catalog. Duplicate IDs are rejected.
func (r *Registry) Register(impl Plugin) error {
	manifest := impl.Manifest()
	if err := r.validator.Validate(manifest); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.catalog[manifest.ID]; exists {
		return fmt.Errorf("plugin %s already registered", manifest.ID)
	}
	r.catalog[manifest.ID] = impl

	r.logger.Info().
		Str("plugin", manifest.ID).
		Str("version", manifest.Version).
		Msg("Plugin registered")

	return nil
}

// Lookup returns the loaded implementation for a plugin ID.
func (r *Registry) Lookup(pluginID string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	impl, exists := r.catalog[pluginID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, pluginID)
	}
	return impl, nil
}

// Manifests returns the manifests of all loaded implementations, sorted by ID.
func (r *Registry) Manifests() []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	manifests := make([]Manifest, 0, len(r.catalog))
	for _, impl := range r.catalog {
		manifests = append(manifests, impl.Manifest())
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].ID < manifests[j].ID })
	return manifests
}

// IsActive reports whether a (tenant, plugin) pair is tracked as enabled.
func (r *Registry) IsActive(tenantID, pluginID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, tracked := r.active[contextKey(tenantID, pluginID)]
	return tracked
}

// ActiveCount returns the number of tracked (tenant, plugin) contexts.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Install runs OnInstall with a fresh context. On hook failure the error
// propagates and nothing is tracked or persisted; the returned context
// carries any settings the hook staged via SetConfig so the caller can fold
// them into the record it creates.
func (r *Registry) Install(ctx context.Context, tenantID, pluginID string, permissions []Permission) (*Context, error) {
	impl, err := r.Lookup(pluginID)
	if err != nil {
		return nil, err
	}

	pc := r.factory.Create(tenantID, pluginID, permissions, nil)
	if err := r.runHook(ctx, "onInstall", tenantID, pluginID, pc, impl.OnInstall); err != nil {
		return nil, err
	}
	return pc, nil
}

// Enable runs OnEnable with a context seeded from the record's current
// settings and tracks it for later teardown. Enabling an already-tracked
// pair is a no-op, so repeated enables never duplicate subscriptions.
func (r *Registry) Enable(ctx context.Context, record InstalledPlugin) error {
	impl, err := r.Lookup(record.PluginID)
	if err != nil {
		return err
	}

	key := contextKey(record.TenantID, record.PluginID)

	r.mu.RLock()
	_, tracked := r.active[key]
	r.mu.RUnlock()
	if tracked {
		r.logger.Debug().
			Str("plugin", record.PluginID).
			Str("tenant", record.TenantID).
			Msg("Already enabled, skipping")
		return nil
	}

	pc := r.factory.Create(record.TenantID, record.PluginID, record.Permissions, record.Settings)
	if err := r.runHook(ctx, "onEnable", record.TenantID, record.PluginID, pc, impl.OnEnable); err != nil {
		return err
	}

	r.mu.Lock()
	r.active[key] = pc
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.PluginsActive.Inc()
	}
	return nil
}

// Disable tears down a tracked context by running OnDisable and untracking
// it. Disabling a pair that is not tracked is tolerated: it logs a warning
// and returns nil rather than failing.
func (r *Registry) Disable(ctx context.Context, tenantID, pluginID string) error {
	key := contextKey(tenantID, pluginID)

	r.mu.RLock()
	pc, tracked := r.active[key]
	r.mu.RUnlock()

	if !tracked {
		r.logger.Warn().
			Str("plugin", pluginID).
			Str("tenant", tenantID).
			Msg("Disable requested for plugin that is not tracked as enabled")
		return nil
	}

	impl, err := r.Lookup(pluginID)
	if err != nil {
		return err
	}

	if err := r.runHook(ctx, "onDisable", tenantID, pluginID, pc, impl.OnDisable); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.active, key)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.PluginsActive.Dec()
	}
	return nil
}

// Uninstall runs the disable path first when the pair is tracked as
// enabled, then runs OnUninstall with a fresh context. Deleting the
// persisted record afterwards is the caller's responsibility.
func (r *Registry) Uninstall(ctx context.Context, record InstalledPlugin) error {
	if r.IsActive(record.TenantID, record.PluginID) {
		if err := r.Disable(ctx, record.TenantID, record.PluginID); err != nil {
			return err
		}
	}

	impl, err := r.Lookup(record.PluginID)
	if err != nil {
		return err
	}

	pc := r.factory.Create(record.TenantID, record.PluginID, record.Permissions, record.Settings)
	return r.runHook(ctx, "onUninstall", record.TenantID, record.PluginID, pc, impl.OnUninstall)
}

// runHook invokes one lifecycle hook under the configured timeout with
// panic containment. Failures come back as *HookError wrapping the cause.
// A timed-out hook goroutine is not killed; it keeps running with the
// cancelled context, so hooks must honor ctx cancellation. Side effects
// made after the deadline (bus subscriptions in particular) belong to a
// pair that was never tracked and cannot be torn down.
func (r *Registry) runHook(
	ctx context.Context,
	hook, tenantID, pluginID string,
	pc *Context,
	fn func(context.Context, *Context) error,
) error {
	hctx, cancel := context.WithTimeout(ctx, r.hookTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("hook panicked: %v", rec)
			}
		}()
		done <- fn(hctx, pc)
	}()

	var err error
	select {
	case err = <-done:
	case <-hctx.Done():
		err = ErrHookTimeout
	}

	if r.metrics != nil {
		r.metrics.HookDuration.WithLabelValues(hook).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if r.metrics != nil {
			r.metrics.HookFailuresTotal.WithLabelValues(hook).Inc()
		}
		r.logger.Error().
			Err(err).
			Str("hook", hook).
			Str("plugin", pluginID).
			Str("tenant", tenantID).
			Msg("Lifecycle hook failed")
		return &HookError{Hook: hook, PluginID: pluginID, TenantID: tenantID, Err: err}
	}

	r.logger.Debug().
		Str("hook", hook).
		Str("plugin", pluginID).
		Str("tenant", tenantID).
		Dur("took", time.Since(start)).
		Msg("Lifecycle hook completed")
	return nil
}

func contextKey(tenantID, pluginID string) string {
	return tenantID + ":" + pluginID
}
