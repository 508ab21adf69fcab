package plugin

import (
	"context"
	"fmt"
	"regexp"

	"github.com/campuskit/campus/internal/metrics"
	"github.com/campuskit/campus/pkg/bus"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service implements the user-facing lifecycle operations: each combines
// the registry, the persisted installation record, and a platform event
// publication into one operation that is atomic from the caller's point of
// view. All transitions for one (tenant, plugin) pair are serialized under
// a keyed mutex; different pairs proceed in parallel.
type Service struct {
	logger    zerolog.Logger
	registry  *Registry
	installed InstalledPluginRepository
	catalog   CatalogRepository
	eventBus  *bus.Bus
	metrics   *metrics.Metrics
	locks     *keyedMutex
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Registry  *Registry
	Installed InstalledPluginRepository
	Catalog   CatalogRepository
	EventBus  *bus.Bus
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics // optional
}

// NewService creates the lifecycle service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		logger:    cfg.Logger.With().Str("component", "plugin-service").Logger(),
		registry:  cfg.Registry,
		installed: cfg.Installed,
		catalog:   cfg.Catalog,
		eventBus:  cfg.EventBus,
		metrics:   cfg.Metrics,
		locks:     newKeyedMutex(),
	}
}

// Install installs a plugin for a tenant. Ordering is hook-then-save: the
// OnInstall hook runs first and only on success is the record persisted.
// If the save itself fails, OnUninstall runs as compensation so the hook's
// tenant resources are not orphaned.
func (s *Service) Install(ctx context.Context, tenantID, pluginID string) (InstalledPlugin, error) {
	unlock := s.locks.Lock(tenantID, pluginID)
	defer unlock()

	impl, err := s.registry.Lookup(pluginID)
	if err != nil {
		s.countOp("install", "error")
		return InstalledPlugin{}, err
	}
	manifest := impl.Manifest()

	existing, err := s.installed.FindByPluginID(ctx, pluginID, tenantID)
	if err != nil {
		s.countOp("install", "error")
		return InstalledPlugin{}, fmt.Errorf("failed to check installation: %w", err)
	}
	if existing != nil {
		s.countOp("install", "rejected")
		return InstalledPlugin{}, fmt.Errorf("%w: %s for tenant %s", ErrPluginAlreadyInstalled, pluginID, tenantID)
	}

	pc, err := s.registry.Install(ctx, tenantID, pluginID, manifest.Permissions)
	if err != nil {
		s.countOp("install", "error")
		return InstalledPlugin{}, err
	}

	record := NewInstalledPlugin(uuid.NewString(), tenantID, pluginID, manifest.Version, manifest.Permissions)
	if defaults := settingDefaults(manifest); len(defaults) > 0 {
		record = record.UpdateSettings(defaults)
	}
	if staged := pc.Config(ctx); len(staged) > 0 {
		record = record.UpdateSettings(staged)
	}

	saved, err := s.installed.Save(ctx, record)
	if err != nil {
		// Compensate: undo what OnInstall created so the install is atomic
		// from the caller's point of view.
		if uerr := s.registry.Uninstall(ctx, record); uerr != nil {
			s.logger.Error().
				Err(uerr).
				Str("plugin", pluginID).
				Str("tenant", tenantID).
				Msg("Compensating uninstall failed after save error")
		}
		s.countOp("install", "error")
		return InstalledPlugin{}, fmt.Errorf("failed to persist installation: %w", err)
	}

	s.publish(TopicPluginInstalled, tenantID, pluginID)
	s.countOp("install", "ok")
	s.logger.Info().Str("plugin", pluginID).Str("tenant", tenantID).Msg("Plugin installed")
	return saved, nil
}

// Enable enables an installed plugin. Settings the manifest marks required
// must be configured first. On hook failure the record is persisted in
// status "error" with the failure message; the failure is reported to the
// caller but is not fatal to the registry or other tenants, and a later
// retry is allowed.
func (s *Service) Enable(ctx context.Context, tenantID, pluginID string) (InstalledPlugin, error) {
	unlock := s.locks.Lock(tenantID, pluginID)
	defer unlock()

	record, err := s.requireInstalled(ctx, tenantID, pluginID)
	if err != nil {
		s.countOp("enable", "rejected")
		return InstalledPlugin{}, err
	}

	impl, err := s.registry.Lookup(pluginID)
	if err != nil {
		s.countOp("enable", "rejected")
		return InstalledPlugin{}, err
	}
	if err := checkRequiredSettings(impl.Manifest(), record.Settings); err != nil {
		s.countOp("enable", "rejected")
		return InstalledPlugin{}, err
	}

	if err := s.registry.Enable(ctx, *record); err != nil {
		record = s.reloadOr(ctx, record)
		failed, serr := s.installed.Save(ctx, record.SetError(err.Error()))
		if serr != nil {
			s.logger.Error().
				Err(serr).
				Str("plugin", pluginID).
				Str("tenant", tenantID).
				Msg("Failed to persist error status")
		}
		s.countOp("enable", "error")
		return failed, err
	}

	// The hook may have written settings through its context; saving the
	// pre-hook snapshot would revert them.
	record = s.reloadOr(ctx, record)

	enabled, err := s.installed.Save(ctx, record.Enable())
	if err != nil {
		s.countOp("enable", "error")
		return InstalledPlugin{}, fmt.Errorf("failed to persist enabled status: %w", err)
	}

	s.publish(TopicPluginEnabled, tenantID, pluginID)
	s.countOp("enable", "ok")
	s.logger.Info().Str("plugin", pluginID).Str("tenant", tenantID).Msg("Plugin enabled")
	return enabled, nil
}

// Disable disables an installed plugin. Hook failures surface to the caller.
func (s *Service) Disable(ctx context.Context, tenantID, pluginID string) (InstalledPlugin, error) {
	unlock := s.locks.Lock(tenantID, pluginID)
	defer unlock()

	record, err := s.requireInstalled(ctx, tenantID, pluginID)
	if err != nil {
		s.countOp("disable", "rejected")
		return InstalledPlugin{}, err
	}

	if err := s.registry.Disable(ctx, tenantID, pluginID); err != nil {
		s.countOp("disable", "error")
		return InstalledPlugin{}, err
	}

	record = s.reloadOr(ctx, record)

	disabled, err := s.installed.Save(ctx, record.Disable())
	if err != nil {
		s.countOp("disable", "error")
		return InstalledPlugin{}, fmt.Errorf("failed to persist disabled status: %w", err)
	}

	s.publish(TopicPluginDisabled, tenantID, pluginID)
	s.countOp("disable", "ok")
	s.logger.Info().Str("plugin", pluginID).Str("tenant", tenantID).Msg("Plugin disabled")
	return disabled, nil
}

// Uninstall removes a plugin installation entirely. The registry runs the
// disable path first when the pair is enabled, then OnUninstall; only then
// is the persisted record deleted. Hook failures abort the operation with
// the record intact.
func (s *Service) Uninstall(ctx context.Context, tenantID, pluginID string) error {
	unlock := s.locks.Lock(tenantID, pluginID)
	defer unlock()

	record, err := s.requireInstalled(ctx, tenantID, pluginID)
	if err != nil {
		s.countOp("uninstall", "rejected")
		return err
	}

	if err := s.registry.Uninstall(ctx, *record); err != nil {
		s.countOp("uninstall", "error")
		return err
	}

	if err := s.installed.Delete(ctx, record.ID, tenantID); err != nil {
		s.countOp("uninstall", "error")
		return fmt.Errorf("failed to delete installation: %w", err)
	}

	s.countOp("uninstall", "ok")
	s.logger.Info().Str("plugin", pluginID).Str("tenant", tenantID).Msg("Plugin uninstalled")
	return nil
}

// UpdateSettings validates a settings patch against the manifest's declared
// setting fields and merges it into the installation.
func (s *Service) UpdateSettings(ctx context.Context, tenantID, pluginID string, patch map[string]any) (InstalledPlugin, error) {
	unlock := s.locks.Lock(tenantID, pluginID)
	defer unlock()

	record, err := s.requireInstalled(ctx, tenantID, pluginID)
	if err != nil {
		return InstalledPlugin{}, err
	}

	impl, err := s.registry.Lookup(pluginID)
	if err != nil {
		return InstalledPlugin{}, err
	}
	if err := validateSettingsPatch(impl.Manifest(), patch); err != nil {
		return InstalledPlugin{}, err
	}

	updated, err := s.installed.Save(ctx, record.UpdateSettings(patch))
	if err != nil {
		return InstalledPlugin{}, fmt.Errorf("failed to persist settings: %w", err)
	}
	return updated, nil
}

// ListInstalled returns all installations for a tenant.
func (s *Service) ListInstalled(ctx context.Context, tenantID string) ([]InstalledPlugin, error) {
	return s.installed.FindAll(ctx, tenantID)
}

// GetInstalled returns a tenant's installation of a plugin.
func (s *Service) GetInstalled(ctx context.Context, tenantID, pluginID string) (InstalledPlugin, error) {
	record, err := s.requireInstalled(ctx, tenantID, pluginID)
	if err != nil {
		return InstalledPlugin{}, err
	}
	return *record, nil
}

// Marketplace lists catalog entries, optionally filtered by category or
// matched against a search query.
func (s *Service) Marketplace(ctx context.Context, category, query string) ([]CatalogEntry, error) {
	switch {
	case query != "":
		return s.catalog.Search(ctx, query)
	case category != "":
		return s.catalog.FindByCategory(ctx, category)
	default:
		return s.catalog.FindAll(ctx)
	}
}

// LoadEnabled re-enables every installation persisted as enabled for a
// tenant, typically at startup. Per-plugin failures are contained: each is
// logged and persisted as an error status, and the rest of the tenant's
// plugins keep loading.
func (s *Service) LoadEnabled(ctx context.Context, tenantID string) error {
	records, err := s.installed.FindEnabled(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load enabled plugins: %w", err)
	}

	for _, record := range records {
		unlock := s.locks.Lock(tenantID, record.PluginID)
		if err := s.registry.Enable(ctx, record); err != nil {
			s.logger.Error().
				Err(err).
				Str("plugin", record.PluginID).
				Str("tenant", tenantID).
				Msg("Failed to load enabled plugin")
			if _, serr := s.installed.Save(ctx, record.SetError(err.Error())); serr != nil {
				s.logger.Error().
					Err(serr).
					Str("plugin", record.PluginID).
					Str("tenant", tenantID).
					Msg("Failed to persist error status")
			}
			s.countOp("load", "error")
		} else {
			s.countOp("load", "ok")
		}
		unlock()
	}

	return nil
}

// reloadOr returns the current persisted state of a record, falling back
// to the given snapshot when the reload fails. Used around hooks so a
// status transition saved afterwards carries any settings the hook wrote.
func (s *Service) reloadOr(ctx context.Context, record *InstalledPlugin) *InstalledPlugin {
	fresh, err := s.installed.FindByPluginID(ctx, record.PluginID, record.TenantID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("plugin", record.PluginID).
			Str("tenant", record.TenantID).
			Msg("Failed to reload installation, using pre-hook snapshot")
		return record
	}
	if fresh == nil {
		return record
	}
	return fresh
}

func (s *Service) requireInstalled(ctx context.Context, tenantID, pluginID string) (*InstalledPlugin, error) {
	record, err := s.installed.FindByPluginID(ctx, pluginID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load installation: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s for tenant %s", ErrPluginNotInstalled, pluginID, tenantID)
	}
	return record, nil
}

func (s *Service) publish(topic, tenantID, pluginID string) {
	s.eventBus.Publish(topic, tenantID, map[string]any{
		"pluginId": pluginID,
		"tenantId": tenantID,
	})
	if s.metrics != nil {
		s.metrics.EventsPublishedTotal.WithLabelValues(topic).Inc()
	}
}

func (s *Service) countOp(operation, status string) {
	if s.metrics != nil {
		s.metrics.LifecycleOpsTotal.WithLabelValues(operation, status).Inc()
	}
}

// settingDefaults extracts the declared default values from a manifest.
func settingDefaults(manifest Manifest) map[string]any {
	if manifest.Provides == nil {
		return nil
	}
	defaults := make(map[string]any)
	for _, field := range manifest.Provides.Settings {
		if field.DefaultValue != nil {
			defaults[field.Key] = field.DefaultValue
		}
	}
	return defaults
}

// validateSettingsPatch checks a patch against the manifest's declared
// setting fields: undeclared keys are rejected and values must match the
// declared type.
func validateSettingsPatch(manifest Manifest, patch map[string]any) error {
	declared := make(map[string]SettingField)
	if manifest.Provides != nil {
		for _, field := range manifest.Provides.Settings {
			declared[field.Key] = field
		}
	}

	for key, value := range patch {
		field, ok := declared[key]
		if !ok {
			return fmt.Errorf("%w: key %q is not declared by the plugin", ErrInvalidSettings, key)
		}
		if value == nil {
			continue
		}
		switch field.Type {
		case SettingText, SettingPassword:
			if _, ok := value.(string); !ok {
				return fmt.Errorf("%w: %q must be a string", ErrInvalidSettings, key)
			}
		case SettingNumber:
			switch value.(type) {
			case float64, float32, int, int32, int64:
			default:
				return fmt.Errorf("%w: %q must be a number", ErrInvalidSettings, key)
			}
		case SettingBoolean:
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("%w: %q must be a boolean", ErrInvalidSettings, key)
			}
		case SettingSelect:
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: %q must be a string", ErrInvalidSettings, key)
			}
			if len(field.Options) > 0 {
				valid := false
				for _, opt := range field.Options {
					if opt == str {
						valid = true
						break
					}
				}
				if !valid {
					return fmt.Errorf("%w: %q must be one of %v", ErrInvalidSettings, key, field.Options)
				}
			}
		}
		if field.Validation != "" {
			str, ok := value.(string)
			if ok {
				re, err := regexp.Compile(field.Validation)
				if err != nil {
					return fmt.Errorf("%w: %q has an invalid validation pattern: %v", ErrInvalidSettings, key, err)
				}
				if !re.MatchString(str) {
					return fmt.Errorf("%w: %q does not match %s", ErrInvalidSettings, key, field.Validation)
				}
			}
		}
	}
	return nil
}

// checkRequiredSettings verifies every setting the manifest marks required
// has a configured value. Enforced at enable time: a plugin installs fine
// without its credentials but cannot run until they are set.
func checkRequiredSettings(manifest Manifest, settings map[string]any) error {
	if manifest.Provides == nil {
		return nil
	}
	for _, field := range manifest.Provides.Settings {
		if !field.Required {
			continue
		}
		value, ok := settings[field.Key]
		if !ok || value == nil {
			return fmt.Errorf("%w: required setting %q is not configured", ErrInvalidSettings, field.Key)
		}
		if str, isString := value.(string); isString && str == "" {
			return fmt.Errorf("%w: required setting %q is empty", ErrInvalidSettings, field.Key)
		}
	}
	return nil
}
