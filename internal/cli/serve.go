package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuskit/campus/internal/config"
	"github.com/campuskit/campus/internal/logger"
	"github.com/campuskit/campus/internal/metrics"
	"github.com/campuskit/campus/internal/store"
	"github.com/campuskit/campus/pkg/bus"
	"github.com/campuskit/campus/pkg/gateway"
	"github.com/campuskit/campus/pkg/plugin"
	"github.com/campuskit/campus/pkg/storage"
	"github.com/campuskit/campus/plugins/librarian"
	"github.com/campuskit/campus/plugins/smstwilio"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the plugin platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	log.Info().Str("version", version).Msg("Starting campusd")

	m := metrics.New()

	db, err := store.Open(cfg.Database.Path, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	files, err := storage.NewLocal(cfg.Storage.Root, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	eventBus := bus.New(log)
	installed := db.InstalledPlugins()

	factory := plugin.NewContextFactory(eventBus, files, db.Documents(), installed, log)
	registry := plugin.NewRegistry(plugin.RegistryConfig{
		Factory:     factory,
		Logger:      log,
		Metrics:     m,
		HookTimeout: cfg.Plugins.HookTimeout,
	})

	// First-party plugins compiled into the host.
	for _, impl := range []plugin.Plugin{
		smstwilio.New(),
		librarian.New(),
	} {
		if err := registry.Register(impl); err != nil {
			return fmt.Errorf("failed to register plugin: %w", err)
		}
	}

	service := plugin.NewService(plugin.ServiceConfig{
		Registry:  registry,
		Installed: installed,
		Catalog:   db.Catalog(),
		EventBus:  eventBus,
		Logger:    log,
		Metrics:   m,
	})

	ctx := context.Background()
	if err := syncCatalog(ctx, db.Catalog(), registry); err != nil {
		return fmt.Errorf("failed to sync marketplace catalog: %w", err)
	}

	// Re-enable everything persisted as enabled before serving traffic.
	tenants, err := db.Tenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate tenants: %w", err)
	}
	for _, tenantID := range tenants {
		if err := service.LoadEnabled(ctx, tenantID); err != nil {
			log.Error().Err(err).Str("tenant", tenantID).Msg("Failed to load tenant plugins")
		}
	}

	var sweeper *plugin.Sweeper
	if cfg.Plugins.SweepEnabled {
		sweeper, err = plugin.NewSweeper(service, db, cfg.Plugins.SweepSchedule, log)
		if err != nil {
			return fmt.Errorf("failed to create sweeper: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	server, err := gateway.NewServer(gateway.Config{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Service:  service,
		EventBus: eventBus,
		Metrics:  m,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

// syncCatalog upserts a marketplace entry for every loaded implementation
// so tenants can discover what is installable on this deployment.
func syncCatalog(ctx context.Context, catalog plugin.CatalogRepository, registry *plugin.Registry) error {
	for _, manifest := range registry.Manifests() {
		existing, err := catalog.FindByPluginID(ctx, manifest.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		entry := plugin.CatalogEntry{
			PluginID:    manifest.ID,
			Name:        manifest.Name,
			Version:     manifest.Version,
			Description: manifest.Description,
			Author:      manifest.Author,
			UpdatedAt:   now,
		}
		if existing != nil {
			entry.ID = existing.ID
			entry.Category = existing.Category
			entry.CreatedAt = existing.CreatedAt
		} else {
			entry.ID = uuid.NewString()
			entry.CreatedAt = now
		}

		if _, err := catalog.Save(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}
