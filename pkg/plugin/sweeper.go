package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TenantSource enumerates the tenants that have plugin installations.
type TenantSource interface {
	Tenants(ctx context.Context) ([]string, error)
}

// Sweeper periodically retries plugins stuck in status "error". An errored
// installation is not a permanent trap: the sweep re-attempts enable on a
// schedule so transient failures heal without operator action.
type Sweeper struct {
	service *Service
	tenants TenantSource
	cron    *cron.Cron
	entry   cron.EntryID
	logger  zerolog.Logger
}

// NewSweeper creates a sweeper retrying errored plugins on the given cron
// schedule (standard five-field expression).
func NewSweeper(service *Service, tenants TenantSource, schedule string, logger zerolog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		service: service,
		tenants: tenants,
		cron:    cron.New(),
		logger:  logger.With().Str("component", "plugin-sweeper").Logger(),
	}

	entry, err := s.cron.AddFunc(schedule, s.sweep)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.entry = entry
	return s, nil
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Retry sweeper started")
}

// Stop stops the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Retry sweeper stopped")
}

// Sweep runs one pass immediately, outside the schedule.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweepCtx(ctx)
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	s.sweepCtx(ctx)
}

func (s *Sweeper) sweepCtx(ctx context.Context) {
	tenants, err := s.tenants.Tenants(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to enumerate tenants")
		return
	}

	retried, recovered := 0, 0
	for _, tenantID := range tenants {
		records, err := s.service.ListInstalled(ctx, tenantID)
		if err != nil {
			s.logger.Error().Err(err).Str("tenant", tenantID).Msg("Failed to list installations")
			continue
		}
		for _, record := range records {
			if record.Status != StatusError {
				continue
			}
			retried++
			if _, err := s.service.Enable(ctx, tenantID, record.PluginID); err != nil {
				s.logger.Warn().
					Err(err).
					Str("plugin", record.PluginID).
					Str("tenant", tenantID).
					Msg("Retry enable failed, leaving in error state")
				continue
			}
			recovered++
		}
	}

	if retried > 0 {
		s.logger.Info().
			Int("retried", retried).
			Int("recovered", recovered).
			Msg("Error retry sweep complete")
	}
}
