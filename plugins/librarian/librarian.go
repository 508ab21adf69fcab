// Package librarian is the first-party library management plugin: a
// per-tenant book catalog with checkout tracking driven by platform events.
package librarian

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campuskit/campus/pkg/bus"
	"github.com/campuskit/campus/pkg/plugin"
)

// TopicCheckoutRequested is consumed when a student checks out a book.
const TopicCheckoutRequested = "library.checkout.requested"

const (
	collectionBooks = "books"
	collectionLoans = "loans"
)

// Plugin implements the library manager.
type Plugin struct {
	mu   sync.Mutex
	subs map[string]*bus.Subscription
}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{
		subs: make(map[string]*bus.Subscription),
	}
}

func (p *Plugin) Manifest() plugin.Manifest {
	return plugin.Manifest{
		ID:          "librarian",
		Name:        "Library Manager",
		Version:     "0.9.3",
		Description: "Book catalog, loans and overdue tracking for the school library",
		Author:      "Campus",
		Permissions: []plugin.Permission{},
		Provides: &plugin.Provides{
			MenuItems: []plugin.MenuItem{
				{Label: "Library", Route: "/admin/plugins/librarian", Icon: "book"},
			},
			DashboardWidgets: []map[string]any{
				{"widget": "overdue-loans", "title": "Overdue loans", "size": "small"},
			},
			Settings: []plugin.SettingField{
				{Key: "loanDays", Type: plugin.SettingNumber, Label: "Loan period (days)", DefaultValue: 14},
				{Key: "overdueNotices", Type: plugin.SettingBoolean, Label: "Send overdue notices", DefaultValue: true},
			},
		},
	}
}

func (p *Plugin) OnInstall(ctx context.Context, pc *plugin.Context) error {
	// An empty catalog marker keeps first listing cheap to verify.
	if _, err := pc.Database().Insert(ctx, collectionBooks, map[string]any{
		"title":  "Library Handbook",
		"author": "Campus",
		"copies": 1,
	}); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	log := pc.Logger()
	log.Info().Msg("Library manager installed")
	return nil
}

func (p *Plugin) OnEnable(ctx context.Context, pc *plugin.Context) error {
	tenantID := pc.TenantID()
	db := pc.Database()
	log := pc.Logger()
	loanDays := 14
	if v, ok := pc.Config(ctx)["loanDays"].(float64); ok && v > 0 {
		loanDays = int(v)
	}

	sub := pc.EventBus().Subscribe(TopicCheckoutRequested, tenantID, func(event bus.Event) {
		qctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		due := time.Now().AddDate(0, 0, loanDays)
		if _, err := db.Insert(qctx, collectionLoans, map[string]any{
			"bookId":    event.Payload["bookId"],
			"studentId": event.Payload["studentId"],
			"dueAt":     due.Format(time.RFC3339),
			"status":    "open",
		}); err != nil {
			log.Error().Err(err).Msg("Failed to record loan")
		}
	})

	p.mu.Lock()
	p.subs[tenantID] = sub
	p.mu.Unlock()

	log.Info().Int("loanDays", loanDays).Msg("Library manager enabled")
	return nil
}

func (p *Plugin) OnDisable(ctx context.Context, pc *plugin.Context) error {
	p.mu.Lock()
	sub, ok := p.subs[pc.TenantID()]
	delete(p.subs, pc.TenantID())
	p.mu.Unlock()

	if ok {
		sub.Cancel()
	}
	log := pc.Logger()
	log.Info().Msg("Library manager disabled")
	return nil
}

func (p *Plugin) OnUninstall(ctx context.Context, pc *plugin.Context) error {
	// Loan history is retained for audit; only the catalog is removed.
	if err := pc.Database().Drop(ctx, collectionBooks); err != nil {
		return fmt.Errorf("failed to drop catalog: %w", err)
	}
	log := pc.Logger()
	log.Info().Msg("Library manager uninstalled, loan history retained for audit")
	return nil
}
