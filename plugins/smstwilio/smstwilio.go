// Package smstwilio is the first-party SMS gateway plugin. It forwards
// platform SMS requests into a per-tenant outbox; actual delivery through
// the Twilio API happens in a worker outside the plugin runtime.
package smstwilio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campuskit/campus/pkg/bus"
	"github.com/campuskit/campus/pkg/plugin"
)

// TopicSMSRequested is the platform topic this plugin consumes.
const TopicSMSRequested = "communications.sms.requested"

// PermissionSend guards outbound SMS on behalf of a tenant.
const PermissionSend = plugin.Permission("communications:sms:send")

const (
	collectionOutbox    = "outbox"
	collectionTemplates = "templates"
)

// Plugin implements the SMS gateway. One instance serves every tenant, so
// per-tenant subscriptions are tracked per tenant under a lock.
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
		ID:          "sms-twilio",
		Name:        "Twilio SMS Gateway",
		Version:     "1.2.0",
		Description: "Sends transactional SMS to guardians and staff through Twilio",
		Author:      "Campus",
		Permissions: []plugin.Permission{PermissionSend},
		Provides: &plugin.Provides{
			Routes: []plugin.RouteDescriptor{
				{Path: "/sms/outbox", Method: "GET", Handler: "listOutbox", Permissions: []plugin.Permission{PermissionSend}},
			},
			MenuItems: []plugin.MenuItem{
				{Label: "SMS Gateway", Route: "/admin/plugins/sms-twilio", Icon: "message"},
			},
			Settings: []plugin.SettingField{
				{Key: "accountSid", Type: plugin.SettingText, Label: "Account SID", Required: true},
				{Key: "authToken", Type: plugin.SettingPassword, Label: "Auth Token", Required: true},
				{Key: "fromNumber", Type: plugin.SettingText, Label: "Sender Number", Required: true, Validation: `^\+[0-9]{6,15}$`},
				{Key: "senderName", Type: plugin.SettingText, Label: "Sender Name", DefaultValue: "Campus"},
			},
		},
	}
}

func (p *Plugin) OnInstall(ctx context.Context, pc *plugin.Context) error {
	// Seed the default notification template.
	_, err := pc.Database().Insert(ctx, collectionTemplates, map[string]any{
		"name": "default",
		"body": "Hello {{name}}, this is {{school}}.",
	})
	if err != nil {
		return fmt.Errorf("failed to seed template: %w", err)
	}

	_, err = pc.Storage().Upload(ctx, "templates/default.txt",
		[]byte("Hello {{name}}, this is {{school}}."), "text/plain")
	if err != nil {
		return fmt.Errorf("failed to store template file: %w", err)
	}

	log := pc.Logger()
	log.Info().Msg("SMS gateway installed")
	return nil
}

func (p *Plugin) OnEnable(ctx context.Context, pc *plugin.Context) error {
	if err := pc.RequirePermission(PermissionSend); err != nil {
		return err
	}

	tenantID := pc.TenantID()
	db := pc.Database()
	log := pc.Logger()

	sub := pc.EventBus().Subscribe(TopicSMSRequested, tenantID, func(event bus.Event) {
		qctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := db.Insert(qctx, collectionOutbox, map[string]any{
			"to":      event.Payload["to"],
			"message": event.Payload["message"],
			"status":  "queued",
			"eventId": event.ID,
		}); err != nil {
			log.Error().Err(err).Msg("Failed to queue SMS")
		}
	})

	p.mu.Lock()
	p.subs[tenantID] = sub
	p.mu.Unlock()

	log.Info().Msg("SMS gateway enabled")
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
	log.Info().Msg("SMS gateway disabled")
	return nil
}

func (p *Plugin) OnUninstall(ctx context.Context, pc *plugin.Context) error {
	db := pc.Database()
	if err := db.Drop(ctx, collectionOutbox); err != nil {
		return fmt.Errorf("failed to drop outbox: %w", err)
	}
	if err := db.Drop(ctx, collectionTemplates); err != nil {
		return fmt.Errorf("failed to drop templates: %w", err)
	}

	handles, err := pc.Storage().List(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list stored files: %w", err)
	}
	for _, handle := range handles {
		if err := pc.Storage().Delete(ctx, handle.Name); err != nil {
			return fmt.Errorf("failed to delete %s: %w", handle.Name, err)
		}
	}

	log := pc.Logger()
	log.Info().Msg("SMS gateway uninstalled, all tenant data removed")
	return nil
}
