package plugin

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/campus/pkg/bus"
)

func newTestFactory(installed InstalledPluginRepository) *ContextFactory {
	return NewContextFactory(bus.New(zerolog.Nop()), newMemStorage(), newMemDatabase(), installed, zerolog.Nop())
}

func TestContextPermissions(t *testing.T) {
	factory := newTestFactory(newMemInstalledRepo())
	pc := factory.Create("tenant-a", "sms-twilio", []Permission{"communications:sms:send"}, nil)

	assert.True(t, pc.HasPermission("communications:sms:send"))
	assert.False(t, pc.HasPermission("finance:invoices:read"))

	assert.NoError(t, pc.RequirePermission("communications:sms:send"))
	err := pc.RequirePermission("finance:invoices:read")
	assert.ErrorContains(t, err, "permission denied")
}

func TestContextConfigCopy(t *testing.T) {
	factory := newTestFactory(newMemInstalledRepo())
	pc := factory.Create("tenant-a", "librarian", nil, map[string]any{"loanDays": 14})

	cfg := pc.Config(context.Background())
	cfg["loanDays"] = 99

	assert.Equal(t, 14, pc.Config(context.Background())["loanDays"], "Config must return a copy")
}

func TestContextSetConfigPersists(t *testing.T) {
	repo := newMemInstalledRepo()
	ctx := context.Background()

	record := NewInstalledPlugin("rec-1", "tenant-a", "librarian", "1.0.0", nil)
	_, err := repo.Save(ctx, record)
	require.NoError(t, err)

	factory := newTestFactory(repo)
	pc := factory.Create("tenant-a", "librarian", nil, record.Settings)

	require.NoError(t, pc.SetConfig(ctx, map[string]any{"loanDays": 21}))

	stored, err := repo.FindByPluginID(ctx, "librarian", "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 21, stored.Settings["loanDays"])
	assert.Equal(t, 21, pc.Config(ctx)["loanDays"])
}

func TestContextStorageIsScoped(t *testing.T) {
	base := newMemStorage()
	factory := NewContextFactory(bus.New(zerolog.Nop()), base, newMemDatabase(), newMemInstalledRepo(), zerolog.Nop())

	pcA := factory.Create("tenant-a", "librarian", nil, nil)
	pcB := factory.Create("tenant-b", "librarian", nil, nil)

	ctx := context.Background()
	_, err := pcA.Storage().Upload(ctx, "report.csv", []byte("a-data"), "text/csv")
	require.NoError(t, err)

	// The raw object lives under the tenant-and-plugin prefix.
	_, ok := base.files["plugins/librarian/tenant-a/report.csv"]
	assert.True(t, ok)

	// Tenant B cannot see tenant A's file through its own handle.
	_, err = pcB.Storage().Download(ctx, "report.csv")
	assert.Error(t, err)

	data, err := pcA.Storage().Download(ctx, "report.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("a-data"), data)
}
