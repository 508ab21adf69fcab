package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstalledPlugin(t *testing.T) {
	record := NewInstalledPlugin("rec-1", "tenant-a", "sms-twilio", "1.2.0", []Permission{"communications:sms:send"})

	assert.Equal(t, StatusInstalled, record.Status)
	assert.Equal(t, "tenant-a", record.TenantID)
	assert.Equal(t, "sms-twilio", record.PluginID)
	assert.NotNil(t, record.Settings)
	assert.Empty(t, record.Settings)
	assert.Nil(t, record.EnabledAt)
	assert.Nil(t, record.DisabledAt)
	assert.True(t, record.HasPermission("communications:sms:send"))
	assert.False(t, record.HasPermission("finance:invoices:read"))
}

func TestInstalledPluginTransitions(t *testing.T) {
	record := NewInstalledPlugin("rec-1", "tenant-a", "librarian", "0.9.3", nil)

	enabled := record.Enable()
	assert.Equal(t, StatusEnabled, enabled.Status)
	require.NotNil(t, enabled.EnabledAt)
	assert.Empty(t, enabled.LastError)
	// The receiver is untouched.
	assert.Equal(t, StatusInstalled, record.Status)
	assert.Nil(t, record.EnabledAt)

	disabled := enabled.Disable()
	assert.Equal(t, StatusDisabled, disabled.Status)
	require.NotNil(t, disabled.DisabledAt)
	assert.Equal(t, StatusEnabled, enabled.Status)

	failed := disabled.SetError("hook exploded")
	assert.Equal(t, StatusError, failed.Status)
	assert.Equal(t, "hook exploded", failed.LastError)

	// Enabling out of error clears the message.
	recovered := failed.Enable()
	assert.Equal(t, StatusEnabled, recovered.Status)
	assert.Empty(t, recovered.LastError)
}

func TestInstalledPluginUpdateSettings(t *testing.T) {
	record := NewInstalledPlugin("rec-1", "tenant-a", "librarian", "0.9.3", nil)
	record = record.UpdateSettings(map[string]any{"loanDays": 14, "overdueNotices": true})

	t.Run("patch keys win", func(t *testing.T) {
		updated := record.UpdateSettings(map[string]any{"loanDays": 21})
		assert.Equal(t, 21, updated.Settings["loanDays"])
		assert.Equal(t, true, updated.Settings["overdueNotices"])
		// Original is unchanged.
		assert.Equal(t, 14, record.Settings["loanDays"])
	})

	t.Run("idempotent", func(t *testing.T) {
		patch := map[string]any{"loanDays": 30}
		once := record.UpdateSettings(patch)
		twice := once.UpdateSettings(patch)
		assert.Equal(t, once.Settings, twice.Settings)
	})

	t.Run("no aliasing through clone", func(t *testing.T) {
		updated := record.UpdateSettings(map[string]any{"extra": "x"})
		updated.Settings["loanDays"] = 99
		assert.Equal(t, 14, record.Settings["loanDays"])
	})
}

func TestInstalledPluginUpdateVersion(t *testing.T) {
	record := NewInstalledPlugin("rec-1", "tenant-a", "librarian", "0.9.3", nil)
	failed := record.SetError("boom")

	upgraded := failed.UpdateVersion("1.0.0")
	assert.Equal(t, "1.0.0", upgraded.Version)
	assert.Empty(t, upgraded.LastError)
	assert.Equal(t, "0.9.3", failed.Version)
}
