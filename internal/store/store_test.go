package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/campus/pkg/plugin"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "campus.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("", zerolog.Nop())
	assert.Error(t, err)
}

func TestInstalledRepoCRUD(t *testing.T) {
	s := openTestStore(t)
	repo := s.InstalledPlugins()
	ctx := context.Background()

	record := plugin.NewInstalledPlugin("rec-1", "tenant-a", "sms-twilio", "1.2.0", []plugin.Permission{"communications:sms:send"})
	record = record.UpdateSettings(map[string]any{"fromNumber": "+15550001111"})

	saved, err := repo.Save(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, record.ID, saved.ID)

	t.Run("find by plugin id", func(t *testing.T) {
		got, err := repo.FindByPluginID(ctx, "sms-twilio", "tenant-a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, plugin.StatusInstalled, got.Status)
		assert.Equal(t, "+15550001111", got.Settings["fromNumber"])
		assert.True(t, got.HasPermission("communications:sms:send"))
	})

	t.Run("absent record is nil", func(t *testing.T) {
		got, err := repo.FindByPluginID(ctx, "sms-twilio", "tenant-b")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("upsert updates in place", func(t *testing.T) {
		enabled := record.Enable()
		_, err := repo.Save(ctx, enabled)
		require.NoError(t, err)

		got, err := repo.FindByID(ctx, record.ID, "tenant-a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, plugin.StatusEnabled, got.Status)
		require.NotNil(t, got.EnabledAt)

		all, err := repo.FindAll(ctx, "tenant-a")
		require.NoError(t, err)
		assert.Len(t, all, 1, "save of an existing id must not create a second row")
	})

	t.Run("find enabled", func(t *testing.T) {
		other := plugin.NewInstalledPlugin("rec-2", "tenant-a", "librarian", "0.9.3", nil)
		_, err := repo.Save(ctx, other)
		require.NoError(t, err)

		enabled, err := repo.FindEnabled(ctx, "tenant-a")
		require.NoError(t, err)
		require.Len(t, enabled, 1)
		assert.Equal(t, "sms-twilio", enabled[0].PluginID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, record.ID, "tenant-a"))
		got, err := repo.FindByID(ctx, record.ID, "tenant-a")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete wrong tenant fails", func(t *testing.T) {
		err := repo.Delete(ctx, "rec-2", "tenant-b")
		assert.Error(t, err)
	})
}

func TestInstalledRepoErrorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	repo := s.InstalledPlugins()
	ctx := context.Background()

	record := plugin.NewInstalledPlugin("rec-1", "tenant-a", "flaky", "1.0.0", nil)
	failed := record.SetError("twilio: 401 unauthorized")
	_, err := repo.Save(ctx, failed)
	require.NoError(t, err)

	got, err := repo.FindByPluginID(ctx, "flaky", "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, plugin.StatusError, got.Status)
	assert.Equal(t, "twilio: 401 unauthorized", got.LastError)
}

func TestTenants(t *testing.T) {
	s := openTestStore(t)
	repo := s.InstalledPlugins()
	ctx := context.Background()

	for _, tc := range []struct{ id, tenant, pluginID string }{
		{"r1", "tenant-b", "librarian"},
		{"r2", "tenant-a", "librarian"},
		{"r3", "tenant-a", "sms-twilio"},
	} {
		_, err := repo.Save(ctx, plugin.NewInstalledPlugin(tc.id, tc.tenant, tc.pluginID, "1.0.0", nil))
		require.NoError(t, err)
	}

	tenants, err := s.Tenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-a", "tenant-b"}, tenants)
}

func TestCatalogRepo(t *testing.T) {
	s := openTestStore(t)
	repo := s.Catalog()
	ctx := context.Background()

	entries := []plugin.CatalogEntry{
		{ID: "c1", PluginID: "sms-twilio", Name: "SMS via Twilio", Version: "1.2.0", Description: "Send SMS to guardians", Category: "communications"},
		{ID: "c2", PluginID: "librarian", Name: "Librarian", Version: "0.9.3", Description: "Library loans and catalog", Category: "library"},
	}
	for _, entry := range entries {
		_, err := repo.Save(ctx, entry)
		require.NoError(t, err)
	}

	t.Run("find all", func(t *testing.T) {
		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("find by category", func(t *testing.T) {
		got, err := repo.FindByCategory(ctx, "library")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "librarian", got[0].PluginID)
	})

	t.Run("search matches name and description", func(t *testing.T) {
		byName, err := repo.Search(ctx, "twilio")
		require.NoError(t, err)
		require.Len(t, byName, 1)
		assert.Equal(t, "sms-twilio", byName[0].PluginID)

		byDesc, err := repo.Search(ctx, "loans")
		require.NoError(t, err)
		require.Len(t, byDesc, 1)
		assert.Equal(t, "librarian", byDesc[0].PluginID)
	})

	t.Run("upsert by plugin id", func(t *testing.T) {
		updated := entries[0]
		updated.Version = "1.3.0"
		_, err := repo.Save(ctx, updated)
		require.NoError(t, err)

		got, err := repo.FindByPluginID(ctx, "sms-twilio")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "1.3.0", got.Version)

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("absent entry is nil", func(t *testing.T) {
		got, err := repo.FindByID(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "c2"))
		got, err := repo.FindByID(ctx, "c2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestDocumentAdapterScoping(t *testing.T) {
	s := openTestStore(t)
	provider := s.Documents()
	ctx := context.Background()

	adapterA := provider.Scoped("tenant-a", "librarian")
	adapterB := provider.Scoped("tenant-b", "librarian")

	doc, err := adapterA.Insert(ctx, "loans", map[string]any{"bookId": "b-1", "status": "out"})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)

	t.Run("same scope can read", func(t *testing.T) {
		got, err := adapterA.Get(ctx, "loans", doc.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "b-1", got.Body["bookId"])
	})

	t.Run("other tenant cannot read", func(t *testing.T) {
		got, err := adapterB.Get(ctx, "loans", doc.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		docs, err := adapterB.Find(ctx, "loans", nil)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("other plugin cannot read", func(t *testing.T) {
		other := provider.Scoped("tenant-a", "gradebook")
		got, err := other.Get(ctx, "loans", doc.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestDocumentAdapterCRUD(t *testing.T) {
	s := openTestStore(t)
	adapter := s.Documents().Scoped("tenant-a", "librarian")
	ctx := context.Background()

	out, err := adapter.Insert(ctx, "loans", map[string]any{"bookId": "b-1", "status": "out"})
	require.NoError(t, err)
	returned, err := adapter.Insert(ctx, "loans", map[string]any{"bookId": "b-2", "status": "returned"})
	require.NoError(t, err)

	t.Run("find with filter", func(t *testing.T) {
		docs, err := adapter.Find(ctx, "loans", map[string]any{"status": "out"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, out.ID, docs[0].ID)
	})

	t.Run("update merges patch", func(t *testing.T) {
		updated, err := adapter.Update(ctx, "loans", out.ID, map[string]any{"status": "returned"})
		require.NoError(t, err)
		assert.Equal(t, "returned", updated.Body["status"])
		assert.Equal(t, "b-1", updated.Body["bookId"])

		docs, err := adapter.Find(ctx, "loans", map[string]any{"status": "returned"})
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("update missing document fails", func(t *testing.T) {
		_, err := adapter.Update(ctx, "loans", "nope", map[string]any{"status": "lost"})
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, adapter.Delete(ctx, "loans", returned.ID))
		got, err := adapter.Get(ctx, "loans", returned.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("drop empties the collection", func(t *testing.T) {
		require.NoError(t, adapter.Drop(ctx, "loans"))
		docs, err := adapter.Find(ctx, "loans", nil)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}
