package plugin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campuskit/campus/pkg/storage"
)

// memStorage is an in-memory storage.Storage for tests.
type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (s *memStorage) Upload(ctx context.Context, name string, data []byte, contentType string) (storage.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = append([]byte(nil), data...)
	return storage.Handle{Name: name, Size: int64(len(data)), ContentType: contentType, ModifiedAt: time.Now()}, nil
}

func (s *memStorage) Download(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("object %s not found", name)
	}
	return append([]byte(nil), data...), nil
}

func (s *memStorage) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, name)
	return nil
}

func (s *memStorage) List(ctx context.Context, prefix string) ([]storage.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Handle
	for name, data := range s.files {
		if strings.HasPrefix(name, prefix) {
			out = append(out, storage.Handle{Name: name, Size: int64(len(data))})
		}
	}
	return out, nil
}

// memInstalledRepo is an in-memory InstalledPluginRepository for tests.
type memInstalledRepo struct {
	mu      sync.Mutex
	records map[string]InstalledPlugin // id -> record
	saveErr error
}

func newMemInstalledRepo() *memInstalledRepo {
	return &memInstalledRepo{records: make(map[string]InstalledPlugin)}
}

func (r *memInstalledRepo) FindAll(ctx context.Context, tenantID string) ([]InstalledPlugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []InstalledPlugin
	for _, rec := range r.records {
		if rec.TenantID == tenantID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memInstalledRepo) FindByID(ctx context.Context, id, tenantID string) (*InstalledPlugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.TenantID != tenantID {
		return nil, nil
	}
	return &rec, nil
}

func (r *memInstalledRepo) FindByPluginID(ctx context.Context, pluginID, tenantID string) (*InstalledPlugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.PluginID == pluginID && rec.TenantID == tenantID {
			return &rec, nil
		}
	}
	return nil, nil
}

func (r *memInstalledRepo) FindEnabled(ctx context.Context, tenantID string) ([]InstalledPlugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []InstalledPlugin
	for _, rec := range r.records {
		if rec.TenantID == tenantID && rec.Status == StatusEnabled {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memInstalledRepo) Save(ctx context.Context, record InstalledPlugin) (InstalledPlugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return InstalledPlugin{}, r.saveErr
	}
	r.records[record.ID] = record
	return record, nil
}

func (r *memInstalledRepo) Delete(ctx context.Context, id, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.TenantID != tenantID {
		return fmt.Errorf("installation %s not found", id)
	}
	delete(r.records, id)
	return nil
}

// memCatalogRepo is an in-memory CatalogRepository.
type memCatalogRepo struct {
	mu      sync.Mutex
	entries map[string]CatalogEntry
}

func newMemCatalogRepo() *memCatalogRepo {
	return &memCatalogRepo{entries: make(map[string]CatalogEntry)}
}

func (r *memCatalogRepo) FindAll(ctx context.Context) ([]CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CatalogEntry
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out, nil
}

func (r *memCatalogRepo) FindByID(ctx context.Context, id string) (*CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (r *memCatalogRepo) FindByPluginID(ctx context.Context, pluginID string) (*CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.PluginID == pluginID {
			return &e, nil
		}
	}
	return nil, nil
}

func (r *memCatalogRepo) FindByCategory(ctx context.Context, category string) ([]CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CatalogEntry
	for _, e := range r.entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memCatalogRepo) Search(ctx context.Context, query string) ([]CatalogEntry, error) {
	return r.FindAll(ctx)
}

func (r *memCatalogRepo) Save(ctx context.Context, entry CatalogEntry) (CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = entry
	return entry, nil
}

func (r *memCatalogRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return nil
}

// memDatabase is an in-memory DatabaseProvider whose adapters honor the
// same (tenant, plugin) confinement as the SQLite implementation.
type memDatabase struct {
	mu   sync.Mutex
	docs map[string][]Document // "{tenant}_{plugin}_{collection}" -> docs
}

func newMemDatabase() *memDatabase {
	return &memDatabase{docs: make(map[string][]Document)}
}

func (d *memDatabase) Scoped(tenantID, pluginID string) DatabaseAdapter {
	return &memAdapter{db: d, tenantID: tenantID, pluginID: pluginID}
}

type memAdapter struct {
	db       *memDatabase
	tenantID string
	pluginID string
}

func (a *memAdapter) key(collection string) string {
	return a.tenantID + "_" + a.pluginID + "_" + collection
}

func (a *memAdapter) Insert(ctx context.Context, collection string, body map[string]any) (Document, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	now := time.Now()
	doc := Document{ID: uuid.NewString(), Body: body, CreatedAt: now, UpdatedAt: now}
	a.db.docs[a.key(collection)] = append(a.db.docs[a.key(collection)], doc)
	return doc, nil
}

func (a *memAdapter) Get(ctx context.Context, collection, id string) (*Document, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	for _, doc := range a.db.docs[a.key(collection)] {
		if doc.ID == id {
			return &doc, nil
		}
	}
	return nil, nil
}

func (a *memAdapter) Find(ctx context.Context, collection string, filter map[string]any) ([]Document, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	var out []Document
	for _, doc := range a.db.docs[a.key(collection)] {
		match := true
		for k, want := range filter {
			if doc.Body[k] != want {
				match = false
				break
			}
		}
		if match {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (a *memAdapter) Update(ctx context.Context, collection, id string, patch map[string]any) (Document, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	docs := a.db.docs[a.key(collection)]
	for i, doc := range docs {
		if doc.ID == id {
			for k, v := range patch {
				doc.Body[k] = v
			}
			doc.UpdatedAt = time.Now()
			docs[i] = doc
			return doc, nil
		}
	}
	return Document{}, fmt.Errorf("document %s not found", id)
}

func (a *memAdapter) Delete(ctx context.Context, collection, id string) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	docs := a.db.docs[a.key(collection)]
	for i, doc := range docs {
		if doc.ID == id {
			a.db.docs[a.key(collection)] = append(docs[:i], docs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (a *memAdapter) Drop(ctx context.Context, collection string) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	delete(a.db.docs, a.key(collection))
	return nil
}

// testPlugin is a configurable Plugin fixture. Hooks can be overridden and
// every invocation is counted.
type testPlugin struct {
	manifest Manifest

	mu          sync.Mutex
	installs    int
	enables     int
	disables    int
	uninstalls  int
	onInstall   func(ctx context.Context, pc *Context) error
	onEnable    func(ctx context.Context, pc *Context) error
	onDisable   func(ctx context.Context, pc *Context) error
	onUninstall func(ctx context.Context, pc *Context) error
}

func newTestPlugin(id string) *testPlugin {
	return &testPlugin{
		manifest: Manifest{
			ID:          id,
			Name:        "Test " + id,
			Version:     "1.0.0",
			Description: "test plugin",
			Author:      "tests",
			Permissions: []Permission{},
			Provides: &Provides{
				Settings: []SettingField{
					{Key: "endpoint", Type: SettingText},
					{Key: "retries", Type: SettingNumber, DefaultValue: 3},
					{Key: "enabledFeature", Type: SettingBoolean},
					{Key: "mode", Type: SettingSelect, Options: []string{"fast", "safe"}},
				},
			},
		},
	}
}

func (p *testPlugin) Manifest() Manifest { return p.manifest }

func (p *testPlugin) OnInstall(ctx context.Context, pc *Context) error {
	p.mu.Lock()
	p.installs++
	fn := p.onInstall
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, pc)
	}
	return nil
}

func (p *testPlugin) OnEnable(ctx context.Context, pc *Context) error {
	p.mu.Lock()
	p.enables++
	fn := p.onEnable
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, pc)
	}
	return nil
}

func (p *testPlugin) OnDisable(ctx context.Context, pc *Context) error {
	p.mu.Lock()
	p.disables++
	fn := p.onDisable
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, pc)
	}
	return nil
}

func (p *testPlugin) OnUninstall(ctx context.Context, pc *Context) error {
	p.mu.Lock()
	p.uninstalls++
	fn := p.onUninstall
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, pc)
	}
	return nil
}

func (p *testPlugin) counts() (installs, enables, disables, uninstalls int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.installs, p.enables, p.disables, p.uninstalls
}
