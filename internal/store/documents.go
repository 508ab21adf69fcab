package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/campuskit/campus/pkg/plugin"
	"github.com/google/uuid"
)

// Documents returns the provider handing out tenant-and-plugin-scoped
// database adapters. Collection names are physically prefixed
// {tenantID}_{pluginID}_ and every statement filters on both identifiers,
// so isolation holds by construction even if the prefix scheme changes.
func (s *Store) Documents() plugin.DatabaseProvider {
	return &documentProvider{store: s}
}

type documentProvider struct {
	store *Store
}

func (p *documentProvider) Scoped(tenantID, pluginID string) plugin.DatabaseAdapter {
	return &documentAdapter{
		store:    p.store,
		tenantID: tenantID,
		pluginID: pluginID,
	}
}

type documentAdapter struct {
	store    *Store
	tenantID string
	pluginID string
}

func (a *documentAdapter) collectionName(collection string) string {
	return a.tenantID + "_" + a.pluginID + "_" + collection
}

func (a *documentAdapter) Insert(ctx context.Context, collection string, body map[string]any) (plugin.Document, error) {
	if body == nil {
		body = map[string]any{}
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return plugin.Document{}, fmt.Errorf("failed to encode document: %w", err)
	}

	now := time.Now()
	doc := plugin.Document{
		ID:        uuid.NewString(),
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = a.store.db.ExecContext(ctx, `
		INSERT INTO plugin_documents (id, tenant_id, plugin_id, collection, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, a.tenantID, a.pluginID, a.collectionName(collection), string(encoded), now, now)
	if err != nil {
		return plugin.Document{}, fmt.Errorf("failed to insert document: %w", err)
	}
	return doc, nil
}

func (a *documentAdapter) Get(ctx context.Context, collection, id string) (*plugin.Document, error) {
	row := a.store.db.QueryRowContext(ctx, `
		SELECT id, body, created_at, updated_at FROM plugin_documents
		WHERE id = ? AND tenant_id = ? AND plugin_id = ? AND collection = ?`,
		id, a.tenantID, a.pluginID, a.collectionName(collection))

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (a *documentAdapter) Find(ctx context.Context, collection string, filter map[string]any) ([]plugin.Document, error) {
	rows, err := a.store.db.QueryContext(ctx, `
		SELECT id, body, created_at, updated_at FROM plugin_documents
		WHERE tenant_id = ? AND plugin_id = ? AND collection = ?
		ORDER BY created_at`,
		a.tenantID, a.pluginID, a.collectionName(collection))
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []plugin.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		if matchesFilter(doc.Body, filter) {
			docs = append(docs, *doc)
		}
	}
	return docs, rows.Err()
}

func (a *documentAdapter) Update(ctx context.Context, collection, id string, patch map[string]any) (plugin.Document, error) {
	existing, err := a.Get(ctx, collection, id)
	if err != nil {
		return plugin.Document{}, err
	}
	if existing == nil {
		return plugin.Document{}, fmt.Errorf("document %s not found in %s", id, collection)
	}

	for k, v := range patch {
		existing.Body[k] = v
	}
	encoded, err := json.Marshal(existing.Body)
	if err != nil {
		return plugin.Document{}, fmt.Errorf("failed to encode document: %w", err)
	}

	now := time.Now()
	_, err = a.store.db.ExecContext(ctx, `
		UPDATE plugin_documents SET body = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND plugin_id = ? AND collection = ?`,
		string(encoded), now, id, a.tenantID, a.pluginID, a.collectionName(collection))
	if err != nil {
		return plugin.Document{}, fmt.Errorf("failed to update document: %w", err)
	}

	existing.UpdatedAt = now
	return *existing, nil
}

func (a *documentAdapter) Delete(ctx context.Context, collection, id string) error {
	_, err := a.store.db.ExecContext(ctx, `
		DELETE FROM plugin_documents
		WHERE id = ? AND tenant_id = ? AND plugin_id = ? AND collection = ?`,
		id, a.tenantID, a.pluginID, a.collectionName(collection))
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (a *documentAdapter) Drop(ctx context.Context, collection string) error {
	_, err := a.store.db.ExecContext(ctx, `
		DELETE FROM plugin_documents
		WHERE tenant_id = ? AND plugin_id = ? AND collection = ?`,
		a.tenantID, a.pluginID, a.collectionName(collection))
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*plugin.Document, error) {
	var (
		doc  plugin.Document
		body string
	)
	if err := row.Scan(&doc.ID, &body, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	if err := json.Unmarshal([]byte(body), &doc.Body); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if doc.Body == nil {
		doc.Body = map[string]any{}
	}
	return &doc, nil
}

// matchesFilter does exact-equality matching of filter keys against the
// document body. An empty filter matches everything.
func matchesFilter(body, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := body[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
