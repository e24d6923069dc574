package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Document is one mirrored remote record. ExternalID is the Shopify id,
// ParentID links child records (transactions) to their parent order.
type Document struct {
	ID              int64           `json:"id"`
	Shop            string          `json:"shop"`
	ExternalID      int64           `json:"external_id"`
	ParentID        int64           `json:"parent_id,omitempty"`
	Title           string          `json:"title,omitempty"`
	Payload         json.RawMessage `json:"payload"`
	RemoteCreatedAt *time.Time      `json:"remote_created_at,omitempty"`
	RemoteUpdatedAt *time.Time      `json:"remote_updated_at,omitempty"`
	SyncedAt        time.Time       `json:"synced_at"`
}

var docTables = map[string]string{
	"orders":            "doc_orders",
	"transactions":      "doc_transactions",
	"products":          "doc_products",
	"pages":             "doc_pages",
	"customCollections": "doc_custom_collections",
	"smartCollections":  "doc_smart_collections",
}

func docTable(resource string) (string, error) {
	t, ok := docTables[resource]
	if !ok {
		return "", fmt.Errorf("no document table for resource: %s", resource)
	}
	return t, nil
}

func fmtTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func (db *DB) UpsertDocument(resource string, doc *Document) error {
	table, err := docTable(resource)
	if err != nil {
		return err
	}
	payload := doc.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	query := db.Q(fmt.Sprintf(`INSERT INTO %s
		(shop, external_id, parent_id, title, payload, remote_created_at, remote_updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(shop, external_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			title = excluded.title,
			payload = excluded.payload,
			remote_created_at = excluded.remote_created_at,
			remote_updated_at = excluded.remote_updated_at,
			synced_at = excluded.synced_at`, table))
	_, err = db.Exec(query, doc.Shop, doc.ExternalID, doc.ParentID, doc.Title,
		string(payload), fmtTimePtr(doc.RemoteCreatedAt), fmtTimePtr(doc.RemoteUpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert %s document: %w", resource, err)
	}
	return nil
}

// BulkUpsertDocuments writes a page of documents in one transaction so a
// partially written page never survives a crash.
func (db *DB) BulkUpsertDocuments(resource string, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	table, err := docTable(resource)
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin bulk upsert: %w", err)
	}
	defer tx.Rollback()

	query := db.Q(fmt.Sprintf(`INSERT INTO %s
		(shop, external_id, parent_id, title, payload, remote_created_at, remote_updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(shop, external_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			title = excluded.title,
			payload = excluded.payload,
			remote_created_at = excluded.remote_created_at,
			remote_updated_at = excluded.remote_updated_at,
			synced_at = excluded.synced_at`, table))
	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("prepare bulk upsert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		payload := doc.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		if _, err := stmt.Exec(doc.Shop, doc.ExternalID, doc.ParentID, doc.Title,
			string(payload), fmtTimePtr(doc.RemoteCreatedAt), fmtTimePtr(doc.RemoteUpdatedAt)); err != nil {
			return fmt.Errorf("bulk upsert %s document %d: %w", resource, doc.ExternalID, err)
		}
	}
	return tx.Commit()
}

func (db *DB) GetDocument(resource, shop string, externalID int64) (*Document, error) {
	table, err := docTable(resource)
	if err != nil {
		return nil, err
	}
	query := db.Q(fmt.Sprintf(`SELECT id, shop, external_id, parent_id, title, payload,
		remote_created_at, remote_updated_at, synced_at
		FROM %s WHERE shop = ? AND external_id = ?`, table))
	row := db.QueryRow(query, shop, externalID)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

func (db *DB) ListDocuments(resource, shop string, limit, offset int) ([]*Document, error) {
	table, err := docTable(resource)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	query := db.Q(fmt.Sprintf(`SELECT id, shop, external_id, parent_id, title, payload,
		remote_created_at, remote_updated_at, synced_at
		FROM %s WHERE shop = ? ORDER BY external_id LIMIT ? OFFSET ?`, table))
	rows, err := db.Query(query, shop, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list %s documents: %w", resource, err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListDocumentsByParent returns child documents of one parent record,
// e.g. the transactions of an order.
func (db *DB) ListDocumentsByParent(resource, shop string, parentID int64) ([]*Document, error) {
	table, err := docTable(resource)
	if err != nil {
		return nil, err
	}
	query := db.Q(fmt.Sprintf(`SELECT id, shop, external_id, parent_id, title, payload,
		remote_created_at, remote_updated_at, synced_at
		FROM %s WHERE shop = ? AND parent_id = ? ORDER BY external_id`, table))
	rows, err := db.Query(query, shop, parentID)
	if err != nil {
		return nil, fmt.Errorf("list %s documents by parent: %w", resource, err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (db *DB) CountDocuments(resource, shop string) (int64, error) {
	table, err := docTable(resource)
	if err != nil {
		return 0, err
	}
	var n int64
	query := db.Q(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE shop = ?", table))
	if err := db.QueryRow(query, shop).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s documents: %w", resource, err)
	}
	return n, nil
}

// DocumentIDs returns all synced external ids for a shop, sorted ascending.
func (db *DB) DocumentIDs(resource, shop string) ([]int64, error) {
	table, err := docTable(resource)
	if err != nil {
		return nil, err
	}
	query := db.Q(fmt.Sprintf("SELECT external_id FROM %s WHERE shop = ? ORDER BY external_id", table))
	rows, err := db.Query(query, shop)
	if err != nil {
		return nil, fmt.Errorf("list %s document ids: %w", resource, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) DeleteDocument(resource, shop string, externalID int64) error {
	table, err := docTable(resource)
	if err != nil {
		return err
	}
	query := db.Q(fmt.Sprintf("DELETE FROM %s WHERE shop = ? AND external_id = ?", table))
	if _, err := db.Exec(query, shop, externalID); err != nil {
		return fmt.Errorf("delete %s document: %w", resource, err)
	}
	return nil
}

// DeleteDocumentsByParent removes all children of a parent record, used
// when an order is deleted to drop its transactions with it.
func (db *DB) DeleteDocumentsByParent(resource, shop string, parentID int64) error {
	table, err := docTable(resource)
	if err != nil {
		return err
	}
	query := db.Q(fmt.Sprintf("DELETE FROM %s WHERE shop = ? AND parent_id = ?", table))
	if _, err := db.Exec(query, shop, parentID); err != nil {
		return fmt.Errorf("delete %s documents by parent: %w", resource, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var payload string
	var createdAt, updatedAt, syncedAt any
	if err := row.Scan(&doc.ID, &doc.Shop, &doc.ExternalID, &doc.ParentID, &doc.Title,
		&payload, &createdAt, &updatedAt, &syncedAt); err != nil {
		return nil, err
	}
	doc.Payload = json.RawMessage(payload)
	doc.RemoteCreatedAt = parseTimePtr(createdAt)
	doc.RemoteUpdatedAt = parseTimePtr(updatedAt)
	doc.SyncedAt = parseTime(syncedAt)
	return &doc, nil
}
