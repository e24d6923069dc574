package syncer

import (
	"context"

	"shopsync/searchindex"
	"shopsync/shopify"
	"shopsync/store"
)

// SearchSink is the slice of the search index the sync path writes to.
// *searchindex.Index satisfies it; tests substitute an in-memory fake.
type SearchSink interface {
	BulkUpsert(ctx context.Context, shop, resource string, entries []*searchindex.Entry) error
	Delete(ctx context.Context, shop, resource string, id int64) error
	Count(ctx context.Context, shop, resource string) (int64, error)
	IDs(ctx context.Context, shop, resource string) ([]int64, error)
	List(ctx context.Context, shop, resource string, limit, offset int) ([]*searchindex.Entry, error)
}

func toDocuments(shop string, records []shopify.Record) []*store.Document {
	docs := make([]*store.Document, 0, len(records))
	for _, rec := range records {
		doc := &store.Document{
			Shop:       shop,
			ExternalID: rec.ID,
			ParentID:   rec.ParentID,
			Title:      rec.Title,
			Payload:    rec.Payload,
		}
		if !rec.CreatedAt.IsZero() {
			t := rec.CreatedAt
			doc.RemoteCreatedAt = &t
		}
		if !rec.UpdatedAt.IsZero() {
			t := rec.UpdatedAt
			doc.RemoteUpdatedAt = &t
		}
		docs = append(docs, doc)
	}
	return docs
}

func toEntries(records []shopify.Record) []*searchindex.Entry {
	entries := make([]*searchindex.Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, &searchindex.Entry{
			ID:        rec.ID,
			ParentID:  rec.ParentID,
			Title:     rec.Title,
			Payload:   rec.Payload,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return entries
}
