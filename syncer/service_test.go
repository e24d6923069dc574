package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"testing"

	"shopsync/searchindex"
	"shopsync/shopify"
	"shopsync/store"
)

func TestDiffSynced(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/api/2024-01/products.json" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("fields"); got != "id" {
			t.Errorf("fields = %q, want id", got)
		}
		writeJSON(w, map[string]any{"products": []any{
			map[string]any{"id": 1},
			map[string]any{"id": 2},
			map[string]any{"id": 3},
		}})
	})

	db := testStore(t)
	search := newFakeSearch()
	svc := NewService(db, search, testFactory(t, handler, 250), nil)

	// DB holds 1, 2 and a stale 99; search only holds 1.
	for _, id := range []int64{1, 2, 99} {
		db.UpsertDocument("products", &store.Document{Shop: "acme", ExternalID: id, Payload: json.RawMessage(`{}`)})
	}
	search.BulkUpsert(context.Background(), "acme", "products", []*searchindex.Entry{{ID: 1}})

	diff, err := svc.DiffSynced(context.Background(), "acme", shopify.ResourceProducts)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if diff.RemoteCount != 3 || diff.DBCount != 3 || diff.SearchCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/3/1", diff.RemoteCount, diff.DBCount, diff.SearchCount)
	}
	if len(diff.MissingInDB) != 1 || diff.MissingInDB[0] != 3 {
		t.Errorf("MissingInDB = %v, want [3]", diff.MissingInDB)
	}
	if len(diff.Orphaned) != 1 || diff.Orphaned[0] != 99 {
		t.Errorf("Orphaned = %v, want [99]", diff.Orphaned)
	}
	sort.Slice(diff.MissingInSearch, func(i, j int) bool { return diff.MissingInSearch[i] < diff.MissingInSearch[j] })
	if len(diff.MissingInSearch) != 2 || diff.MissingInSearch[0] != 2 || diff.MissingInSearch[1] != 3 {
		t.Errorf("MissingInSearch = %v, want [2 3]", diff.MissingInSearch)
	}

	if _, err := svc.DiffSynced(context.Background(), "acme", shopify.ResourceTransactions); err == nil {
		t.Error("expected error diffing a child resource")
	}
}

func TestDiffSyncedEmpty(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"products": []any{
			map[string]any{"id": 1},
		}})
	})
	db := testStore(t)
	search := newFakeSearch()
	svc := NewService(db, search, testFactory(t, handler, 250), nil)

	db.UpsertDocument("products", &store.Document{Shop: "acme", ExternalID: 1, Payload: json.RawMessage(`{}`)})
	search.BulkUpsert(context.Background(), "acme", "products", []*searchindex.Entry{{ID: 1}})

	diff, err := svc.DiffSynced(context.Background(), "acme", shopify.ResourceProducts)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(diff.MissingInDB) != 0 || len(diff.Orphaned) != 0 || len(diff.MissingInSearch) != 0 {
		t.Errorf("in-sync mirror should diff empty: %+v", diff)
	}
}

func TestDeleteSyncedCascades(t *testing.T) {
	db := testStore(t)
	search := newFakeSearch()
	rec := &eventRecorder{}
	bus := NewEventBus()
	bus.Subscribe(rec.record)
	svc := NewService(db, search, testFactory(t, http.NotFoundHandler(), 250), bus)

	ctx := context.Background()
	db.UpsertDocument("orders", &store.Document{Shop: "acme", ExternalID: 1, Payload: json.RawMessage(`{}`)})
	db.UpsertDocument("transactions", &store.Document{Shop: "acme", ExternalID: 101, ParentID: 1, Payload: json.RawMessage(`{}`)})
	db.UpsertDocument("transactions", &store.Document{Shop: "acme", ExternalID: 102, ParentID: 1, Payload: json.RawMessage(`{}`)})
	search.BulkUpsert(ctx, "acme", "orders", []*searchindex.Entry{{ID: 1}})
	search.BulkUpsert(ctx, "acme", "transactions", []*searchindex.Entry{{ID: 101}, {ID: 102}})

	if err := svc.DeleteSynced(ctx, "acme", shopify.ResourceOrders, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	n, _ := db.CountDocuments("orders", "acme")
	if n != 0 {
		t.Errorf("orders left = %d", n)
	}
	n, _ = db.CountDocuments("transactions", "acme")
	if n != 0 {
		t.Errorf("transactions left = %d", n)
	}
	sc, _ := search.Count(ctx, "acme", "orders")
	tc, _ := search.Count(ctx, "acme", "transactions")
	if sc != 0 || tc != 0 {
		t.Errorf("search left = %d orders, %d transactions", sc, tc)
	}
	if !rec.has(EventRecordDeleted) {
		t.Errorf("events = %v, want record_deleted", rec.types())
	}
}

func TestServiceCounts(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin/api/2024-01/orders/count.json" {
			if got := r.URL.Query().Get("status"); got != "any" {
				t.Errorf("status = %q, want any", got)
			}
			writeJSON(w, map[string]any{"count": 7})
			return
		}
		http.NotFound(w, r)
	})
	db := testStore(t)
	search := newFakeSearch()
	svc := NewService(db, search, testFactory(t, handler, 250), nil)

	ctx := context.Background()
	db.UpsertDocument("orders", &store.Document{Shop: "acme", ExternalID: 1, Payload: json.RawMessage(`{}`)})
	search.BulkUpsert(ctx, "acme", "orders", []*searchindex.Entry{{ID: 1}, {ID: 2}})

	n, err := svc.CountFromDB("acme", shopify.ResourceOrders)
	if err != nil || n != 1 {
		t.Errorf("db count = %d (%v), want 1", n, err)
	}
	sn, err := svc.CountFromSearch(ctx, "acme", shopify.ResourceOrders)
	if err != nil || sn != 2 {
		t.Errorf("search count = %d (%v), want 2", sn, err)
	}
	rn, err := svc.CountFromShopify(ctx, "acme", shopify.ResourceOrders)
	if err != nil || rn != 7 {
		t.Errorf("remote count = %d (%v), want 7", rn, err)
	}
}
