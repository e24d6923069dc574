package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"shopsync/config"
	"shopsync/searchindex"
	"shopsync/shopify"
	"shopsync/store"
)

func testStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testFactory(t *testing.T, handler http.Handler, pageLimit int) *shopify.Factory {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.ShopifyConfig{
		APIVersion:   "2024-01",
		Timeout:      time.Second,
		MaxRetries:   1,
		RatePerSec:   1000,
		RateBurst:    1000,
		PageLimit:    pageLimit,
		RetryBackoff: time.Millisecond,
	}
	return shopify.NewFactory(cfg, func(shop string) (shopify.Connect, error) {
		return shopify.Connect{Shop: shop, Domain: srv.URL, AccessToken: "token-1"}, nil
	})
}

// fakeSearch is an in-memory SearchSink. failAfter >= 0 makes BulkUpsert
// fail after that many successful calls.
type fakeSearch struct {
	mu        gosync.Mutex
	entries   map[string]map[int64]*searchindex.Entry
	upserts   int
	failAfter int
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{entries: make(map[string]map[int64]*searchindex.Entry), failAfter: -1}
}

func (f *fakeSearch) key(shop, resource string) string { return shop + ":" + resource }

func (f *fakeSearch) BulkUpsert(_ context.Context, shop, resource string, entries []*searchindex.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.failAfter >= 0 && f.upserts > f.failAfter {
		return fmt.Errorf("index unavailable")
	}
	k := f.key(shop, resource)
	if f.entries[k] == nil {
		f.entries[k] = make(map[int64]*searchindex.Entry)
	}
	for _, e := range entries {
		f.entries[k][e.ID] = e
	}
	return nil
}

func (f *fakeSearch) Delete(_ context.Context, shop, resource string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries[f.key(shop, resource)], id)
	return nil
}

func (f *fakeSearch) Count(_ context.Context, shop, resource string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.entries[f.key(shop, resource)])), nil
}

func (f *fakeSearch) IDs(_ context.Context, shop, resource string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.entries[f.key(shop, resource)] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeSearch) List(_ context.Context, shop, resource string, limit, offset int) ([]*searchindex.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*searchindex.Entry
	for _, e := range f.entries[f.key(shop, resource)] {
		out = append(out, e)
	}
	return out, nil
}

type eventRecorder struct {
	mu     gosync.Mutex
	events []Event
}

func (er *eventRecorder) record(evt Event) {
	er.mu.Lock()
	er.events = append(er.events, evt)
	er.mu.Unlock()
}

func (er *eventRecorder) types() []EventType {
	er.mu.Lock()
	defer er.mu.Unlock()
	out := make([]EventType, len(er.events))
	for i, e := range er.events {
		out[i] = e.Type
	}
	return out
}

func (er *eventRecorder) has(t EventType) bool {
	for _, et := range er.types() {
		if et == t {
			return true
		}
	}
	return false
}

func waitRun(t *testing.T, db *store.DB, runID string) *store.SyncProgress {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := db.GetSyncRun(runID)
		if err != nil {
			t.Fatalf("get run: %v", err)
		}
		if p != nil && p.State.Terminal() {
			return p
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", runID)
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func orderItem(id int64) map[string]any {
	return map[string]any{
		"id":         id,
		"name":       fmt.Sprintf("#%d", 1000+id),
		"created_at": "2024-02-01T10:00:00-05:00",
		"updated_at": "2024-02-02T10:00:00-05:00",
	}
}

func TestSyncOrdersWithTransactions(t *testing.T) {
	// Two cursor pages of two orders each, one transaction per order.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/admin/api/2024-01/orders.json":
			if r.URL.Query().Get("page_info") == "" {
				w.Header().Set("Link", fmt.Sprintf(`<http://%s/admin/api/2024-01/orders.json?page_info=c2>; rel="next"`, r.Host))
				writeJSON(w, map[string]any{"orders": []any{orderItem(1), orderItem(2)}})
			} else {
				writeJSON(w, map[string]any{"orders": []any{orderItem(3), orderItem(4)}})
			}
		case r.URL.Path == "/admin/api/2024-01/orders/1/transactions.json",
			r.URL.Path == "/admin/api/2024-01/orders/2/transactions.json",
			r.URL.Path == "/admin/api/2024-01/orders/3/transactions.json",
			r.URL.Path == "/admin/api/2024-01/orders/4/transactions.json":
			var orderID int64
			fmt.Sscanf(r.URL.Path, "/admin/api/2024-01/orders/%d/transactions.json", &orderID)
			writeJSON(w, map[string]any{"transactions": []any{
				map[string]any{"id": 100 + orderID, "order_id": orderID},
			}})
		default:
			http.NotFound(w, r)
		}
	})

	db := testStore(t)
	search := newFakeSearch()
	rec := &eventRecorder{}
	o := NewOrchestrator(db, search, testFactory(t, handler, 2), nil)
	o.Events().Subscribe(rec.record)

	opts := DefaultStartSyncOptions()
	opts.IncludeTransactions = true
	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceOrders, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	final := waitRun(t, db, p.RunID)
	if final.State != store.SyncCompleted {
		t.Fatalf("state = %q (%s: %s)", final.State, final.ErrorKind, final.ErrorMessage)
	}
	if final.SyncedCount != 4 {
		t.Errorf("SyncedCount = %d, want 4", final.SyncedCount)
	}
	if final.LastID != 4 {
		t.Errorf("LastID = %d, want 4", final.LastID)
	}
	if len(final.Sub) != 1 {
		t.Fatalf("sub progress entries = %d, want 1", len(final.Sub))
	}
	sub := final.Sub[0]
	if sub.SubResource != "transactions" || sub.SyncedCount != 4 || sub.State != store.SyncCompleted {
		t.Errorf("sub = %+v", sub)
	}

	n, _ := db.CountDocuments("orders", "acme")
	if n != 4 {
		t.Errorf("db orders = %d, want 4", n)
	}
	n, _ = db.CountDocuments("transactions", "acme")
	if n != 4 {
		t.Errorf("db transactions = %d, want 4", n)
	}
	sc, _ := search.Count(context.Background(), "acme", "orders")
	if sc != 4 {
		t.Errorf("search orders = %d, want 4", sc)
	}

	// Orders carry name, the mirror stores it as the title.
	doc, _ := db.GetDocument("orders", "acme", 1)
	if doc == nil || doc.Title != "#1001" {
		t.Errorf("doc = %+v", doc)
	}
	tdoc, _ := db.GetDocument("transactions", "acme", 101)
	if tdoc == nil || tdoc.ParentID != 1 {
		t.Errorf("transaction doc = %+v", tdoc)
	}

	if !rec.has(EventSyncStarted) || !rec.has(EventSyncPage) || !rec.has(EventSyncCompleted) {
		t.Errorf("events = %v", rec.types())
	}
}

func TestSyncIncrementalWatermark(t *testing.T) {
	var phase2 bool
	var sawSinceID string
	var mu gosync.Mutex
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		second := phase2
		if second {
			sawSinceID = r.URL.Query().Get("since_id")
		}
		mu.Unlock()
		if second {
			writeJSON(w, map[string]any{"products": []any{
				map[string]any{"id": 4, "title": "Widget 4"},
				map[string]any{"id": 5, "title": "Widget 5"},
			}})
			return
		}
		writeJSON(w, map[string]any{"products": []any{
			map[string]any{"id": 1, "title": "Widget 1"},
			map[string]any{"id": 2, "title": "Widget 2"},
			map[string]any{"id": 3, "title": "Widget 3"},
		}})
	})

	db := testStore(t)
	o := NewOrchestrator(db, newFakeSearch(), testFactory(t, handler, 250), nil)

	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceProducts, DefaultStartSyncOptions())
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	first := waitRun(t, db, p.RunID)
	if first.State != store.SyncCompleted || first.LastID != 3 {
		t.Fatalf("first run = %+v", first)
	}

	mu.Lock()
	phase2 = true
	mu.Unlock()

	p, err = o.StartSync(context.Background(), "acme", shopify.ResourceProducts, DefaultStartSyncOptions())
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	second := waitRun(t, db, p.RunID)
	if second.State != store.SyncCompleted {
		t.Fatalf("second run = %+v", second)
	}
	if second.SyncedCount != 2 || second.LastID != 5 {
		t.Errorf("second run synced=%d last=%d, want 2/5", second.SyncedCount, second.LastID)
	}
	mu.Lock()
	got := sawSinceID
	mu.Unlock()
	if got != "3" {
		t.Errorf("since_id = %q, want 3", got)
	}
	n, _ := db.CountDocuments("products", "acme")
	if n != 5 {
		t.Errorf("db products = %d, want 5", n)
	}
}

func TestSyncResyncIgnoresWatermark(t *testing.T) {
	var sawSinceID []string
	var mu gosync.Mutex
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sawSinceID = append(sawSinceID, r.URL.Query().Get("since_id"))
		mu.Unlock()
		writeJSON(w, map[string]any{"pages": []any{
			map[string]any{"id": 1, "title": "About"},
			map[string]any{"id": 2, "title": "FAQ"},
		}})
	})

	db := testStore(t)
	o := NewOrchestrator(db, newFakeSearch(), testFactory(t, handler, 250), nil)

	p, _ := o.StartSync(context.Background(), "acme", shopify.ResourcePages, DefaultStartSyncOptions())
	waitRun(t, db, p.RunID)

	opts := DefaultStartSyncOptions()
	opts.Resync = true
	p, err := o.StartSync(context.Background(), "acme", shopify.ResourcePages, opts)
	if err != nil {
		t.Fatalf("resync start: %v", err)
	}
	final := waitRun(t, db, p.RunID)
	if final.SyncedCount != 2 {
		t.Errorf("resync SyncedCount = %d, want 2", final.SyncedCount)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(sawSinceID) != 2 || sawSinceID[1] != "" {
		t.Errorf("since_id per call = %v, resync must not filter", sawSinceID)
	}
	// Re-walking the same records does not duplicate them.
	n, _ := db.CountDocuments("pages", "acme")
	if n != 2 {
		t.Errorf("db pages = %d, want 2", n)
	}
}

func TestSyncCancellation(t *testing.T) {
	// Endless listing: every page links to another one.
	var page int
	var mu gosync.Mutex
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		page++
		id := int64(page)
		mu.Unlock()
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/admin/api/2024-01/products.json?page_info=c%d>; rel="next"`, r.Host, id))
		writeJSON(w, map[string]any{"products": []any{
			map[string]any{"id": id, "title": fmt.Sprintf("Widget %d", id)},
		}})
	})

	db := testStore(t)
	rec := &eventRecorder{}
	o := NewOrchestrator(db, newFakeSearch(), testFactory(t, handler, 1), nil)

	firstPage := make(chan struct{})
	var once gosync.Once
	o.Events().Subscribe(func(Event) {
		once.Do(func() { close(firstPage) })
	}, EventSyncPage)
	o.Events().Subscribe(rec.record)

	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceProducts, DefaultStartSyncOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-firstPage

	if _, err := o.CancelSync("acme", shopify.ResourceProducts); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	final := waitRun(t, db, p.RunID)
	if final.State != store.SyncCancelled {
		t.Fatalf("state = %q, want cancelled", final.State)
	}
	if final.SyncedCount < 1 {
		t.Errorf("SyncedCount = %d, want at least 1", final.SyncedCount)
	}
	if !rec.has(EventSyncCancelled) {
		t.Errorf("events = %v, want cancelled", rec.types())
	}

	// The progress already written survives the cancellation.
	n, _ := db.CountDocuments("products", "acme")
	if n < 1 {
		t.Error("cancelled run should keep synced documents")
	}

	// Cancelling again finds nothing active.
	if _, err := o.CancelSync("acme", shopify.ResourceProducts); err == nil {
		t.Error("expected error cancelling with no active run")
	}
}

func TestSyncSinkErrorSkipsPage(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_info") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/admin/api/2024-01/products.json?page_info=c2>; rel="next"`, r.Host))
			writeJSON(w, map[string]any{"products": []any{
				map[string]any{"id": 1, "title": "Widget 1"},
				map[string]any{"id": 2, "title": "Widget 2"},
			}})
			return
		}
		writeJSON(w, map[string]any{"products": []any{
			map[string]any{"id": 3, "title": "Widget 3"},
			map[string]any{"id": 4, "title": "Widget 4"},
		}})
	})

	db := testStore(t)
	search := newFakeSearch()
	search.failAfter = 1 // first page indexes, second fails
	rec := &eventRecorder{}
	o := NewOrchestrator(db, search, testFactory(t, handler, 2), nil)
	o.Events().Subscribe(rec.record)

	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceProducts, DefaultStartSyncOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitRun(t, db, p.RunID)
	if final.State != store.SyncCompleted {
		t.Fatalf("state = %q, want completed", final.State)
	}
	if final.SyncedCount != 2 {
		t.Errorf("SyncedCount = %d, want 2 (failed page not counted)", final.SyncedCount)
	}
	if final.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", final.ErrorCount)
	}
	if !rec.has(EventSinkError) {
		t.Errorf("events = %v, want sink_error", rec.types())
	}
}

func TestSyncSinkErrorAborts(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"products": []any{
			map[string]any{"id": 1, "title": "Widget 1"},
		}})
	})

	db := testStore(t)
	search := newFakeSearch()
	search.failAfter = 0 // every call fails
	o := NewOrchestrator(db, search, testFactory(t, handler, 250), nil)

	opts := DefaultStartSyncOptions()
	opts.FailOnSyncError = true
	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceProducts, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitRun(t, db, p.RunID)
	if final.State != store.SyncFailed {
		t.Fatalf("state = %q, want failed", final.State)
	}
	if final.ErrorKind != KindSearch {
		t.Errorf("ErrorKind = %q, want %q", final.ErrorKind, KindSearch)
	}
}

func TestSyncRemoteFailureAborts(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":"something broke"}`, http.StatusInternalServerError)
	})

	db := testStore(t)
	o := NewOrchestrator(db, newFakeSearch(), testFactory(t, handler, 250), nil)

	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceProducts, DefaultStartSyncOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitRun(t, db, p.RunID)
	if final.State != store.SyncFailed {
		t.Fatalf("state = %q, want failed", final.State)
	}
	if final.ErrorKind != shopify.KindServerError {
		t.Errorf("ErrorKind = %q, want %q", final.ErrorKind, shopify.KindServerError)
	}
}

func TestStartSyncConflictAttachAndCancel(t *testing.T) {
	release := make(chan struct{})
	var once gosync.Once
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		writeJSON(w, map[string]any{"products": []any{}})
	})

	db := testStore(t)
	o := NewOrchestrator(db, newFakeSearch(), testFactory(t, handler, 250), nil)
	defer once.Do(func() { close(release) })

	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceProducts, DefaultStartSyncOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Plain second start conflicts.
	_, err = o.StartSync(context.Background(), "acme", shopify.ResourceProducts, DefaultStartSyncOptions())
	se, ok := err.(*Error)
	if !ok || se.Kind != KindAlreadyRunning {
		t.Fatalf("err = %v, want already_running", err)
	}

	// Attaching returns the active run.
	opts := DefaultStartSyncOptions()
	opts.AttachToExisting = true
	attached, err := o.StartSync(context.Background(), "acme", shopify.ResourceProducts, opts)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if attached.RunID != p.RunID {
		t.Errorf("attached run = %s, want %s", attached.RunID, p.RunID)
	}

	// Cancelling the existing run starts a fresh one.
	opts = DefaultStartSyncOptions()
	opts.CancelExisting = true
	replaced, err := o.StartSync(context.Background(), "acme", shopify.ResourceProducts, opts)
	if err != nil {
		t.Fatalf("cancel existing: %v", err)
	}
	if replaced.RunID == p.RunID {
		t.Error("expected a new run id")
	}
	old := waitRun(t, db, p.RunID)
	if old.State != store.SyncCancelled {
		t.Errorf("old run state = %q, want cancelled", old.State)
	}

	once.Do(func() { close(release) })
	waitRun(t, db, replaced.RunID)
}

func TestStartSyncValidation(t *testing.T) {
	db := testStore(t)
	o := NewOrchestrator(db, newFakeSearch(), testFactory(t, http.NotFoundHandler(), 250), nil)

	_, err := o.StartSync(context.Background(), "acme", shopify.ResourceTransactions, DefaultStartSyncOptions())
	if se, ok := err.(*Error); !ok || se.Kind != KindBadOptions {
		t.Errorf("transactions direct sync err = %v, want bad_options", err)
	}

	_, err = o.StartSync(context.Background(), "acme", shopify.Resource("widgets"), DefaultStartSyncOptions())
	if se, ok := err.(*Error); !ok || se.Kind != KindNotFound {
		t.Errorf("unknown resource err = %v, want not_found", err)
	}

	opts := DefaultStartSyncOptions()
	opts.AttachToExisting = true
	opts.CancelExisting = true
	_, err = o.StartSync(context.Background(), "acme", shopify.ResourceProducts, opts)
	if se, ok := err.(*Error); !ok || se.Kind != KindBadOptions {
		t.Errorf("attach+cancel err = %v, want bad_options", err)
	}

	opts = StartSyncOptions{}
	_, err = o.StartSync(context.Background(), "acme", shopify.ResourceProducts, opts)
	if se, ok := err.(*Error); !ok || se.Kind != KindBadOptions {
		t.Errorf("no sinks err = %v, want bad_options", err)
	}
}

func TestSmartCollectionsInfoHook(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"smart_collections": []any{
			map[string]any{"id": 1, "title": "Sale"},
			map[string]any{"id": 2, "title": "New Arrivals"},
		}})
	})

	db := testStore(t)
	o := NewOrchestrator(db, newFakeSearch(), testFactory(t, handler, 250), nil)

	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceSmartCollections, DefaultStartSyncOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitRun(t, db, p.RunID)
	if final.State != store.SyncCompleted {
		t.Fatalf("state = %q", final.State)
	}
	if final.Info != "New Arrivals" {
		t.Errorf("Info = %q, want last collection title", final.Info)
	}
	if final.SyncedCount != 2 {
		t.Errorf("SyncedCount = %d, want 2", final.SyncedCount)
	}
	if n, _ := db.CountDocuments("smartCollections", "acme"); n != 2 {
		t.Errorf("db smart collections = %d, want 2", n)
	}
}

func TestSyncCustomCollections(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"custom_collections": []any{
			map[string]any{"id": 11, "title": "Spring"},
		}})
	})

	db := testStore(t)
	search := newFakeSearch()
	o := NewOrchestrator(db, search, testFactory(t, handler, 250), nil)

	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceCustomCollections, DefaultStartSyncOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitRun(t, db, p.RunID)
	if final.State != store.SyncCompleted || final.SyncedCount != 1 || final.ErrorCount != 0 {
		t.Fatalf("run = %+v", final)
	}
	if n, _ := db.CountDocuments("customCollections", "acme"); n != 1 {
		t.Errorf("db custom collections = %d, want 1", n)
	}
	if n, _ := search.Count(context.Background(), "acme", "customCollections"); n != 1 {
		t.Errorf("indexed custom collections = %d, want 1", n)
	}
}

func TestOrphanedRunRecovery(t *testing.T) {
	var sawSinceID string
	var mu gosync.Mutex
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sawSinceID = r.URL.Query().Get("since_id")
		mu.Unlock()
		writeJSON(w, map[string]any{"products": []any{
			map[string]any{"id": 3, "title": "Widget 3"},
			map[string]any{"id": 4, "title": "Widget 4"},
		}})
	})

	db := testStore(t)
	// A run left behind by a dead process: active row, no worker.
	db.StartSyncRun(&store.SyncProgress{RunID: "ghost", Shop: "acme", Resource: "products"})
	db.UpdateSyncRun("ghost", func(p *store.SyncProgress) {
		p.State = store.SyncRunning
		p.SyncedCount = 2
		p.LastID = 2
	})

	o := NewOrchestrator(db, newFakeSearch(), testFactory(t, handler, 250), nil)

	ghost, err := db.GetSyncRun("ghost")
	if err != nil {
		t.Fatalf("get ghost: %v", err)
	}
	if ghost.State != store.SyncFailed || ghost.ErrorKind != KindInterrupted {
		t.Fatalf("ghost run = %+v, want failed/interrupted", ghost)
	}

	// The tuple is free again, and the new run resumes above the dead
	// run's persisted progress instead of refetching it.
	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceProducts, DefaultStartSyncOptions())
	if err != nil {
		t.Fatalf("start after recovery: %v", err)
	}
	final := waitRun(t, db, p.RunID)
	if final.State != store.SyncCompleted || final.SyncedCount != 2 || final.LastID != 4 {
		t.Fatalf("run = %+v", final)
	}
	mu.Lock()
	got := sawSinceID
	mu.Unlock()
	if got != "2" {
		t.Errorf("since_id = %q, want 2", got)
	}
}

func TestStartSyncAdoptsOrphanedRun(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"products": []any{}})
	})

	db := testStore(t)
	o := NewOrchestrator(db, newFakeSearch(), testFactory(t, handler, 250), nil)

	// The orphan shows up after construction, e.g. written by a process
	// that died between restarts of this one.
	db.StartSyncRun(&store.SyncProgress{RunID: "ghost", Shop: "acme", Resource: "products"})
	db.UpdateSyncRun("ghost", func(p *store.SyncProgress) { p.State = store.SyncRunning })

	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceProducts, DefaultStartSyncOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.RunID == "ghost" {
		t.Fatal("expected a fresh run, not the orphan")
	}
	waitRun(t, db, p.RunID)

	ghost, _ := db.GetSyncRun("ghost")
	if ghost.State != store.SyncFailed || ghost.ErrorKind != KindInterrupted {
		t.Errorf("ghost run = %+v, want failed/interrupted", ghost)
	}
}

func TestSyncRetriesThrottledPage(t *testing.T) {
	var mu gosync.Mutex
	var page2Attempts int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_info") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/admin/api/2024-01/products.json?page_info=c2>; rel="next"`, r.Host))
			writeJSON(w, map[string]any{"products": []any{
				map[string]any{"id": 1, "title": "Widget 1"},
				map[string]any{"id": 2, "title": "Widget 2"},
			}})
			return
		}
		mu.Lock()
		page2Attempts++
		n := page2Attempts
		mu.Unlock()
		if n <= 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]any{"products": []any{
			map[string]any{"id": 3, "title": "Widget 3"},
			map[string]any{"id": 4, "title": "Widget 4"},
		}})
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.ShopifyConfig{
		APIVersion:   "2024-01",
		Timeout:      time.Second,
		MaxRetries:   4,
		RatePerSec:   1000,
		RateBurst:    1000,
		PageLimit:    2,
		RetryBackoff: time.Millisecond,
	}
	factory := shopify.NewFactory(cfg, func(shop string) (shopify.Connect, error) {
		return shopify.Connect{Shop: shop, Domain: srv.URL, AccessToken: "token-1"}, nil
	})

	db := testStore(t)
	o := NewOrchestrator(db, newFakeSearch(), factory, nil)

	p, err := o.StartSync(context.Background(), "acme", shopify.ResourceProducts, DefaultStartSyncOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitRun(t, db, p.RunID)
	if final.State != store.SyncCompleted {
		t.Fatalf("state = %q, want completed", final.State)
	}
	// The throttled page lands exactly once after the retries.
	if final.SyncedCount != 4 || final.ErrorCount != 0 || final.LastID != 4 {
		t.Errorf("run = synced %d errors %d last %d, want 4/0/4",
			final.SyncedCount, final.ErrorCount, final.LastID)
	}
	if n, _ := db.CountDocuments("products", "acme"); n != 4 {
		t.Errorf("db products = %d, want 4", n)
	}
	mu.Lock()
	attempts := page2Attempts
	mu.Unlock()
	if attempts != 4 {
		t.Errorf("page 2 attempts = %d, want 4", attempts)
	}
}
