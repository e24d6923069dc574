// Package syncer walks remote resource listings page by page and mirrors
// them into the configured sinks, tracking every run in the sync progress
// store. At most one run is active per shop and resource; cancellation is
// cooperative and observed at page boundaries.
package syncer

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"shopsync/shopify"
	"shopsync/store"
)

type Orchestrator struct {
	db      *store.DB
	search  SearchSink
	clients *shopify.Factory
	bus     *EventBus
	defs    map[shopify.Resource]Definition

	mu      gosync.Mutex
	cancels map[string]context.CancelFunc
	wg      gosync.WaitGroup
}

// NewOrchestrator wires the sync engine. search may be nil when no index
// is configured; runs asking for syncToSearch then fail their option check.
func NewOrchestrator(db *store.DB, search SearchSink, clients *shopify.Factory, bus *EventBus) *Orchestrator {
	if bus == nil {
		bus = NewEventBus()
	}
	o := &Orchestrator{
		db:      db,
		search:  search,
		clients: clients,
		bus:     bus,
		defs:    Definitions(),
		cancels: make(map[string]context.CancelFunc),
	}
	if err := o.recoverOrphans(); err != nil {
		log.Printf("syncer: orphan recovery: %v", err)
	}
	return o
}

// recoverOrphans fails over active runs left behind by an earlier
// process. No workers exist yet at construction, so every active row
// is an orphan; without this they would block their shop and resource
// forever.
func (o *Orchestrator) recoverOrphans() error {
	runs, err := o.db.ListActiveSyncRuns()
	if err != nil {
		return err
	}
	for _, p := range runs {
		o.failOrphan(p)
	}
	return nil
}

func (o *Orchestrator) failOrphan(p *store.SyncProgress) {
	o.fail(p.RunID, p.Shop, shopify.Resource(p.Resource),
		newError(KindInterrupted, "run has no worker, marked failed"))
}

func (o *Orchestrator) Events() *EventBus { return o.bus }

// StartSync begins a sync run for one shop and resource and returns its
// initial progress. The run itself proceeds on a background goroutine;
// callers follow it through GetSyncProgress or the event bus.
func (o *Orchestrator) StartSync(ctx context.Context, shop string, res shopify.Resource, opts StartSyncOptions) (*store.SyncProgress, error) {
	def, ok := o.defs[res]
	if !ok {
		if res.Valid() && res.Child() {
			return nil, newError(KindBadOptions, "%s sync only as part of their parent resource", res)
		}
		return nil, newError(KindNotFound, "unknown resource: %s", res)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.SyncToSearch && o.search == nil {
		return nil, newError(KindBadOptions, "no search index configured")
	}

	active, err := o.db.GetActiveSyncRun(shop, string(res))
	if err != nil {
		return nil, Classify(err)
	}
	if active != nil && !o.registered(active.RunID) {
		// The row has no worker behind it, the process that owned it
		// is gone. Fail it over and start fresh.
		o.failOrphan(active)
		active = nil
	}
	if active != nil {
		switch {
		case opts.AttachToExisting:
			return active, nil
		case opts.CancelExisting:
			if err := o.cancelRun(active.RunID); err != nil {
				return nil, Classify(err)
			}
			if err := o.waitFinished(ctx, active.RunID); err != nil {
				return nil, err
			}
		default:
			return nil, newError(KindAlreadyRunning, "sync of %s/%s already running (run %s)", shop, res, active.RunID)
		}
	}

	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, Classify(err)
	}
	p := &store.SyncProgress{
		RunID:    uuid.NewString(),
		Shop:     shop,
		Resource: string(res),
		Options:  optsJSON,
	}
	if err := o.db.StartSyncRun(p); err != nil {
		return nil, Classify(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[p.RunID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run(runCtx, p.RunID, shop, def, opts)

	o.bus.Emit(Event{Type: EventSyncStarted, Shop: shop, Payload: SyncStartedEvent{
		RunID: p.RunID, Shop: shop, Resource: string(res), Resync: opts.Resync,
	}})
	log.Printf("syncer: run %s started (%s/%s)", p.RunID, shop, res)
	return p, nil
}

// CancelSync flags the active run of a shop and resource for cancellation
// and returns its progress. The run finishes its current page first.
func (o *Orchestrator) CancelSync(shop string, res shopify.Resource) (*store.SyncProgress, error) {
	active, err := o.db.GetActiveSyncRun(shop, string(res))
	if err != nil {
		return nil, Classify(err)
	}
	if active == nil {
		return nil, newError(KindNotFound, "no active sync for %s/%s", shop, res)
	}
	if err := o.cancelRun(active.RunID); err != nil {
		return nil, Classify(err)
	}
	return active, nil
}

// cancelRun only sets the cancel flag; the worker observes it at the
// next page boundary, so the page in flight still lands. Hard context
// cancellation is reserved for Shutdown.
func (o *Orchestrator) cancelRun(runID string) error {
	_, err := o.db.RequestSyncCancel(runID)
	return err
}

func (o *Orchestrator) registered(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.cancels[runID]
	return ok
}

// GetSyncProgress returns the most recent run for a shop and resource,
// nil when it has never synced.
func (o *Orchestrator) GetSyncProgress(shop string, res shopify.Resource) (*store.SyncProgress, error) {
	return o.db.GetLastSyncRun(shop, string(res))
}

// ListSyncProgress returns past runs newest first, across all resources
// when res is empty.
func (o *Orchestrator) ListSyncProgress(shop string, res shopify.Resource, limit int) ([]*store.SyncProgress, error) {
	return o.db.ListSyncRuns(shop, string(res), limit)
}

// Shutdown cancels all running syncs and waits for their workers to stop.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	for _, cancel := range o.cancels {
		cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) waitFinished(ctx context.Context, runID string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(30 * time.Second)
	defer deadline.Stop()
	for {
		p, err := o.db.GetSyncRun(runID)
		if err != nil {
			return Classify(err)
		}
		if p == nil || p.State.Terminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return Classify(ctx.Err())
		case <-deadline.C:
			return newError(KindAlreadyRunning, "run %s did not stop in time", runID)
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) unregister(runID string) {
	o.mu.Lock()
	delete(o.cancels, runID)
	o.mu.Unlock()
}

// Run is the worker state of one sync run, handed to definition hooks.
type Run struct {
	o      *Orchestrator
	ctx    context.Context
	id     string
	shop   string
	def    Definition
	opts   StartSyncOptions
	client *shopify.Client

	subCount int64
	subLast  int64
}

func (r *Run) RunID() string              { return r.id }
func (r *Run) Shop() string               { return r.shop }
func (r *Run) Resource() shopify.Resource { return r.def.Resource }

// UpdateProgress applies mutate to the run's stored progress.
func (r *Run) UpdateProgress(mutate func(*store.SyncProgress)) error {
	return r.o.db.UpdateSyncRun(r.id, mutate)
}

func (o *Orchestrator) run(ctx context.Context, runID, shop string, def Definition, opts StartSyncOptions) {
	defer o.wg.Done()
	defer o.unregister(runID)
	res := def.Resource

	client, err := o.clients.ClientFor(shop)
	if err != nil {
		o.fail(runID, shop, res, Classify(err))
		return
	}
	r := &Run{o: o, ctx: ctx, id: runID, shop: shop, def: def, opts: opts, client: client}

	if err := r.UpdateProgress(func(p *store.SyncProgress) { p.State = store.SyncRunning }); err != nil {
		o.fail(runID, shop, res, Classify(err))
		return
	}

	listOpts := shopify.ListOptions{Limit: client.PageLimit()}
	if def.DefaultListOptions != nil {
		def.DefaultListOptions(&listOpts)
	}
	if !opts.Resync {
		wm, err := o.db.SyncWatermark(shop, string(res))
		if err != nil {
			o.fail(runID, shop, res, Classify(err))
			return
		}
		if wm > 0 {
			listOpts.SinceID = wm
		}
	}

	for {
		if o.shouldStop(ctx, runID) {
			o.cancelled(runID, shop, res)
			return
		}

		page, err := client.ListRecords(ctx, res, listOpts)
		if err != nil {
			if o.shouldStop(ctx, runID) {
				o.cancelled(runID, shop, res)
				return
			}
			o.fail(runID, shop, res, Classify(err))
			return
		}

		if len(page.Records) > 0 {
			if err := r.syncPage(page); err != nil {
				if o.shouldStop(ctx, runID) {
					o.cancelled(runID, shop, res)
					return
				}
				if opts.FailOnSyncError {
					o.fail(runID, shop, res, Classify(err))
					return
				}
				if uerr := r.UpdateProgress(func(p *store.SyncProgress) { p.ErrorCount++ }); uerr != nil {
					o.fail(runID, shop, res, Classify(uerr))
					return
				}
			}
		}

		if page.NextPageToken == "" {
			break
		}
		switch res.Pagination() {
		case shopify.PaginationCursor:
			listOpts.PageInfo = page.NextPageToken
		case shopify.PaginationPage:
			listOpts.Page, _ = strconv.Atoi(page.NextPageToken)
		}
	}

	o.complete(r)
}

// syncPage writes one page to the sinks, runs the sub-resource sync, and
// advances the run's counters. A returned error means the page did not
// make it into the sinks and was not counted.
func (r *Run) syncPage(page *shopify.RecordPage) error {
	res := string(r.def.Resource)
	if err := r.writeSinks(res, page.Records); err != nil {
		return err
	}

	if r.opts.IncludeTransactions && r.def.SubResource != "" {
		for _, rec := range page.Records {
			if err := r.syncChildren(rec.ID); err != nil {
				return err
			}
		}
	}

	n := int64(len(page.Records))
	maxID := page.Records[0].ID
	for _, rec := range page.Records {
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	if err := r.UpdateProgress(func(p *store.SyncProgress) {
		p.SyncedCount += n
		if maxID > p.LastID {
			p.LastID = maxID
		}
	}); err != nil {
		return err
	}
	if r.def.PageSynced != nil {
		if err := r.def.PageSynced(r, page); err != nil {
			return err
		}
	}

	current, err := r.o.db.GetSyncRun(r.id)
	if err == nil && current != nil {
		r.o.bus.Emit(Event{Type: EventSyncPage, Shop: r.shop, Payload: SyncPageEvent{
			RunID: r.id, Shop: r.shop, Resource: res,
			PageSize: len(page.Records), SyncedCount: current.SyncedCount, LastID: current.LastID,
		}})
	}
	return nil
}

// syncChildren fetches all child records of one parent and mirrors them,
// accumulating the run's sub progress.
func (r *Run) syncChildren(parentID int64) error {
	sub := r.def.SubResource
	listOpts := shopify.ListOptions{Limit: r.client.PageLimit(), ParentID: parentID}
	for {
		page, err := r.client.ListRecords(r.ctx, sub, listOpts)
		if err != nil {
			r.recordSubError(err)
			return err
		}
		if len(page.Records) > 0 {
			if err := r.writeSinks(string(sub), page.Records); err != nil {
				r.recordSubError(err)
				return err
			}
			r.subCount += int64(len(page.Records))
			for _, rec := range page.Records {
				if rec.ID > r.subLast {
					r.subLast = rec.ID
				}
			}
			if err := r.o.db.UpsertSubProgress(&store.SubSyncProgress{
				RunID:       r.id,
				SubResource: string(sub),
				State:       store.SyncRunning,
				SyncedCount: r.subCount,
				LastID:      r.subLast,
			}); err != nil {
				return err
			}
		}
		if page.NextPageToken == "" {
			return nil
		}
		listOpts.Page, _ = strconv.Atoi(page.NextPageToken)
	}
}

func (r *Run) recordSubError(err error) {
	r.o.db.UpsertSubProgress(&store.SubSyncProgress{
		RunID:        r.id,
		SubResource:  string(r.def.SubResource),
		State:        store.SyncRunning,
		SyncedCount:  r.subCount,
		LastID:       r.subLast,
		ErrorMessage: Classify(err).Message,
	})
}

func (r *Run) writeSinks(resource string, records []shopify.Record) error {
	if r.opts.SyncToDB {
		if err := r.o.db.BulkUpsertDocuments(resource, toDocuments(r.shop, records)); err != nil {
			r.o.bus.Emit(Event{Type: EventSinkError, Shop: r.shop, Payload: SinkErrorEvent{
				RunID: r.id, Shop: r.shop, Resource: resource, Sink: "db", Detail: err.Error(),
			}})
			return newError(KindStorage, "write %s page: %v", resource, err)
		}
	}
	if r.opts.SyncToSearch && r.o.search != nil {
		if err := r.o.search.BulkUpsert(r.ctx, r.shop, resource, toEntries(records)); err != nil {
			r.o.bus.Emit(Event{Type: EventSinkError, Shop: r.shop, Payload: SinkErrorEvent{
				RunID: r.id, Shop: r.shop, Resource: resource, Sink: "search", Detail: err.Error(),
			}})
			return newError(KindSearch, "index %s page: %v", resource, err)
		}
	}
	return nil
}

func (o *Orchestrator) shouldStop(ctx context.Context, runID string) bool {
	if ctx.Err() != nil {
		return true
	}
	requested, err := o.db.SyncCancelRequested(runID)
	if err != nil {
		return false
	}
	return requested
}

func (o *Orchestrator) complete(r *Run) {
	if r.subCount > 0 || r.subLast > 0 {
		r.o.db.UpsertSubProgress(&store.SubSyncProgress{
			RunID:       r.id,
			SubResource: string(r.def.SubResource),
			State:       store.SyncCompleted,
			SyncedCount: r.subCount,
			LastID:      r.subLast,
		})
	}
	var synced, errs int64
	o.db.UpdateSyncRun(r.id, func(p *store.SyncProgress) {
		p.State = store.SyncCompleted
		synced, errs = p.SyncedCount, p.ErrorCount
	})
	o.bus.Emit(Event{Type: EventSyncCompleted, Shop: r.shop, Payload: SyncCompletedEvent{
		RunID: r.id, Shop: r.shop, Resource: string(r.def.Resource),
		SyncedCount: synced, ErrorCount: errs,
	}})
	log.Printf("syncer: run %s completed (%s/%s, %d records, %d errors)",
		r.id, r.shop, r.def.Resource, synced, errs)
}

func (o *Orchestrator) cancelled(runID, shop string, res shopify.Resource) {
	var synced int64
	o.db.UpdateSyncRun(runID, func(p *store.SyncProgress) {
		p.State = store.SyncCancelled
		synced = p.SyncedCount
	})
	o.bus.Emit(Event{Type: EventSyncCancelled, Shop: shop, Payload: SyncCancelledEvent{
		RunID: runID, Shop: shop, Resource: string(res), SyncedCount: synced,
	}})
	log.Printf("syncer: run %s cancelled (%s/%s)", runID, shop, res)
}

func (o *Orchestrator) fail(runID, shop string, res shopify.Resource, e *Error) {
	o.db.UpdateSyncRun(runID, func(p *store.SyncProgress) {
		p.State = store.SyncFailed
		p.ErrorKind = e.Kind
		p.ErrorMessage = e.Message
	})
	o.bus.Emit(Event{Type: EventSyncFailed, Shop: shop, Payload: SyncFailedEvent{
		RunID: runID, Shop: shop, Resource: string(res),
		ErrorKind: e.Kind, Detail: e.Message, StatusCode: e.StatusCode,
	}})
	log.Printf("syncer: run %s failed (%s/%s): %v", runID, shop, res, e)
}
