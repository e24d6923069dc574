package syncer

import (
	"context"
	"strconv"

	"shopsync/searchindex"
	"shopsync/shopify"
	"shopsync/store"
)

// Service answers read and delete requests against the mirrored data and
// the remote API. The orchestrator writes; the service is what the HTTP
// layer queries.
type Service struct {
	db      *store.DB
	search  SearchSink
	clients *shopify.Factory
	bus     *EventBus
}

func NewService(db *store.DB, search SearchSink, clients *shopify.Factory, bus *EventBus) *Service {
	if bus == nil {
		bus = NewEventBus()
	}
	return &Service{db: db, search: search, clients: clients, bus: bus}
}

func (s *Service) ListFromDB(shop string, res shopify.Resource, limit, offset int) ([]*store.Document, error) {
	return s.db.ListDocuments(string(res), shop, limit, offset)
}

func (s *Service) GetFromDB(shop string, res shopify.Resource, id int64) (*store.Document, error) {
	return s.db.GetDocument(string(res), shop, id)
}

func (s *Service) ListFromSearch(ctx context.Context, shop string, res shopify.Resource, limit, offset int) ([]*searchindex.Entry, error) {
	if s.search == nil {
		return nil, newError(KindBadOptions, "no search index configured")
	}
	return s.search.List(ctx, shop, string(res), limit, offset)
}

func (s *Service) GetFromShopify(ctx context.Context, shop string, res shopify.Resource, parentID, id int64) (*shopify.Record, error) {
	client, err := s.clients.ClientFor(shop)
	if err != nil {
		return nil, Classify(err)
	}
	return client.GetRecord(ctx, res, parentID, id, shopify.GetOptions{})
}

func (s *Service) CountFromDB(shop string, res shopify.Resource) (int64, error) {
	return s.db.CountDocuments(string(res), shop)
}

func (s *Service) CountFromSearch(ctx context.Context, shop string, res shopify.Resource) (int64, error) {
	if s.search == nil {
		return 0, newError(KindBadOptions, "no search index configured")
	}
	return s.search.Count(ctx, shop, string(res))
}

func (s *Service) CountFromShopify(ctx context.Context, shop string, res shopify.Resource) (int, error) {
	client, err := s.clients.ClientFor(shop)
	if err != nil {
		return 0, Classify(err)
	}
	opts := shopify.ListOptions{}
	if def, ok := Definitions()[res]; ok && def.DefaultListOptions != nil {
		def.DefaultListOptions(&opts)
	}
	return client.CountRecords(ctx, res, opts)
}

// SyncDiff compares the id sets of the remote listing, the document store
// and the search index for one shop and resource.
type SyncDiff struct {
	Shop            string  `json:"shop"`
	Resource        string  `json:"resource"`
	RemoteCount     int     `json:"remote_count"`
	DBCount         int     `json:"db_count"`
	SearchCount     int64   `json:"search_count,omitempty"`
	MissingInDB     []int64 `json:"missing_in_db"`
	MissingInSearch []int64 `json:"missing_in_search,omitempty"`
	Orphaned        []int64 `json:"orphaned"`
}

// DiffSynced walks the remote listing fetching only ids and reports what
// the sinks are missing and what they hold that the remote no longer has.
func (s *Service) DiffSynced(ctx context.Context, shop string, res shopify.Resource) (*SyncDiff, error) {
	if res.Child() {
		return nil, newError(KindBadOptions, "%s have no top-level listing to diff", res)
	}
	client, err := s.clients.ClientFor(shop)
	if err != nil {
		return nil, Classify(err)
	}

	listOpts := shopify.ListOptions{Limit: client.PageLimit(), Fields: []string{"id"}}
	if def, ok := Definitions()[res]; ok && def.DefaultListOptions != nil {
		def.DefaultListOptions(&listOpts)
	}
	remote := make(map[int64]struct{})
	var remoteIDs []int64
	for {
		page, err := client.ListRecords(ctx, res, listOpts)
		if err != nil {
			return nil, Classify(err)
		}
		for _, rec := range page.Records {
			remote[rec.ID] = struct{}{}
			remoteIDs = append(remoteIDs, rec.ID)
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

	dbIDs, err := s.db.DocumentIDs(string(res), shop)
	if err != nil {
		return nil, Classify(err)
	}
	inDB := make(map[int64]struct{}, len(dbIDs))
	for _, id := range dbIDs {
		inDB[id] = struct{}{}
	}

	diff := &SyncDiff{
		Shop:        shop,
		Resource:    string(res),
		RemoteCount: len(remoteIDs),
		DBCount:     len(dbIDs),
		MissingInDB: []int64{},
		Orphaned:    []int64{},
	}
	for _, id := range remoteIDs {
		if _, ok := inDB[id]; !ok {
			diff.MissingInDB = append(diff.MissingInDB, id)
		}
	}
	for _, id := range dbIDs {
		if _, ok := remote[id]; !ok {
			diff.Orphaned = append(diff.Orphaned, id)
		}
	}

	if s.search != nil {
		searchIDs, err := s.search.IDs(ctx, shop, string(res))
		if err != nil {
			return nil, Classify(err)
		}
		diff.SearchCount = int64(len(searchIDs))
		inSearch := make(map[int64]struct{}, len(searchIDs))
		for _, id := range searchIDs {
			inSearch[id] = struct{}{}
		}
		diff.MissingInSearch = []int64{}
		for _, id := range remoteIDs {
			if _, ok := inSearch[id]; !ok {
				diff.MissingInSearch = append(diff.MissingInSearch, id)
			}
		}
	}
	return diff, nil
}

// DeleteSynced removes a mirrored record from both sinks. Deleting an
// order drops its mirrored transactions with it. The remote record is
// untouched.
func (s *Service) DeleteSynced(ctx context.Context, shop string, res shopify.Resource, id int64) error {
	if err := s.db.DeleteDocument(string(res), shop, id); err != nil {
		return Classify(err)
	}
	if res == shopify.ResourceOrders {
		children, err := s.db.ListDocumentsByParent(string(shopify.ResourceTransactions), shop, id)
		if err != nil {
			return Classify(err)
		}
		if err := s.db.DeleteDocumentsByParent(string(shopify.ResourceTransactions), shop, id); err != nil {
			return Classify(err)
		}
		if s.search != nil {
			for _, child := range children {
				if err := s.search.Delete(ctx, shop, string(shopify.ResourceTransactions), child.ExternalID); err != nil {
					return Classify(err)
				}
			}
		}
	}
	if s.search != nil {
		if err := s.search.Delete(ctx, shop, string(res), id); err != nil {
			return Classify(err)
		}
	}
	s.bus.Emit(Event{Type: EventRecordDeleted, Shop: shop, Payload: RecordDeletedEvent{
		Shop: shop, Resource: string(res), RecordID: id,
	}})
	return nil
}
