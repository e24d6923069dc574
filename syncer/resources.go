package syncer

import (
	"shopsync/shopify"
	"shopsync/store"
)

// Definition describes how one resource type syncs. The generic page loop
// in the orchestrator does the work; definitions contribute the per-type
// deviations through hooks.
type Definition struct {
	Resource shopify.Resource

	// DefaultListOptions adjusts the list filters of every run, applied
	// before the incremental watermark.
	DefaultListOptions func(opts *shopify.ListOptions)

	// PageSynced runs after a page has been written to the sinks and the
	// run's progress updated.
	PageSynced func(r *Run, page *shopify.RecordPage) error

	// SubResource is a child resource fetched per synced record when the
	// run options ask for it.
	SubResource shopify.Resource
}

// Definitions covers every directly syncable resource. Transactions only
// sync nested under an orders run.
func Definitions() map[shopify.Resource]Definition {
	return map[shopify.Resource]Definition{
		shopify.ResourceOrders: {
			Resource: shopify.ResourceOrders,
			// The API defaults to open orders; a mirror wants all of them.
			DefaultListOptions: func(opts *shopify.ListOptions) {
				opts.Status = "any"
			},
			SubResource: shopify.ResourceTransactions,
		},
		shopify.ResourceProducts: {
			Resource: shopify.ResourceProducts,
		},
		shopify.ResourcePages: {
			Resource: shopify.ResourcePages,
		},
		shopify.ResourceCustomCollections: {
			Resource: shopify.ResourceCustomCollections,
		},
		shopify.ResourceSmartCollections: {
			Resource: shopify.ResourceSmartCollections,
			// Surface the most recent collection title as run info so a
			// watcher can see where the walk is.
			PageSynced: func(r *Run, page *shopify.RecordPage) error {
				if len(page.Records) == 0 {
					return nil
				}
				last := page.Records[len(page.Records)-1]
				return r.UpdateProgress(func(p *store.SyncProgress) {
					p.Info = last.Title
				})
			},
		},
	}
}
