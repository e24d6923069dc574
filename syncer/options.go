package syncer

// StartSyncOptions controls one sync run. The JSON field names are the
// wire format accepted by the HTTP API and stored on the run's progress
// row.
type StartSyncOptions struct {
	// Resync ignores the incremental watermark and walks the full listing
	// from the beginning. Writes are idempotent so this converges.
	Resync bool `json:"resync,omitempty"`
	// AttachToExisting returns the already-active run instead of failing
	// when one exists.
	AttachToExisting bool `json:"attachToExisting,omitempty"`
	// CancelExisting cancels any active run before starting the new one.
	CancelExisting bool `json:"cancelExisting,omitempty"`

	SyncToDB     bool `json:"syncToDb"`
	SyncToSearch bool `json:"syncToSearch"`

	// IncludeTransactions fetches each order's transactions during an
	// orders sync, tracked as nested sub progress.
	IncludeTransactions bool `json:"includeTransactions,omitempty"`

	// FailOnSyncError aborts the run on the first sink write failure.
	// When false the failed page is skipped and counted as an error.
	FailOnSyncError bool `json:"failOnSyncError,omitempty"`
}

func DefaultStartSyncOptions() StartSyncOptions {
	return StartSyncOptions{SyncToDB: true, SyncToSearch: true}
}

func (o StartSyncOptions) validate() error {
	if o.AttachToExisting && o.CancelExisting {
		return newError(KindBadOptions, "attachToExisting and cancelExisting are mutually exclusive")
	}
	if !o.SyncToDB && !o.SyncToSearch {
		return newError(KindBadOptions, "at least one of syncToDb and syncToSearch must be set")
	}
	return nil
}
