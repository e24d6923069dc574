package syncer

type EventType int

const (
	EventSyncStarted EventType = iota + 1
	EventSyncPage
	EventSyncCompleted
	EventSyncCancelled
	EventSyncFailed
	EventSinkError
	EventRecordDeleted
)

// String names the event for outgoing message envelopes.
func (t EventType) String() string {
	switch t {
	case EventSyncStarted:
		return "sync_started"
	case EventSyncPage:
		return "sync_page"
	case EventSyncCompleted:
		return "sync_completed"
	case EventSyncCancelled:
		return "sync_cancelled"
	case EventSyncFailed:
		return "sync_failed"
	case EventSinkError:
		return "sink_error"
	case EventRecordDeleted:
		return "record_deleted"
	default:
		return "unknown"
	}
}

// --- Event payloads ---

type SyncStartedEvent struct {
	RunID    string `json:"run_id"`
	Shop     string `json:"shop"`
	Resource string `json:"resource"`
	Resync   bool   `json:"resync,omitempty"`
}

type SyncPageEvent struct {
	RunID       string `json:"run_id"`
	Shop        string `json:"shop"`
	Resource    string `json:"resource"`
	PageSize    int    `json:"page_size"`
	SyncedCount int64  `json:"synced_count"`
	LastID      int64  `json:"last_id"`
}

type SyncCompletedEvent struct {
	RunID       string `json:"run_id"`
	Shop        string `json:"shop"`
	Resource    string `json:"resource"`
	SyncedCount int64  `json:"synced_count"`
	ErrorCount  int64  `json:"error_count,omitempty"`
}

type SyncCancelledEvent struct {
	RunID       string `json:"run_id"`
	Shop        string `json:"shop"`
	Resource    string `json:"resource"`
	SyncedCount int64  `json:"synced_count"`
}

type SyncFailedEvent struct {
	RunID      string `json:"run_id"`
	Shop       string `json:"shop"`
	Resource   string `json:"resource"`
	ErrorKind  string `json:"error_kind"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code,omitempty"`
}

type SinkErrorEvent struct {
	RunID    string `json:"run_id"`
	Shop     string `json:"shop"`
	Resource string `json:"resource"`
	Sink     string `json:"sink"` // "db" or "search"
	Detail   string `json:"detail"`
}

type RecordDeletedEvent struct {
	Shop     string `json:"shop"`
	Resource string `json:"resource"`
	RecordID int64  `json:"record_id"`
}
