package syncer

import (
	"errors"
	"fmt"

	"shopsync/shopify"
	"shopsync/store"
)

// Error kinds carried on every failure surfaced by the sync layer.
// Remote API failures keep the kind assigned by the shopify client.
const (
	KindAlreadyRunning = "already_running"
	KindNotFound       = "not_found"
	KindCancelled      = "cancelled"
	KindInterrupted    = "interrupted"
	KindBadOptions     = "bad_options"
	KindStorage        = "storage"
	KindSearch         = "search"
)

// Error is the structured failure shape recorded on sync progress and
// returned to API callers.
type Error struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Classify maps any error to its structured form. Remote API errors keep
// their own kind and status code; store conflicts map to already_running;
// everything else is reported as storage.
func Classify(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	var apiErr *shopify.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: apiErr.Kind, Message: apiErr.Message, StatusCode: apiErr.StatusCode}
	}
	if errors.Is(err, store.ErrSyncAlreadyRunning) {
		return &Error{Kind: KindAlreadyRunning, Message: err.Error()}
	}
	return &Error{Kind: KindStorage, Message: err.Error()}
}
