package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type SyncState string

const (
	SyncPending   SyncState = "pending"
	SyncRunning   SyncState = "running"
	SyncCompleted SyncState = "completed"
	SyncCancelled SyncState = "cancelled"
	SyncFailed    SyncState = "failed"
)

// Terminal reports whether a run in this state will never change again.
func (s SyncState) Terminal() bool {
	return s == SyncCompleted || s == SyncCancelled || s == SyncFailed
}

var ErrSyncAlreadyRunning = errors.New("a sync for this shop and resource is already running")

// SyncProgress is the persisted state of one sync run. A run is keyed by
// its RunID; at most one non-terminal run exists per (shop, resource).
type SyncProgress struct {
	ID              int64              `json:"-"`
	RunID           string             `json:"run_id"`
	Shop            string             `json:"shop"`
	Resource        string             `json:"resource"`
	State           SyncState          `json:"state"`
	Options         json.RawMessage    `json:"options,omitempty"`
	SyncedCount     int64              `json:"synced_count"`
	LastID          int64              `json:"last_id"`
	Info            string             `json:"info,omitempty"`
	ErrorCount      int64              `json:"error_count"`
	ErrorKind       string             `json:"error_kind,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	CancelRequested bool               `json:"cancel_requested"`
	StartedAt       time.Time          `json:"started_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
	Sub             []*SubSyncProgress `json:"sub_progress,omitempty"`
}

// SubSyncProgress tracks a nested sync running inside a parent run,
// e.g. transactions fetched per order during an orders sync.
type SubSyncProgress struct {
	RunID        string    `json:"-"`
	SubResource  string    `json:"sub_resource"`
	State        SyncState `json:"state"`
	SyncedCount  int64     `json:"synced_count"`
	LastID       int64     `json:"last_id"`
	Info         string    `json:"info,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StartSyncRun inserts a new pending run only if no active run exists for
// the same shop and resource. Returns ErrSyncAlreadyRunning otherwise.
func (db *DB) StartSyncRun(p *SyncProgress) error {
	options := p.Options
	if len(options) == 0 {
		options = json.RawMessage("{}")
	}
	query := db.Q(`INSERT INTO sync_progress (run_id, shop, resource, state, options)
		SELECT ?, ?, ?, 'pending', ?
		WHERE NOT EXISTS (
			SELECT 1 FROM sync_progress
			WHERE shop = ? AND resource = ? AND state IN ('pending', 'running')
		)`)
	res, err := db.Exec(query, p.RunID, p.Shop, p.Resource, string(options), p.Shop, p.Resource)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSyncAlreadyRunning
		}
		return fmt.Errorf("start sync run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("start sync run: %w", err)
	}
	if n == 0 {
		return ErrSyncAlreadyRunning
	}
	p.State = SyncPending
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

func (db *DB) GetSyncRun(runID string) (*SyncProgress, error) {
	query := db.Q(selectSyncProgress + " WHERE run_id = ?")
	p, err := scanSyncProgress(db.QueryRow(query, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Sub, err = db.GetSubProgress(p.RunID); err != nil {
		return nil, err
	}
	return p, nil
}

// GetActiveSyncRun returns the pending or running run for a shop and
// resource, or nil when no sync is in flight.
func (db *DB) GetActiveSyncRun(shop, resource string) (*SyncProgress, error) {
	query := db.Q(selectSyncProgress + ` WHERE shop = ? AND resource = ?
		AND state IN ('pending', 'running')`)
	p, err := scanSyncProgress(db.QueryRow(query, shop, resource))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Sub, err = db.GetSubProgress(p.RunID); err != nil {
		return nil, err
	}
	return p, nil
}

// ListActiveSyncRuns returns every run still marked pending or running,
// across all shops and resources.
func (db *DB) ListActiveSyncRuns() ([]*SyncProgress, error) {
	query := db.Q(selectSyncProgress + ` WHERE state IN ('pending', 'running')
		ORDER BY id`)
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list active sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*SyncProgress
	for rows.Next() {
		p, err := scanSyncProgress(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, p)
	}
	return runs, rows.Err()
}

// GetLastSyncRun returns the most recent run for a shop and resource in
// any state, or nil when the resource has never been synced.
func (db *DB) GetLastSyncRun(shop, resource string) (*SyncProgress, error) {
	query := db.Q(selectSyncProgress + ` WHERE shop = ? AND resource = ?
		ORDER BY id DESC LIMIT 1`)
	p, err := scanSyncProgress(db.QueryRow(query, shop, resource))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Sub, err = db.GetSubProgress(p.RunID); err != nil {
		return nil, err
	}
	return p, nil
}

// ListSyncRuns returns past runs newest first. Resource may be empty to
// list runs across all resources of the shop.
func (db *DB) ListSyncRuns(shop, resource string, limit int) ([]*SyncProgress, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectSyncProgress + " WHERE shop = ?"
	args := []any{shop}
	if resource != "" {
		query += " AND resource = ?"
		args = append(args, resource)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*SyncProgress
	for rows.Next() {
		p, err := scanSyncProgress(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, p)
	}
	return runs, rows.Err()
}

// UpdateSyncRun applies mutate to the stored run inside a transaction.
// Runs already in a terminal state are left untouched.
func (db *DB) UpdateSyncRun(runID string, mutate func(*SyncProgress)) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("update sync run: %w", err)
	}
	defer tx.Rollback()

	p, err := scanSyncProgress(tx.QueryRow(db.Q(selectSyncProgress+" WHERE run_id = ?"), runID))
	if err == sql.ErrNoRows {
		return fmt.Errorf("update sync run: no run %s", runID)
	}
	if err != nil {
		return err
	}
	if p.State.Terminal() {
		return nil
	}

	mutate(p)

	var finishedAt any
	if p.State.Terminal() {
		now := time.Now()
		finishedAt = fmtTimePtr(&now)
	}
	query := db.Q(`UPDATE sync_progress SET
		state = ?, synced_count = ?, last_id = ?, info = ?,
		error_count = ?, error_kind = ?, error_message = ?,
		updated_at = datetime('now'), finished_at = ?
		WHERE run_id = ?`)
	if _, err := tx.Exec(query, string(p.State), p.SyncedCount, p.LastID, p.Info,
		p.ErrorCount, p.ErrorKind, p.ErrorMessage, finishedAt, runID); err != nil {
		return fmt.Errorf("update sync run: %w", err)
	}
	return tx.Commit()
}

// RequestSyncCancel flags an active run for cancellation. The run worker
// observes the flag at the next page boundary. Returns false when the run
// is already finished or unknown.
func (db *DB) RequestSyncCancel(runID string) (bool, error) {
	query := db.Q(`UPDATE sync_progress SET cancel_requested = ?, updated_at = datetime('now')
		WHERE run_id = ? AND state IN ('pending', 'running')`)
	res, err := db.Exec(query, true, runID)
	if err != nil {
		return false, fmt.Errorf("request sync cancel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (db *DB) SyncCancelRequested(runID string) (bool, error) {
	var requested bool
	query := db.Q("SELECT cancel_requested FROM sync_progress WHERE run_id = ?")
	err := db.QueryRow(query, runID).Scan(&requested)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check sync cancel: %w", err)
	}
	return requested, nil
}

// SyncWatermark returns the highest record id any finished run got to,
// or 0 when the resource has never been synced. last_id only advances
// after a page's sink writes land, so even a failed or cancelled run's
// watermark is a safe resume point: records at or below it are already
// mirrored.
func (db *DB) SyncWatermark(shop, resource string) (int64, error) {
	var lastID sql.NullInt64
	query := db.Q(`SELECT MAX(last_id) FROM sync_progress
		WHERE shop = ? AND resource = ?
		AND state IN ('completed', 'cancelled', 'failed')`)
	if err := db.QueryRow(query, shop, resource).Scan(&lastID); err != nil {
		return 0, fmt.Errorf("sync watermark: %w", err)
	}
	return lastID.Int64, nil
}

func (db *DB) UpsertSubProgress(sub *SubSyncProgress) error {
	query := db.Q(`INSERT INTO sync_sub_progress
		(run_id, sub_resource, state, synced_count, last_id, info, error_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(run_id, sub_resource) DO UPDATE SET
			state = excluded.state,
			synced_count = excluded.synced_count,
			last_id = excluded.last_id,
			info = excluded.info,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at`)
	_, err := db.Exec(query, sub.RunID, sub.SubResource, string(sub.State),
		sub.SyncedCount, sub.LastID, sub.Info, sub.ErrorMessage)
	if err != nil {
		return fmt.Errorf("upsert sub progress: %w", err)
	}
	return nil
}

func (db *DB) GetSubProgress(runID string) ([]*SubSyncProgress, error) {
	query := db.Q(`SELECT run_id, sub_resource, state, synced_count, last_id, info, error_message, updated_at
		FROM sync_sub_progress WHERE run_id = ? ORDER BY sub_resource`)
	rows, err := db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("get sub progress: %w", err)
	}
	defer rows.Close()

	var subs []*SubSyncProgress
	for rows.Next() {
		var sub SubSyncProgress
		var state string
		var updatedAt any
		if err := rows.Scan(&sub.RunID, &sub.SubResource, &state, &sub.SyncedCount,
			&sub.LastID, &sub.Info, &sub.ErrorMessage, &updatedAt); err != nil {
			return nil, err
		}
		sub.State = SyncState(state)
		sub.UpdatedAt = parseTime(updatedAt)
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

const selectSyncProgress = `SELECT id, run_id, shop, resource, state, options,
	synced_count, last_id, info, error_count, error_kind, error_message,
	cancel_requested, started_at, updated_at, finished_at
	FROM sync_progress`

func scanSyncProgress(row rowScanner) (*SyncProgress, error) {
	var p SyncProgress
	var state, options string
	var startedAt, updatedAt, finishedAt any
	if err := row.Scan(&p.ID, &p.RunID, &p.Shop, &p.Resource, &state, &options,
		&p.SyncedCount, &p.LastID, &p.Info, &p.ErrorCount, &p.ErrorKind, &p.ErrorMessage,
		&p.CancelRequested, &startedAt, &updatedAt, &finishedAt); err != nil {
		return nil, err
	}
	p.State = SyncState(state)
	p.Options = json.RawMessage(options)
	p.StartedAt = parseTime(startedAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.FinishedAt = parseTimePtr(finishedAt)
	return &p, nil
}
