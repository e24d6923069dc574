package messaging

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"shopsync/config"
	"shopsync/store"
	"shopsync/syncer"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope("sync_completed", "acme", syncer.SyncCompletedEvent{
		RunID: "run-1", Shop: "acme", Resource: "orders", SyncedCount: 42,
	})
	if env.MsgID == "" {
		t.Fatal("MsgID should be assigned")
	}
	if env.Timestamp.IsZero() {
		t.Fatal("Timestamp should be assigned")
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	raw, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw.MsgType != "sync_completed" || raw.Shop != "acme" || raw.MsgID != env.MsgID {
		t.Errorf("raw = %+v", raw)
	}

	var payload syncer.SyncCompletedEvent
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.RunID != "run-1" || payload.SyncedCount != 42 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestDecodeEnvelopeRejectsBadInput(t *testing.T) {
	if _, err := DecodeEnvelope([]byte("not json")); err == nil {
		t.Error("expected error for malformed input")
	}
	if _, err := DecodeEnvelope([]byte(`{"payload":{}}`)); err == nil {
		t.Error("expected error for missing msg_type")
	}
}

func TestWireEventsStagesOutbox(t *testing.T) {
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	bus := syncer.NewEventBus()
	WireEvents(bus, db, "shopsync.events")

	bus.Emit(syncer.Event{Type: syncer.EventSyncStarted, Shop: "acme", Payload: syncer.SyncStartedEvent{
		RunID: "run-1", Shop: "acme", Resource: "orders",
	}})
	bus.Emit(syncer.Event{Type: syncer.EventSyncFailed, Shop: "acme", Payload: syncer.SyncFailedEvent{
		RunID: "run-1", Shop: "acme", Resource: "orders", ErrorKind: "server_error",
	}})

	pending, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].MsgType != "sync_started" || pending[0].Shop != "acme" {
		t.Errorf("first = %+v", pending[0])
	}
	if pending[0].Topic != "shopsync.events" {
		t.Errorf("topic = %q", pending[0].Topic)
	}

	raw, err := DecodeEnvelope(pending[1].Payload)
	if err != nil {
		t.Fatalf("decode staged envelope: %v", err)
	}
	if raw.MsgType != "sync_failed" {
		t.Errorf("MsgType = %q", raw.MsgType)
	}
}
