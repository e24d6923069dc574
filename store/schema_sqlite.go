package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS shops (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    name         TEXT NOT NULL UNIQUE,
    domain       TEXT NOT NULL,
    access_token TEXT NOT NULL DEFAULT '',
    scopes       TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS doc_orders (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    shop              TEXT NOT NULL,
    external_id       INTEGER NOT NULL,
    parent_id         INTEGER NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           TEXT NOT NULL DEFAULT '{}',
    remote_created_at TEXT,
    remote_updated_at TEXT,
    synced_at         TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(shop, external_id)
);
CREATE INDEX IF NOT EXISTS idx_doc_orders_shop ON doc_orders(shop, external_id);

CREATE TABLE IF NOT EXISTS doc_transactions (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    shop              TEXT NOT NULL,
    external_id       INTEGER NOT NULL,
    parent_id         INTEGER NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           TEXT NOT NULL DEFAULT '{}',
    remote_created_at TEXT,
    remote_updated_at TEXT,
    synced_at         TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(shop, external_id)
);
CREATE INDEX IF NOT EXISTS idx_doc_transactions_parent ON doc_transactions(shop, parent_id);

CREATE TABLE IF NOT EXISTS doc_products (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    shop              TEXT NOT NULL,
    external_id       INTEGER NOT NULL,
    parent_id         INTEGER NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           TEXT NOT NULL DEFAULT '{}',
    remote_created_at TEXT,
    remote_updated_at TEXT,
    synced_at         TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(shop, external_id)
);

CREATE TABLE IF NOT EXISTS doc_pages (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    shop              TEXT NOT NULL,
    external_id       INTEGER NOT NULL,
    parent_id         INTEGER NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           TEXT NOT NULL DEFAULT '{}',
    remote_created_at TEXT,
    remote_updated_at TEXT,
    synced_at         TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(shop, external_id)
);

CREATE TABLE IF NOT EXISTS doc_custom_collections (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    shop              TEXT NOT NULL,
    external_id       INTEGER NOT NULL,
    parent_id         INTEGER NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           TEXT NOT NULL DEFAULT '{}',
    remote_created_at TEXT,
    remote_updated_at TEXT,
    synced_at         TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(shop, external_id)
);

CREATE TABLE IF NOT EXISTS doc_smart_collections (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    shop              TEXT NOT NULL,
    external_id       INTEGER NOT NULL,
    parent_id         INTEGER NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           TEXT NOT NULL DEFAULT '{}',
    remote_created_at TEXT,
    remote_updated_at TEXT,
    synced_at         TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(shop, external_id)
);

CREATE TABLE IF NOT EXISTS sync_progress (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id           TEXT NOT NULL UNIQUE,
    shop             TEXT NOT NULL,
    resource         TEXT NOT NULL,
    state            TEXT NOT NULL DEFAULT 'pending',
    options          TEXT NOT NULL DEFAULT '{}',
    synced_count     INTEGER NOT NULL DEFAULT 0,
    last_id          INTEGER NOT NULL DEFAULT 0,
    info             TEXT NOT NULL DEFAULT '',
    error_count      INTEGER NOT NULL DEFAULT 0,
    error_kind       TEXT NOT NULL DEFAULT '',
    error_message    TEXT NOT NULL DEFAULT '',
    cancel_requested INTEGER NOT NULL DEFAULT 0,
    started_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now')),
    finished_at      TEXT
);
CREATE INDEX IF NOT EXISTS idx_sync_progress_key ON sync_progress(shop, resource, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_progress_active
    ON sync_progress(shop, resource) WHERE state IN ('pending', 'running');

CREATE TABLE IF NOT EXISTS sync_sub_progress (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id        TEXT NOT NULL,
    sub_resource  TEXT NOT NULL,
    state         TEXT NOT NULL DEFAULT 'running',
    synced_count  INTEGER NOT NULL DEFAULT 0,
    last_id       INTEGER NOT NULL DEFAULT 0,
    info          TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    updated_at    TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(run_id, sub_resource)
);

CREATE TABLE IF NOT EXISTS outbox (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    topic      TEXT NOT NULL,
    payload    BLOB NOT NULL,
    msg_type   TEXT NOT NULL DEFAULT '',
    shop       TEXT NOT NULL DEFAULT '',
    retries    INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    sent_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now'))
);
`
