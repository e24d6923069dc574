package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS shops (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL UNIQUE,
    domain       TEXT NOT NULL,
    access_token TEXT NOT NULL DEFAULT '',
    scopes       TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS doc_orders (
    id                BIGSERIAL PRIMARY KEY,
    shop              TEXT NOT NULL,
    external_id       BIGINT NOT NULL,
    parent_id         BIGINT NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           JSONB NOT NULL DEFAULT '{}',
    remote_created_at TIMESTAMPTZ,
    remote_updated_at TIMESTAMPTZ,
    synced_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(shop, external_id)
);
CREATE INDEX IF NOT EXISTS idx_doc_orders_shop ON doc_orders(shop, external_id);

CREATE TABLE IF NOT EXISTS doc_transactions (
    id                BIGSERIAL PRIMARY KEY,
    shop              TEXT NOT NULL,
    external_id       BIGINT NOT NULL,
    parent_id         BIGINT NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           JSONB NOT NULL DEFAULT '{}',
    remote_created_at TIMESTAMPTZ,
    remote_updated_at TIMESTAMPTZ,
    synced_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(shop, external_id)
);
CREATE INDEX IF NOT EXISTS idx_doc_transactions_parent ON doc_transactions(shop, parent_id);

CREATE TABLE IF NOT EXISTS doc_products (
    id                BIGSERIAL PRIMARY KEY,
    shop              TEXT NOT NULL,
    external_id       BIGINT NOT NULL,
    parent_id         BIGINT NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           JSONB NOT NULL DEFAULT '{}',
    remote_created_at TIMESTAMPTZ,
    remote_updated_at TIMESTAMPTZ,
    synced_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(shop, external_id)
);

CREATE TABLE IF NOT EXISTS doc_pages (
    id                BIGSERIAL PRIMARY KEY,
    shop              TEXT NOT NULL,
    external_id       BIGINT NOT NULL,
    parent_id         BIGINT NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           JSONB NOT NULL DEFAULT '{}',
    remote_created_at TIMESTAMPTZ,
    remote_updated_at TIMESTAMPTZ,
    synced_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(shop, external_id)
);

CREATE TABLE IF NOT EXISTS doc_custom_collections (
    id                BIGSERIAL PRIMARY KEY,
    shop              TEXT NOT NULL,
    external_id       BIGINT NOT NULL,
    parent_id         BIGINT NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           JSONB NOT NULL DEFAULT '{}',
    remote_created_at TIMESTAMPTZ,
    remote_updated_at TIMESTAMPTZ,
    synced_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(shop, external_id)
);

CREATE TABLE IF NOT EXISTS doc_smart_collections (
    id                BIGSERIAL PRIMARY KEY,
    shop              TEXT NOT NULL,
    external_id       BIGINT NOT NULL,
    parent_id         BIGINT NOT NULL DEFAULT 0,
    title             TEXT NOT NULL DEFAULT '',
    payload           JSONB NOT NULL DEFAULT '{}',
    remote_created_at TIMESTAMPTZ,
    remote_updated_at TIMESTAMPTZ,
    synced_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(shop, external_id)
);

CREATE TABLE IF NOT EXISTS sync_progress (
    id               BIGSERIAL PRIMARY KEY,
    run_id           TEXT NOT NULL UNIQUE,
    shop             TEXT NOT NULL,
    resource         TEXT NOT NULL,
    state            TEXT NOT NULL DEFAULT 'pending',
    options          TEXT NOT NULL DEFAULT '{}',
    synced_count     BIGINT NOT NULL DEFAULT 0,
    last_id          BIGINT NOT NULL DEFAULT 0,
    info             TEXT NOT NULL DEFAULT '',
    error_count      BIGINT NOT NULL DEFAULT 0,
    error_kind       TEXT NOT NULL DEFAULT '',
    error_message    TEXT NOT NULL DEFAULT '',
    cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
    started_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    finished_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_sync_progress_key ON sync_progress(shop, resource, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_progress_active
    ON sync_progress(shop, resource) WHERE state IN ('pending', 'running');

CREATE TABLE IF NOT EXISTS sync_sub_progress (
    id            BIGSERIAL PRIMARY KEY,
    run_id        TEXT NOT NULL,
    sub_resource  TEXT NOT NULL,
    state         TEXT NOT NULL DEFAULT 'running',
    synced_count  BIGINT NOT NULL DEFAULT 0,
    last_id       BIGINT NOT NULL DEFAULT 0,
    info          TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(run_id, sub_resource)
);

CREATE TABLE IF NOT EXISTS outbox (
    id         BIGSERIAL PRIMARY KEY,
    topic      TEXT NOT NULL,
    payload    BYTEA NOT NULL,
    msg_type   TEXT NOT NULL DEFAULT '',
    shop       TEXT NOT NULL DEFAULT '',
    retries    BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS admin_users (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
