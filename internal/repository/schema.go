package repository

// ddl is the embedded schema migration, applied once at startup via
// plain CREATE TABLE IF NOT EXISTS statements, no external migration tool.
const ddl = `
CREATE TABLE IF NOT EXISTS hosts (
    host       TEXT PRIMARY KEY,
    region     TEXT NOT NULL,
    last_seen  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_domains (
    domain     TEXT PRIMARY KEY,
    country    TEXT NOT NULL DEFAULT '',
    region     TEXT NOT NULL,
    last_seen  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS agencies (
    host       TEXT NOT NULL REFERENCES hosts(host) ON DELETE CASCADE,
    name       TEXT NOT NULL,
    type       TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (host, name)
);

CREATE TABLE IF NOT EXISTS datasets (
    host        TEXT NOT NULL,
    dataset_id  TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    tags        TEXT[] NOT NULL DEFAULT '{}',
    publisher   TEXT NOT NULL DEFAULT '',
    updated_at  TIMESTAMPTZ,
    row_count   BIGINT NOT NULL DEFAULT 0,
    view_count  BIGINT NOT NULL DEFAULT 0,
    link        TEXT NOT NULL DEFAULT '',
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    first_seen  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_seen   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (host, dataset_id)
);
CREATE INDEX IF NOT EXISTS idx_datasets_host_active ON datasets(host, active, last_seen);

CREATE TABLE IF NOT EXISTS resume_state (
    pipeline          TEXT PRIMARY KEY,
    resume_token      TEXT NOT NULL,
    last_processed_at TIMESTAMPTZ,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
