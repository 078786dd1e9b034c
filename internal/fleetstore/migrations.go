package fleetstore

const schema = `
CREATE TABLE IF NOT EXISTS bots (
    name TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'offline',
    port INTEGER NOT NULL UNIQUE,
    specialty TEXT NOT NULL DEFAULT '',
    requests INTEGER NOT NULL DEFAULT 0,
    failures INTEGER NOT NULL DEFAULT 0,
    uptime TEXT NOT NULL DEFAULT '0.0%',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_bots_status ON bots(status);

CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    operation TEXT NOT NULL,
    target_address TEXT NOT NULL,
    target_port INTEGER NOT NULL,
    intensity INTEGER NOT NULL,
    phase TEXT NOT NULL,
    participants TEXT NOT NULL,
    outcomes TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_campaigns_started_at ON campaigns(started_at);
`
