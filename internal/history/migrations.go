package history

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    schedule_id TEXT NOT NULL,
    schedule_name TEXT NOT NULL,
    attempt INTEGER NOT NULL DEFAULT 0,
    retry INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    exit_code INTEGER,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    duration_seconds REAL NOT NULL DEFAULT 0,
    log_file TEXT,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_schedule_id ON runs(schedule_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`
