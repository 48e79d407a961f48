package db

const schemaSQL = `
-- ===========================================================================
-- COMMAND LOG (every SOAP action sent to a player)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS command_log (
  entry_id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  host TEXT NOT NULL,
  service TEXT NOT NULL,
  action TEXT NOT NULL,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  succeeded INTEGER NOT NULL DEFAULT 1,
  error TEXT
);

CREATE INDEX IF NOT EXISTS idx_command_log_started ON command_log(started_at);
CREATE INDEX IF NOT EXISTS idx_command_log_host ON command_log(host, started_at);
`
