package protocol

// SchemaDDL defines the SQLite schema for the hive runtime database.
// Tables: events, transitions, emergency_actions.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Short event history for display (hive logs, hive-dash). The event bus is
-- the delivery mechanism; this table is a convenience mirror, not a queue.
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    project_number INTEGER NOT NULL,
    issue_number INTEGER,
    data TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Agent state transitions recorded by the loop validator. May be cleared
-- wholesale by an operator action.
CREATE TABLE IF NOT EXISTS transitions (
    id INTEGER PRIMARY KEY,
    agent_id INTEGER NOT NULL,
    from_state TEXT NOT NULL,
    to_state TEXT NOT NULL,
    project_number INTEGER,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_agent ON transitions(agent_id, id);

-- Emergency action audit log, trimmed to the most recent 100 rows on
-- every write.
CREATE TABLE IF NOT EXISTS emergency_actions (
    id INTEGER PRIMARY KEY,
    action TEXT NOT NULL,
    user_id TEXT NOT NULL,
    details TEXT,
    result TEXT NOT NULL,
    created_at TEXT NOT NULL
);
`
