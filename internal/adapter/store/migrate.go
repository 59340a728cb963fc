package store

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS agents (
			id            TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL,
			name          TEXT NOT NULL DEFAULT '',
			state         TEXT NOT NULL,
			ai_config     TEXT NOT NULL DEFAULT '{}',
			created_at    TEXT NOT NULL,
			modified      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id       TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			seq      INTEGER NOT NULL,
			role     TEXT NOT NULL,
			content  TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			modified TEXT NOT NULL,
			duration INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_messages_agent ON messages(agent_id, seq);
	`
	_, err := db.Exec(schema)
	return err
}
