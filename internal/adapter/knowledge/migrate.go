package knowledge

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			workspace  TEXT NOT NULL DEFAULT '',
			body       TEXT NOT NULL,
			source     TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_documents_workspace ON documents(workspace);

		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			title, body, content=documents, content_rowid=rowid
		);

		CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
			INSERT INTO documents_fts(rowid, title, body) VALUES (new.rowid, new.title, new.body);
		END;

		CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, title, body) VALUES ('delete', old.rowid, old.title, old.body);
		END;

		CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, title, body) VALUES ('delete', old.rowid, old.title, old.body);
			INSERT INTO documents_fts(rowid, title, body) VALUES (new.rowid, new.title, new.body);
		END;
	`
	_, err := db.Exec(schema)
	return err
}
