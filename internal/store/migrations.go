package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS processed_messages (
	id          TEXT PRIMARY KEY,
	message_id  TEXT NOT NULL UNIQUE,
	outcome     TEXT NOT NULL,
	post_ref    TEXT NOT NULL DEFAULT '',
	recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_processed_messages_recorded_at
	ON processed_messages(recorded_at);

CREATE INDEX IF NOT EXISTS idx_processed_messages_outcome
	ON processed_messages(outcome);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
