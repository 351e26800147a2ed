package store

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// CoreSchema contains the relational table definition and its plain
// indexes. The embedding lives in its own vec0 virtual table (see
// EnsureVectorIndex) keyed by the integer rowid of this table.
const CoreSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memories (
	rowid INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	headline TEXT NOT NULL,
	summary TEXT NOT NULL,
	content TEXT NOT NULL,
	category TEXT NOT NULL CHECK (
		category IN ('profile', 'preferences', 'entities', 'events', 'cases', 'patterns')
	),
	scope TEXT NOT NULL,
	importance REAL NOT NULL DEFAULT 0.5 CHECK (importance >= 0.0 AND importance <= 1.0),
	tags TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(scope);
CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);
`

// FTS5Schema contains the full-text index and its sync triggers. Like the
// teacher, this is a standalone (not external-content) FTS5 table so the
// sync triggers are simple INSERT/UPDATE/DELETE mirrors.
const FTS5Schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	id UNINDEXED,
	headline,
	summary,
	content,
	tags
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(id, headline, summary, content, tags)
	VALUES (new.id, new.headline, new.summary, new.content, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
	DELETE FROM memories_fts WHERE id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
	UPDATE memories_fts SET
		headline = new.headline,
		summary = new.summary,
		content = new.content,
		tags = new.tags
	WHERE id = old.id;
END;
`

// vecIndexSchemaFmt creates the ANN index. Unlike CoreSchema/FTS5Schema
// this is a format string: the embedding dimension is only known once the
// first embedding capability is configured, so it is created lazily by
// EnsureVectorIndex rather than unconditionally at initSchema time.
const vecIndexSchemaFmt = `CREATE VIRTUAL TABLE IF NOT EXISTS memory_vectors USING vec0(embedding float[%d])`
