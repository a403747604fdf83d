package sqlite

// SchemaSQL defines the index database structure.
const SchemaSQL = `
-- Key/value stamp of the active generation and the embedder that produced it.
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT
);

-- Entries of every generation. Only the active generation survives a commit.
CREATE TABLE IF NOT EXISTS entries (
    generation TEXT NOT NULL,
    seq INTEGER NOT NULL,             -- dense position, 0..N-1
    id TEXT NOT NULL,
    document TEXT NOT NULL,
    embedding BLOB NOT NULL,          -- little-endian float64 array
    user_input TEXT NOT NULL,
    intent TEXT NOT NULL,
    style_tags TEXT NOT NULL DEFAULT '',
    json_output TEXT NOT NULL,
    PRIMARY KEY (generation, seq)
);
`

const (
	metaGeneration = "active_generation"
	metaEmbedder   = "embedder"
	metaDimension  = "embed_dimension"
	metaUpdatedAt  = "updated_at"
)
