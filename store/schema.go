package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Conversations own an ontology, a graph and a message history
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    ontology JSON NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Graph edges, in merge order
CREATE TABLE IF NOT EXISTS edges (
    id INTEGER PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    node1_label TEXT NOT NULL,
    node1_name TEXT NOT NULL,
    node2_label TEXT NOT NULL,
    node2_name TEXT NOT NULL,
    relationship TEXT NOT NULL,
    UNIQUE(conversation_id, position)
);

-- Distinct (label, name) nodes per conversation, for embeddings
CREATE TABLE IF NOT EXISTS nodes (
    id INTEGER PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    label TEXT NOT NULL,
    name TEXT NOT NULL,
    UNIQUE(conversation_id, label, name)
);

-- Node name embeddings via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_nodes USING vec0(
    node_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Chat history
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    is_error INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Agent run audit log
CREATE TABLE IF NOT EXISTS run_log (
    id INTEGER PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    query TEXT NOT NULL,
    route TEXT,
    chunks INTEGER DEFAULT 0,
    steps INTEGER DEFAULT 0,
    edges_added INTEGER DEFAULT 0,
    generation TEXT,
    error TEXT,
    elapsed_ms INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_edges_conversation ON edges(conversation_id, position);
CREATE INDEX IF NOT EXISTS idx_nodes_conversation ON nodes(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
`, embeddingDim)
}
