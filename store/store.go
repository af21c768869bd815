package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/kgchat/kg"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("store: not found")

// Conversation represents a row in the conversations table.
type Conversation struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Ontology  kg.Ontology `json:"ontology"`
	EdgeCount int         `json:"edge_count"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
}

// Message represents a row in the messages table.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	IsError        bool   `json:"is_error,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// NodeRef identifies a row in the nodes table.
type NodeRef struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Name  string `json:"name"`
}

// NodeMatch is a node returned by a similarity search.
type NodeMatch struct {
	NodeRef
	Score float64 `json:"score"`
}

// RunLog represents a row in the run_log table.
type RunLog struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
	Route          string `json:"route"`
	Chunks         int    `json:"chunks"`
	Steps          int    `json:"steps"`
	EdgesAdded     int    `json:"edges_added"`
	Generation     string `json:"generation"`
	Error          string `json:"error,omitempty"`
	ElapsedMs      int64  `json:"elapsed_ms"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// Store wraps the SQLite database for all kgchat persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Create schema
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Conversation operations ---

// CreateConversation inserts a new conversation.
func (s *Store) CreateConversation(ctx context.Context, id, name string, ontology kg.Ontology) error {
	data, err := json.Marshal(ontology)
	if err != nil {
		return fmt.Errorf("encoding ontology: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, name, ontology) VALUES (?, ?, ?)",
		id, name, string(data))
	return err
}

const conversationColumns = `
	c.id, c.name, c.ontology, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM edges e WHERE e.conversation_id = c.id)`

func scanConversation(scan func(...any) error) (*Conversation, error) {
	var c Conversation
	var ontology string
	if err := scan(&c.ID, &c.Name, &ontology, &c.CreatedAt, &c.UpdatedAt, &c.EdgeCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ontology), &c.Ontology); err != nil {
		return nil, fmt.Errorf("decoding ontology of %s: %w", c.ID, err)
	}
	return &c, nil
}

// GetConversation returns a conversation by ID, or ErrNotFound.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+conversationColumns+" FROM conversations c WHERE c.id = ?", id)
	c, err := scanConversation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return c, err
}

// ListConversations returns all conversations, most recently updated first.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations c ORDER BY c.updated_at DESC, c.created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateOntology replaces the ontology of a conversation.
func (s *Store) UpdateOntology(ctx context.Context, id string, ontology kg.Ontology) error {
	data, err := json.Marshal(ontology)
	if err != nil {
		return fmt.Errorf("encoding ontology: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET ontology = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(data), id)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

// DeleteConversation removes a conversation and everything it owns.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		// vec0 tables do not take part in foreign keys.
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM vec_nodes WHERE node_id IN (SELECT id FROM nodes WHERE conversation_id = ?)", id); err != nil {
			return fmt.Errorf("deleting node embeddings: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
		if err != nil {
			return err
		}
		return expectRow(res, id)
	})
}

// --- Graph operations ---

// Edges returns the graph edges of a conversation in merge order.
func (s *Store) Edges(ctx context.Context, conversationID string) ([]kg.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node1_label, node1_name, node2_label, node2_name, relationship
		FROM edges WHERE conversation_id = ? ORDER BY position
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []kg.Edge
	for rows.Next() {
		var e kg.Edge
		if err := rows.Scan(&e.Node1.Label, &e.Node1.Name, &e.Node2.Label, &e.Node2.Name, &e.Relationship); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// AppendEdges appends edges after the existing ones and registers their
// nodes. It returns the nodes that did not exist before.
func (s *Store) AppendEdges(ctx context.Context, conversationID string, edges []kg.Edge) ([]NodeRef, error) {
	var created []NodeRef
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(position) + 1, 0) FROM edges WHERE conversation_id = ?",
			conversationID).Scan(&next); err != nil {
			return fmt.Errorf("reading edge position: %w", err)
		}
		var err error
		created, err = insertEdges(ctx, tx, conversationID, next, edges)
		if err != nil {
			return err
		}
		return touch(ctx, tx, conversationID)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReplaceEdges swaps the whole graph of a conversation. Nodes and their
// embeddings are rebuilt; the returned refs are all nodes of the new graph.
func (s *Store) ReplaceEdges(ctx context.Context, conversationID string, edges []kg.Edge) ([]NodeRef, error) {
	var created []NodeRef
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM vec_nodes WHERE node_id IN (SELECT id FROM nodes WHERE conversation_id = ?)",
			"DELETE FROM nodes WHERE conversation_id = ?",
			"DELETE FROM edges WHERE conversation_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, q, conversationID); err != nil {
				return fmt.Errorf("clearing graph: %w", err)
			}
		}
		var err error
		created, err = insertEdges(ctx, tx, conversationID, 0, edges)
		if err != nil {
			return err
		}
		return touch(ctx, tx, conversationID)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, conversationID string, start int, edges []kg.Edge) ([]NodeRef, error) {
	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (conversation_id, position, node1_label, node1_name, node2_label, node2_name, relationship)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, err
	}
	defer edgeStmt.Close()

	nodeStmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO nodes (conversation_id, label, name) VALUES (?, ?, ?)")
	if err != nil {
		return nil, err
	}
	defer nodeStmt.Close()

	var created []NodeRef
	for i, e := range edges {
		if _, err := edgeStmt.ExecContext(ctx, conversationID, start+i,
			e.Node1.Label, e.Node1.Name, e.Node2.Label, e.Node2.Name, e.Relationship); err != nil {
			return nil, fmt.Errorf("inserting edge %d: %w", i, err)
		}
		for _, n := range []kg.Node{e.Node1, e.Node2} {
			res, err := nodeStmt.ExecContext(ctx, conversationID, n.Label, n.Name)
			if err != nil {
				return nil, fmt.Errorf("inserting node %q: %w", n.Name, err)
			}
			if affected, _ := res.RowsAffected(); affected == 1 {
				id, err := res.LastInsertId()
				if err != nil {
					return nil, err
				}
				created = append(created, NodeRef{ID: id, Label: n.Label, Name: n.Name})
			}
		}
	}
	return created, nil
}

// Nodes returns the registered nodes of a conversation.
func (s *Store) Nodes(ctx context.Context, conversationID string) ([]NodeRef, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, label, name FROM nodes WHERE conversation_id = ? ORDER BY id", conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []NodeRef
	for rows.Next() {
		var n NodeRef
		if err := rows.Scan(&n.ID, &n.Label, &n.Name); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// --- Embedding operations ---

// InsertNodeEmbedding stores a vector embedding for a node.
func (s *Store) InsertNodeEmbedding(ctx context.Context, nodeID int64, embedding []float32) error {
	if len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding has %d dimensions, store expects %d", len(embedding), s.embeddingDim)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_nodes (node_id, embedding) VALUES (?, ?)",
		nodeID, serializeFloat32(embedding))
	return err
}

// SearchNodes returns the k nodes of a conversation whose embeddings are
// closest to the query by cosine distance.
func (s *Store) SearchNodes(ctx context.Context, conversationID string, queryEmbedding []float32, k int) ([]NodeMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.label, n.name, vec_distance_cosine(v.embedding, ?) AS distance
		FROM vec_nodes v
		JOIN nodes n ON n.id = v.node_id
		WHERE n.conversation_id = ?
		ORDER BY distance
		LIMIT ?
	`, serializeFloat32(queryEmbedding), conversationID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []NodeMatch
	for rows.Next() {
		var m NodeMatch
		var distance float64
		if err := rows.Scan(&m.ID, &m.Label, &m.Name, &distance); err != nil {
			return nil, err
		}
		m.Score = 1.0 - distance
		results = append(results, m)
	}
	return results, rows.Err()
}

// MatchNodeNames returns nodes whose name contains the query or is contained
// in it, case-insensitively, shortest names first. Scores are 1.
func (s *Store) MatchNodeNames(ctx context.Context, conversationID, query string, k int) ([]NodeMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, name FROM nodes
		WHERE conversation_id = ?
		  AND (instr(lower(name), lower(?)) > 0 OR instr(lower(?), lower(name)) > 0)
		ORDER BY length(name), id
		LIMIT ?
	`, conversationID, query, query, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []NodeMatch
	for rows.Next() {
		m := NodeMatch{Score: 1}
		if err := rows.Scan(&m.ID, &m.Label, &m.Name); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// --- Messages ---

// AddMessage appends a message to a conversation's history.
func (s *Store) AddMessage(ctx context.Context, m Message) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, role, content, is_error) VALUES (?, ?, ?, ?)",
		m.ConversationID, m.Role, m.Content, m.IsError)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Messages returns the history of a conversation, oldest first.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, is_error, created_at
		FROM messages WHERE conversation_id = ? ORDER BY id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.IsError, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// --- Run log ---

// LogRun records one agent run.
func (s *Store) LogRun(ctx context.Context, r RunLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_log (conversation_id, query, route, chunks, steps, edges_added, generation, error, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ConversationID, r.Query, r.Route, r.Chunks, r.Steps, r.EdgesAdded, r.Generation, r.Error, r.ElapsedMs)
	return err
}

// RunLogs returns the latest runs of a conversation, newest first.
func (s *Store) RunLogs(ctx context.Context, conversationID string, limit int) ([]RunLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, query, COALESCE(route, ''), chunks, steps, edges_added,
			COALESCE(generation, ''), COALESCE(error, ''), elapsed_ms, created_at
		FROM run_log WHERE conversation_id = ? ORDER BY id DESC LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []RunLog
	for rows.Next() {
		var r RunLog
		if err := rows.Scan(&r.ConversationID, &r.Query, &r.Route, &r.Chunks, &r.Steps, &r.EdgesAdded,
			&r.Generation, &r.Error, &r.ElapsedMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, r)
	}
	return logs, rows.Err()
}

// DBStats holds counts of key database objects.
type DBStats struct {
	Conversations int `json:"conversations"`
	Edges         int `json:"edges"`
	Nodes         int `json:"nodes"`
	Embeddings    int `json:"embeddings"`
	Messages      int `json:"messages"`
	Runs          int `json:"runs"`
}

// DBStats returns counts of conversations, edges, nodes, embeddings, messages and runs.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM conversations", &stats.Conversations},
		{"SELECT COUNT(*) FROM edges", &stats.Edges},
		{"SELECT COUNT(*) FROM nodes", &stats.Nodes},
		{"SELECT COUNT(*) FROM vec_nodes", &stats.Embeddings},
		{"SELECT COUNT(*) FROM messages", &stats.Messages},
		{"SELECT COUNT(*) FROM run_log", &stats.Runs},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func touch(ctx context.Context, tx *sql.Tx, conversationID string) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", conversationID)
	if err != nil {
		return err
	}
	return expectRow(res, conversationID)
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
