// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	// Database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/humanizer-ai/aui/pkg/auierr"
)

// SQLStore implements Store over database/sql.
// Supports PostgreSQL, MySQL, and SQLite.
//
// Entities are stored as JSON documents beside the columns the queries
// filter on. Embeddings are JSON float arrays; similarity search scans the
// embedded rows and ranks by cosine in process.
type SQLStore struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite"
}

const createStoreTablesSQL = `
CREATE TABLE IF NOT EXISTS nodes (
    id VARCHAR(255) PRIMARY KEY,
    text_content TEXT NOT NULL,
    source_type VARCHAR(255),
    author_role VARCHAR(64),
    source_created_at TIMESTAMP NULL,
    word_count INTEGER NOT NULL,
    hierarchy_level INTEGER NOT NULL DEFAULT 0,
    parent_id VARCHAR(255),
    embedding TEXT,
    embedding_model VARCHAR(255),
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_embedding_model ON nodes(embedding_model);
CREATE INDEX IF NOT EXISTS idx_nodes_source_type ON nodes(source_type);

CREATE TABLE IF NOT EXISTS documents (
    id VARCHAR(255) NOT NULL,
    kind VARCHAR(32) NOT NULL,
    owner_id VARCHAR(255),
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, kind)
);

CREATE INDEX IF NOT EXISTS idx_documents_kind_owner ON documents(kind, owner_id);

CREATE TABLE IF NOT EXISTS cost_entries (
    id VARCHAR(255) PRIMARY KEY,
    ts TIMESTAMP NOT NULL,
    user_id VARCHAR(255),
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cost_entries_ts ON cost_entries(ts);

CREATE TABLE IF NOT EXISTS usage_buckets (
    user_id VARCHAR(255) NOT NULL,
    period VARCHAR(16) NOT NULL,
    payload TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, period)
);

CREATE TABLE IF NOT EXISTS session_snapshots (
    id VARCHAR(255) PRIMARY KEY,
    user_id VARCHAR(255),
    name VARCHAR(255),
    payload TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// document kinds for the shared documents table.
const (
	kindBook     = "book"
	kindCluster  = "cluster"
	kindArtifact = "artifact"
	kindPersona  = "persona"
	kindStyle    = "style"
)

// NewSQLStore creates a SQL-backed store and ensures the schema exists.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, auierr.New(auierr.InvalidArgs, "database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, auierr.New(auierr.InvalidArgs, "unsupported dialect %q", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if _, err := db.Exec(createStoreTablesSQL); err != nil {
		return nil, auierr.Wrap(auierr.StoreFailure, err, "failed to create schema")
	}
	return s, nil
}

// rebind rewrites ? placeholders for the postgres dialect.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

func (s *SQLStore) AddNode(ctx context.Context, node *Node) error {
	var embJSON any
	if node.Embedded() {
		raw, err := json.Marshal(node.Embedding)
		if err != nil {
			return auierr.Wrap(auierr.StoreFailure, err, "failed to encode embedding")
		}
		embJSON = string(raw)
	}
	var sourceCreated any
	if !node.SourceCreatedAt.IsZero() {
		sourceCreated = node.SourceCreatedAt
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now()
	}

	query := s.rebind(`INSERT INTO nodes
	    (id, text_content, source_type, author_role, source_created_at, word_count, hierarchy_level, parent_id, embedding, embedding_model, created_at)
	    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		node.ID, node.Text, node.SourceType, node.AuthorRole, sourceCreated,
		node.WordCount, node.HierarchyLevel, node.ParentID, embJSON, node.EmbeddingModel, node.CreatedAt)
	if err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to insert node %s", node.ID)
	}
	return nil
}

func (s *SQLStore) scanNode(row interface{ Scan(...any) error }) (*Node, error) {
	var node Node
	var sourceCreated sql.NullTime
	var embJSON, sourceType, authorRole, parentID, embeddingModel sql.NullString
	err := row.Scan(&node.ID, &node.Text, &sourceType, &authorRole, &sourceCreated,
		&node.WordCount, &node.HierarchyLevel, &parentID, &embJSON, &embeddingModel, &node.CreatedAt)
	if err != nil {
		return nil, err
	}
	node.SourceType = sourceType.String
	node.AuthorRole = authorRole.String
	node.ParentID = parentID.String
	node.EmbeddingModel = embeddingModel.String
	if sourceCreated.Valid {
		node.SourceCreatedAt = sourceCreated.Time
	}
	if embJSON.Valid && embJSON.String != "" {
		if err := json.Unmarshal([]byte(embJSON.String), &node.Embedding); err != nil {
			return nil, err
		}
	}
	return &node, nil
}

const nodeColumns = `id, text_content, source_type, author_role, source_created_at, word_count, hierarchy_level, parent_id, embedding, embedding_model, created_at`

func (s *SQLStore) GetNode(ctx context.Context, id string) (*Node, error) {
	query := s.rebind(`SELECT ` + nodeColumns + ` FROM nodes WHERE id = ?`)
	node, err := s.scanNode(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, auierr.New(auierr.NotFound, "node %q not found", id)
	}
	if err != nil {
		return nil, auierr.Wrap(auierr.StoreFailure, err, "failed to load node %s", id)
	}
	return node, nil
}

func (s *SQLStore) GetNodes(ctx context.Context, ids []string) ([]*Node, error) {
	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		node, err := s.GetNode(ctx, id)
		if auierr.IsKind(err, auierr.NotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (s *SQLStore) CountNodes(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count); err != nil {
		return 0, auierr.Wrap(auierr.StoreFailure, err, "failed to count nodes")
	}
	return count, nil
}

func (s *SQLStore) queryNodes(ctx context.Context, query string, args ...any) ([]*Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, auierr.Wrap(auierr.StoreFailure, err, "node query failed")
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		node, err := s.scanNode(rows)
		if err != nil {
			return nil, auierr.Wrap(auierr.StoreFailure, err, "failed to scan node")
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func (s *SQLStore) GetNodesNeedingEmbeddings(ctx context.Context, limit int) ([]*Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE embedding IS NULL ORDER BY created_at`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryNodes(ctx, query)
}

func (s *SQLStore) GetRandomEmbeddedNodeIDs(ctx context.Context, n int) ([]string, error) {
	random := "RANDOM()"
	if s.dialect == "mysql" {
		random = "RAND()"
	}
	query := fmt.Sprintf(`SELECT id FROM nodes WHERE embedding IS NOT NULL ORDER BY %s`, random)
	if n > 0 {
		query += fmt.Sprintf(" LIMIT %d", n)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, auierr.Wrap(auierr.StoreFailure, err, "failed to sample embedded nodes")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, auierr.Wrap(auierr.StoreFailure, err, "failed to scan node id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) StoreEmbedding(ctx context.Context, nodeID string, embedding []float32, model string) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to encode embedding")
	}
	query := s.rebind(`UPDATE nodes SET embedding = ?, embedding_model = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, string(raw), model, nodeID)
	if err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to store embedding for %s", nodeID)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return auierr.New(auierr.NotFound, "node %q not found", nodeID)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func (s *SQLStore) SearchByEmbedding(ctx context.Context, embedding []float32, opts SearchOptions) ([]Match, error) {
	nodes, err := s.queryNodes(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(nodes))
	for _, node := range nodes {
		sim := cosineSimilarity(embedding, node.Embedding)
		if sim < opts.Threshold {
			continue
		}
		matches = append(matches, Match{NodeID: node.ID, Similarity: sim})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

// saveDocument upserts into the shared documents table.
func (s *SQLStore) saveDocument(ctx context.Context, id, kind, ownerID string, payload any, createdAt time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to encode %s %s", kind, id)
	}

	var query string
	switch s.dialect {
	case "mysql":
		query = `INSERT INTO documents (id, kind, owner_id, payload, created_at) VALUES (?, ?, ?, ?, ?)
		    ON DUPLICATE KEY UPDATE owner_id = VALUES(owner_id), payload = VALUES(payload)`
	default:
		query = s.rebind(`INSERT INTO documents (id, kind, owner_id, payload, created_at) VALUES (?, ?, ?, ?, ?)
		    ON CONFLICT (id, kind) DO UPDATE SET owner_id = excluded.owner_id, payload = excluded.payload`)
	}
	if _, err := s.db.ExecContext(ctx, query, id, kind, ownerID, string(raw), createdAt); err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to save %s %s", kind, id)
	}
	return nil
}

func (s *SQLStore) getDocument(ctx context.Context, id, kind string, out any) error {
	query := s.rebind(`SELECT payload FROM documents WHERE id = ? AND kind = ?`)
	var payload string
	err := s.db.QueryRowContext(ctx, query, id, kind).Scan(&payload)
	if err == sql.ErrNoRows {
		return auierr.New(auierr.NotFound, "%s %q not found", kind, id)
	}
	if err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to load %s %s", kind, id)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to decode %s %s", kind, id)
	}
	return nil
}

func (s *SQLStore) listDocuments(ctx context.Context, kind, ownerID string, each func(payload []byte) error) error {
	query := `SELECT payload FROM documents WHERE kind = ?`
	args := []any{kind}
	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to list %s documents", kind)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return auierr.Wrap(auierr.StoreFailure, err, "failed to scan %s document", kind)
		}
		if err := each([]byte(payload)); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLStore) SaveBook(ctx context.Context, book *Book) error {
	return s.saveDocument(ctx, book.ID, kindBook, book.UserID, book, book.CreatedAt)
}

func (s *SQLStore) GetBook(ctx context.Context, id string) (*Book, error) {
	var book Book
	if err := s.getDocument(ctx, id, kindBook, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (s *SQLStore) ListBooks(ctx context.Context, userID string) ([]*Book, error) {
	var books []*Book
	err := s.listDocuments(ctx, kindBook, userID, func(payload []byte) error {
		var book Book
		if err := json.Unmarshal(payload, &book); err != nil {
			return auierr.Wrap(auierr.StoreFailure, err, "failed to decode book")
		}
		books = append(books, &book)
		return nil
	})
	return books, err
}

func (s *SQLStore) SaveArtifact(ctx context.Context, artifact *Artifact) error {
	return s.saveDocument(ctx, artifact.ID, kindArtifact, artifact.BookID, artifact, artifact.CreatedAt)
}

func (s *SQLStore) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	var artifact Artifact
	if err := s.getDocument(ctx, id, kindArtifact, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

func (s *SQLStore) ListArtifacts(ctx context.Context, bookID string) ([]*Artifact, error) {
	var artifacts []*Artifact
	err := s.listDocuments(ctx, kindArtifact, bookID, func(payload []byte) error {
		var artifact Artifact
		if err := json.Unmarshal(payload, &artifact); err != nil {
			return auierr.Wrap(auierr.StoreFailure, err, "failed to decode artifact")
		}
		artifacts = append(artifacts, &artifact)
		return nil
	})
	return artifacts, err
}

func (s *SQLStore) SaveCluster(ctx context.Context, cluster *Cluster) error {
	return s.saveDocument(ctx, cluster.ID, kindCluster, "", cluster, cluster.CreatedAt)
}

func (s *SQLStore) GetCluster(ctx context.Context, id string) (*Cluster, error) {
	var cluster Cluster
	if err := s.getDocument(ctx, id, kindCluster, &cluster); err != nil {
		return nil, err
	}
	return &cluster, nil
}

func (s *SQLStore) ListClusters(ctx context.Context) ([]*Cluster, error) {
	var clusters []*Cluster
	err := s.listDocuments(ctx, kindCluster, "", func(payload []byte) error {
		var cluster Cluster
		if err := json.Unmarshal(payload, &cluster); err != nil {
			return auierr.Wrap(auierr.StoreFailure, err, "failed to decode cluster")
		}
		clusters = append(clusters, &cluster)
		return nil
	})
	return clusters, err
}

func (s *SQLStore) SavePersona(ctx context.Context, persona *Persona) error {
	if persona.IsDefault {
		// Only one default per user.
		personas, err := s.ListPersonas(ctx, persona.UserID)
		if err != nil {
			return err
		}
		for _, p := range personas {
			if p.IsDefault && p.ID != persona.ID {
				p.IsDefault = false
				if err := s.saveDocument(ctx, p.ID, kindPersona, p.UserID, p, p.CreatedAt); err != nil {
					return err
				}
			}
		}
	}
	return s.saveDocument(ctx, persona.ID, kindPersona, persona.UserID, persona, persona.CreatedAt)
}

func (s *SQLStore) GetPersona(ctx context.Context, id string) (*Persona, error) {
	var persona Persona
	if err := s.getDocument(ctx, id, kindPersona, &persona); err != nil {
		return nil, err
	}
	return &persona, nil
}

func (s *SQLStore) GetDefaultPersona(ctx context.Context, userID string) (*Persona, error) {
	personas, err := s.ListPersonas(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, persona := range personas {
		if persona.IsDefault {
			return persona, nil
		}
	}
	return nil, auierr.New(auierr.NotFound, "no default persona for user %q", userID)
}

func (s *SQLStore) ListPersonas(ctx context.Context, userID string) ([]*Persona, error) {
	var personas []*Persona
	err := s.listDocuments(ctx, kindPersona, userID, func(payload []byte) error {
		var persona Persona
		if err := json.Unmarshal(payload, &persona); err != nil {
			return auierr.Wrap(auierr.StoreFailure, err, "failed to decode persona")
		}
		personas = append(personas, &persona)
		return nil
	})
	return personas, err
}

func (s *SQLStore) SaveStyle(ctx context.Context, style *StyleProfile) error {
	return s.saveDocument(ctx, style.ID, kindStyle, style.PersonaID, style, style.CreatedAt)
}

func (s *SQLStore) ListStyles(ctx context.Context, personaID string) ([]*StyleProfile, error) {
	var styles []*StyleProfile
	err := s.listDocuments(ctx, kindStyle, personaID, func(payload []byte) error {
		var style StyleProfile
		if err := json.Unmarshal(payload, &style); err != nil {
			return auierr.Wrap(auierr.StoreFailure, err, "failed to decode style")
		}
		styles = append(styles, &style)
		return nil
	})
	return styles, err
}

func (s *SQLStore) AppendCostEntry(ctx context.Context, entry *CostEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to encode cost entry")
	}
	query := s.rebind(`INSERT INTO cost_entries (id, ts, user_id, payload) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, entry.ID, entry.Timestamp, entry.UserID, string(raw)); err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to append cost entry")
	}
	return nil
}

func (s *SQLStore) queryCostEntries(ctx context.Context, query string, args ...any) ([]*CostEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, auierr.Wrap(auierr.StoreFailure, err, "cost query failed")
	}
	defer rows.Close()

	var entries []*CostEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, auierr.Wrap(auierr.StoreFailure, err, "failed to scan cost entry")
		}
		var entry CostEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, auierr.Wrap(auierr.StoreFailure, err, "failed to decode cost entry")
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (s *SQLStore) CostEntriesSince(ctx context.Context, since time.Time) ([]*CostEntry, error) {
	return s.queryCostEntries(ctx, s.rebind(`SELECT payload FROM cost_entries WHERE ts >= ? ORDER BY ts`), since)
}

func (s *SQLStore) CostEntriesRange(ctx context.Context, from, to time.Time) ([]*CostEntry, error) {
	return s.queryCostEntries(ctx, s.rebind(`SELECT payload FROM cost_entries WHERE ts >= ? AND ts < ? ORDER BY ts`), from, to)
}

func (s *SQLStore) PruneCostEntries(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM cost_entries WHERE ts < ?`), olderThan)
	if err != nil {
		return 0, auierr.Wrap(auierr.StoreFailure, err, "failed to prune cost entries")
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (s *SQLStore) SaveUsage(ctx context.Context, usage *Usage) error {
	raw, err := json.Marshal(usage)
	if err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to encode usage")
	}

	var query string
	switch s.dialect {
	case "mysql":
		query = `INSERT INTO usage_buckets (user_id, period, payload, updated_at) VALUES (?, ?, ?, ?)
		    ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)`
	default:
		query = s.rebind(`INSERT INTO usage_buckets (user_id, period, payload, updated_at) VALUES (?, ?, ?, ?)
		    ON CONFLICT (user_id, period) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)
	}
	if _, err := s.db.ExecContext(ctx, query, usage.UserID, usage.Period, string(raw), time.Now()); err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to save usage")
	}
	return nil
}

func (s *SQLStore) GetUsage(ctx context.Context, userID, period string) (*Usage, error) {
	var payload string
	query := s.rebind(`SELECT payload FROM usage_buckets WHERE user_id = ? AND period = ?`)
	err := s.db.QueryRowContext(ctx, query, userID, period).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, auierr.New(auierr.NotFound, "no usage for user %q period %q", userID, period)
	}
	if err != nil {
		return nil, auierr.Wrap(auierr.StoreFailure, err, "failed to load usage")
	}
	var usage Usage
	if err := json.Unmarshal([]byte(payload), &usage); err != nil {
		return nil, auierr.Wrap(auierr.StoreFailure, err, "failed to decode usage")
	}
	return &usage, nil
}

func (s *SQLStore) SaveSessionSnapshot(ctx context.Context, snapshot *SessionSnapshot) error {
	var query string
	switch s.dialect {
	case "mysql":
		query = `INSERT INTO session_snapshots (id, user_id, name, payload, updated_at) VALUES (?, ?, ?, ?, ?)
		    ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)`
	default:
		query = s.rebind(`INSERT INTO session_snapshots (id, user_id, name, payload, updated_at) VALUES (?, ?, ?, ?, ?)
		    ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)
	}
	_, err := s.db.ExecContext(ctx, query,
		snapshot.ID, snapshot.UserID, snapshot.Name, string(snapshot.Payload), snapshot.UpdatedAt)
	if err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to save session snapshot")
	}
	return nil
}

func (s *SQLStore) GetSessionSnapshot(ctx context.Context, id string) (*SessionSnapshot, error) {
	var snapshot SessionSnapshot
	var payload string
	query := s.rebind(`SELECT id, user_id, name, payload, updated_at FROM session_snapshots WHERE id = ?`)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&snapshot.ID, &snapshot.UserID, &snapshot.Name, &payload, &snapshot.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, auierr.New(auierr.NotFound, "session snapshot %q not found", id)
	}
	if err != nil {
		return nil, auierr.Wrap(auierr.StoreFailure, err, "failed to load session snapshot")
	}
	snapshot.Payload = []byte(payload)
	return &snapshot, nil
}

func (s *SQLStore) DeleteSessionSnapshot(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM session_snapshots WHERE id = ?`), id); err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to delete session snapshot")
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLStore)(nil)
