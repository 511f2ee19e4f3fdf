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
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/vector"
)

// Memory is the in-memory Store. Vectors are held in a chromem-backed index;
// everything else lives in maps guarded by one RWMutex.
type Memory struct {
	mu        sync.RWMutex
	nodes     map[string]*Node
	nodeOrder []string
	books     map[string]*Book
	clusters  map[string]*Cluster
	artifacts map[string]*Artifact
	personas  map[string]*Persona
	styles    map[string][]*StyleProfile
	cost      []*CostEntry
	usage     map[string]*Usage
	snapshots map[string]*SessionSnapshot
	index     *vector.Index
}

// NewMemory creates an empty in-memory store.
func NewMemory() (*Memory, error) {
	index, err := vector.NewIndex("nodes", "")
	if err != nil {
		return nil, auierr.Wrap(auierr.StoreFailure, err, "failed to create vector index")
	}
	return &Memory{
		nodes:     make(map[string]*Node),
		books:     make(map[string]*Book),
		clusters:  make(map[string]*Cluster),
		artifacts: make(map[string]*Artifact),
		personas:  make(map[string]*Persona),
		styles:    make(map[string][]*StyleProfile),
		usage:     make(map[string]*Usage),
		snapshots: make(map[string]*SessionSnapshot),
		index:     index,
	}, nil
}

func (m *Memory) AddNode(ctx context.Context, node *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.nodes[node.ID]; !exists {
		m.nodeOrder = append(m.nodeOrder, node.ID)
	}
	m.nodes[node.ID] = node
	if node.Embedded() {
		if err := m.index.Add(ctx, node.ID, node.Embedding); err != nil {
			return auierr.Wrap(auierr.StoreFailure, err, "failed to index node %s", node.ID)
		}
	}
	return nil
}

func (m *Memory) GetNode(ctx context.Context, id string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[id]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "node %q not found", id)
	}
	return node, nil
}

func (m *Memory) GetNodes(ctx context.Context, ids []string) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if node, ok := m.nodes[id]; ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

func (m *Memory) CountNodes(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes), nil
}

func (m *Memory) GetNodesNeedingEmbeddings(ctx context.Context, limit int) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var nodes []*Node
	for _, id := range m.nodeOrder {
		node := m.nodes[id]
		if node.Embedded() {
			continue
		}
		nodes = append(nodes, node)
		if limit > 0 && len(nodes) >= limit {
			break
		}
	}
	return nodes, nil
}

func (m *Memory) GetRandomEmbeddedNodeIDs(ctx context.Context, n int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var embedded []string
	for _, id := range m.nodeOrder {
		if m.nodes[id].Embedded() {
			embedded = append(embedded, id)
		}
	}
	rand.Shuffle(len(embedded), func(i, j int) {
		embedded[i], embedded[j] = embedded[j], embedded[i]
	})
	if n > 0 && n < len(embedded) {
		embedded = embedded[:n]
	}
	return embedded, nil
}

func (m *Memory) StoreEmbedding(ctx context.Context, nodeID string, embedding []float32, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[nodeID]
	if !ok {
		return auierr.New(auierr.NotFound, "node %q not found", nodeID)
	}
	node.Embedding = embedding
	node.EmbeddingModel = model
	if err := m.index.Add(ctx, nodeID, embedding); err != nil {
		return auierr.Wrap(auierr.StoreFailure, err, "failed to index node %s", nodeID)
	}
	return nil
}

func (m *Memory) SearchByEmbedding(ctx context.Context, embedding []float32, opts SearchOptions) ([]Match, error) {
	matches, err := m.index.Search(ctx, embedding, opts.Limit, opts.Threshold)
	if err != nil {
		return nil, auierr.Wrap(auierr.StoreFailure, err, "embedding search failed")
	}
	out := make([]Match, 0, len(matches))
	for _, match := range matches {
		out = append(out, Match{NodeID: match.ID, Similarity: match.Similarity})
	}
	return out, nil
}

func (m *Memory) SaveBook(ctx context.Context, book *Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[book.ID] = book
	return nil
}

func (m *Memory) GetBook(ctx context.Context, id string) (*Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	book, ok := m.books[id]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "book %q not found", id)
	}
	return book, nil
}

func (m *Memory) ListBooks(ctx context.Context, userID string) ([]*Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var books []*Book
	for _, book := range m.books {
		if userID == "" || book.UserID == userID {
			books = append(books, book)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].CreatedAt.After(books[j].CreatedAt) })
	return books, nil
}

func (m *Memory) SaveArtifact(ctx context.Context, artifact *Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[artifact.ID] = artifact
	return nil
}

func (m *Memory) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	artifact, ok := m.artifacts[id]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "artifact %q not found", id)
	}
	return artifact, nil
}

func (m *Memory) ListArtifacts(ctx context.Context, bookID string) ([]*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var artifacts []*Artifact
	for _, artifact := range m.artifacts {
		if bookID == "" || artifact.BookID == bookID {
			artifacts = append(artifacts, artifact)
		}
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt) })
	return artifacts, nil
}

func (m *Memory) SaveCluster(ctx context.Context, cluster *Cluster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusters[cluster.ID] = cluster
	return nil
}

func (m *Memory) GetCluster(ctx context.Context, id string) (*Cluster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cluster, ok := m.clusters[id]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "cluster %q not found", id)
	}
	return cluster, nil
}

func (m *Memory) ListClusters(ctx context.Context) ([]*Cluster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clusters := make([]*Cluster, 0, len(m.clusters))
	for _, cluster := range m.clusters {
		clusters = append(clusters, cluster)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].CreatedAt.After(clusters[j].CreatedAt) })
	return clusters, nil
}

func (m *Memory) SavePersona(ctx context.Context, persona *Persona) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if persona.IsDefault {
		for _, p := range m.personas {
			if p.UserID == persona.UserID && p.ID != persona.ID {
				p.IsDefault = false
			}
		}
	}
	m.personas[persona.ID] = persona
	return nil
}

func (m *Memory) GetPersona(ctx context.Context, id string) (*Persona, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	persona, ok := m.personas[id]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "persona %q not found", id)
	}
	return persona, nil
}

func (m *Memory) GetDefaultPersona(ctx context.Context, userID string) (*Persona, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, persona := range m.personas {
		if persona.UserID == userID && persona.IsDefault {
			return persona, nil
		}
	}
	return nil, auierr.New(auierr.NotFound, "no default persona for user %q", userID)
}

func (m *Memory) ListPersonas(ctx context.Context, userID string) ([]*Persona, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var personas []*Persona
	for _, persona := range m.personas {
		if userID == "" || persona.UserID == userID {
			personas = append(personas, persona)
		}
	}
	sort.Slice(personas, func(i, j int) bool { return personas[i].CreatedAt.After(personas[j].CreatedAt) })
	return personas, nil
}

func (m *Memory) SaveStyle(ctx context.Context, style *StyleProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.styles[style.PersonaID] = append(m.styles[style.PersonaID], style)
	return nil
}

func (m *Memory) ListStyles(ctx context.Context, personaID string) ([]*StyleProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.styles[personaID], nil
}

func (m *Memory) AppendCostEntry(ctx context.Context, entry *CostEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cost = append(m.cost, entry)
	return nil
}

func (m *Memory) CostEntriesSince(ctx context.Context, since time.Time) ([]*CostEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*CostEntry
	for _, entry := range m.cost {
		if !entry.Timestamp.Before(since) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (m *Memory) CostEntriesRange(ctx context.Context, from, to time.Time) ([]*CostEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*CostEntry
	for _, entry := range m.cost {
		if !entry.Timestamp.Before(from) && entry.Timestamp.Before(to) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (m *Memory) PruneCostEntries(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.cost[:0]
	pruned := 0
	for _, entry := range m.cost {
		if entry.Timestamp.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, entry)
	}
	m.cost = kept
	return pruned, nil
}

func usageKey(userID, period string) string { return userID + "|" + period }

func (m *Memory) SaveUsage(ctx context.Context, usage *Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[usageKey(usage.UserID, usage.Period)] = usage
	return nil
}

func (m *Memory) GetUsage(ctx context.Context, userID, period string) (*Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	usage, ok := m.usage[usageKey(userID, period)]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "no usage for user %q period %q", userID, period)
	}
	return usage, nil
}

func (m *Memory) SaveSessionSnapshot(ctx context.Context, snapshot *SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.ID] = snapshot
	return nil
}

func (m *Memory) GetSessionSnapshot(ctx context.Context, id string) (*SessionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot, ok := m.snapshots[id]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "session snapshot %q not found", id)
	}
	return snapshot, nil
}

func (m *Memory) DeleteSessionSnapshot(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, id)
	return nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
