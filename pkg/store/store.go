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

// Package store defines the persistence contract the service core consumes,
// plus in-memory and SQL implementations.
//
// The core treats the store as thread-safe and external: all references
// between persisted entities are by id. The in-memory implementation backs
// tests and zero-config deployments; the SQL implementation persists the same
// entities over sqlite, MySQL or PostgreSQL.
package store

import (
	"context"
	"time"
)

// Match is one embedding-search hit.
type Match struct {
	NodeID     string
	Similarity float32
}

// Store is the persistence contract.
type Store interface {
	// Nodes and embeddings.
	AddNode(ctx context.Context, node *Node) error
	GetNode(ctx context.Context, id string) (*Node, error)
	GetNodes(ctx context.Context, ids []string) ([]*Node, error)
	CountNodes(ctx context.Context) (int, error)
	GetNodesNeedingEmbeddings(ctx context.Context, limit int) ([]*Node, error)
	GetRandomEmbeddedNodeIDs(ctx context.Context, n int) ([]string, error)
	StoreEmbedding(ctx context.Context, nodeID string, embedding []float32, model string) error
	SearchByEmbedding(ctx context.Context, embedding []float32, opts SearchOptions) ([]Match, error)

	// Books and artifacts.
	SaveBook(ctx context.Context, book *Book) error
	GetBook(ctx context.Context, id string) (*Book, error)
	ListBooks(ctx context.Context, userID string) ([]*Book, error)
	SaveArtifact(ctx context.Context, artifact *Artifact) error
	GetArtifact(ctx context.Context, id string) (*Artifact, error)
	ListArtifacts(ctx context.Context, bookID string) ([]*Artifact, error)

	// Clusters.
	SaveCluster(ctx context.Context, cluster *Cluster) error
	GetCluster(ctx context.Context, id string) (*Cluster, error)
	ListClusters(ctx context.Context) ([]*Cluster, error)

	// Personas and styles.
	SavePersona(ctx context.Context, persona *Persona) error
	GetPersona(ctx context.Context, id string) (*Persona, error)
	GetDefaultPersona(ctx context.Context, userID string) (*Persona, error)
	ListPersonas(ctx context.Context, userID string) ([]*Persona, error)
	SaveStyle(ctx context.Context, style *StyleProfile) error
	ListStyles(ctx context.Context, personaID string) ([]*StyleProfile, error)

	// Cost entries and usage aggregates.
	AppendCostEntry(ctx context.Context, entry *CostEntry) error
	CostEntriesSince(ctx context.Context, since time.Time) ([]*CostEntry, error)
	CostEntriesRange(ctx context.Context, from, to time.Time) ([]*CostEntry, error)
	PruneCostEntries(ctx context.Context, olderThan time.Time) (int, error)
	SaveUsage(ctx context.Context, usage *Usage) error
	GetUsage(ctx context.Context, userID, period string) (*Usage, error)

	// Session snapshots for rehydration.
	SaveSessionSnapshot(ctx context.Context, snapshot *SessionSnapshot) error
	GetSessionSnapshot(ctx context.Context, id string) (*SessionSnapshot, error)
	DeleteSessionSnapshot(ctx context.Context, id string) error

	// Close releases the backing resources.
	Close() error
}
