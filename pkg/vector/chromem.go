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

// Package vector provides an embedded cosine-similarity index backed by
// chromem-go. It is the vector engine behind the in-memory store's
// SearchByEmbedding; vectors live in RAM with optional file persistence.
package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
)

// Match is one search hit.
type Match struct {
	ID         string
	Similarity float32
}

// Index is a single-collection cosine index.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	mu         sync.RWMutex
	count      int
}

// NewIndex creates an in-memory index. persistPath enables gzip-compressed
// file persistence when non-empty.
func NewIndex(name, persistPath string) (*Index, error) {
	var db *chromem.DB
	var err error
	if persistPath != "" {
		db, err = chromem.NewPersistentDB(persistPath, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open persistent vector db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Embedding happens externally; the collection never embeds on its own.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("index only accepts precomputed embeddings")
	}

	collection, err := db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector collection: %w", err)
	}

	return &Index{db: db, collection: collection, count: collection.Count()}, nil
}

// Add stores (or replaces) a vector under the given id.
func (ix *Index) Add(ctx context.Context, id string, embedding []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	err := ix.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Embedding: embedding,
		Content:   id,
	})
	if err != nil {
		return fmt.Errorf("failed to add vector %s: %w", id, err)
	}
	ix.count = ix.collection.Count()
	return nil
}

// Search returns up to limit matches with similarity >= threshold,
// best first.
func (ix *Index) Search(ctx context.Context, embedding []float32, limit int, threshold float32) ([]Match, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.count == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > ix.count {
		limit = ix.count
	}

	results, err := ix.collection.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		matches = append(matches, Match{ID: r.ID, Similarity: r.Similarity})
	}
	return matches, nil
}

// Has reports whether an id is indexed.
func (ix *Index) Has(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	_, err := ix.collection.GetByID(context.Background(), id)
	return err == nil
}

// Count returns the number of indexed vectors.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count
}
