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

// Package archive drives embedding and clustering over the stored corpus.
//
// The embedding driver batches nodes that still need vectors through the
// embedding adapter and persists the results; runs are idempotent, so nodes
// that already carry an embedding only ever count as skipped. The cluster
// discoverer grows cosine-similarity neighborhoods around sampled seeds.
package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/humanizer-ai/aui/pkg/embedder"
	"github.com/humanizer-ai/aui/pkg/store"
)

// EmbedOptions configures one embedAll run.
type EmbedOptions struct {
	// BatchSize bounds how many nodes go to the adapter per call.
	BatchSize int

	// MinWordCount drops nodes shorter than this many words.
	MinWordCount int

	// SourceTypes restricts to the given source types when non-empty.
	SourceTypes []string

	// AuthorRoles restricts to the given author roles when non-empty.
	AuthorRoles []string

	// Filter is an optional custom content filter.
	Filter func(*store.Node) bool

	// Progress receives per-batch progress callbacks.
	Progress func(Progress)
}

// SetDefaults applies the default batch size and word floor.
func (o *EmbedOptions) SetDefaults() {
	if o.BatchSize == 0 {
		o.BatchSize = 50
	}
	if o.MinWordCount == 0 {
		o.MinWordCount = 7
	}
}

// Progress is one progress callback payload.
type Progress struct {
	Phase                string `json:"phase"`
	Processed            int    `json:"processed"`
	Total                int    `json:"total"`
	CurrentBatch         int    `json:"current_batch"`
	TotalBatches         int    `json:"total_batches"`
	Skipped              int    `json:"skipped"`
	Failed               int    `json:"failed"`
	ElapsedMs            int64  `json:"elapsed_ms"`
	EstimatedRemainingMs int64  `json:"estimated_remaining_ms"`
}

// EmbedResult summarizes one embedAll run.
type EmbedResult struct {
	Embedded  int      `json:"embedded"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Total     int      `json:"total"`
	Errors    []string `json:"errors,omitempty"`
	Success   bool     `json:"success"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

// Driver runs embedding jobs.
type Driver struct {
	store    store.Store
	embedder embedder.Provider
}

// NewDriver creates a driver.
func NewDriver(st store.Store, emb embedder.Provider) *Driver {
	return &Driver{store: st, embedder: emb}
}

func matchesFilters(node *store.Node, opts EmbedOptions) bool {
	if node.WordCount < opts.MinWordCount {
		return false
	}
	if len(opts.SourceTypes) > 0 && !contains(opts.SourceTypes, node.SourceType) {
		return false
	}
	if len(opts.AuthorRoles) > 0 && !contains(opts.AuthorRoles, node.AuthorRole) {
		return false
	}
	if opts.Filter != nil && !opts.Filter(node) {
		return false
	}
	return true
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// EmbedAll embeds every node still missing a vector. Already-embedded and
// filtered nodes count as skipped; per-node failures are collected and the
// run continues. success is true iff nothing failed.
func (d *Driver) EmbedAll(ctx context.Context, opts EmbedOptions) (*EmbedResult, error) {
	opts.SetDefaults()
	started := time.Now()
	result := &EmbedResult{}

	total, err := d.store.CountNodes(ctx)
	if err != nil {
		return nil, err
	}
	result.Total = total

	candidates, err := d.store.GetNodesNeedingEmbeddings(ctx, 0)
	if err != nil {
		return nil, err
	}

	// Nodes that already carry embeddings are skipped up front.
	result.Skipped = total - len(candidates)

	var pending []*store.Node
	for _, node := range candidates {
		if !matchesFilters(node, opts) {
			result.Skipped++
			continue
		}
		pending = append(pending, node)
	}

	totalBatches := (len(pending) + opts.BatchSize - 1) / opts.BatchSize
	report := func(phase string, processed, batch int) {
		if opts.Progress == nil {
			return
		}
		elapsed := time.Since(started).Milliseconds()
		var remaining int64
		if processed > 0 {
			remaining = elapsed / int64(processed) * int64(len(pending)-processed)
		}
		opts.Progress(Progress{
			Phase:                phase,
			Processed:            processed,
			Total:                len(pending),
			CurrentBatch:         batch,
			TotalBatches:         totalBatches,
			Skipped:              result.Skipped,
			Failed:               result.Failed,
			ElapsedMs:            elapsed,
			EstimatedRemainingMs: remaining,
		})
	}

	report("scanning", 0, 0)

	processed := 0
	for batchIdx := 0; batchIdx < totalBatches; batchIdx++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		start := batchIdx * opts.BatchSize
		end := start + opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]embedder.NodeText, 0, len(batch))
		for _, node := range batch {
			texts = append(texts, embedder.NodeText{ID: node.ID, Text: node.Text})
		}

		embeddings, err := d.embedder.EmbedNodes(ctx, texts)
		if err != nil {
			// A batch-level failure fails every item in the batch.
			result.Failed += len(batch)
			result.Errors = append(result.Errors, err.Error())
			processed += len(batch)
			report("embedding", processed, batchIdx+1)
			continue
		}

		// Persist the batch concurrently; the store is thread-safe.
		var (
			group, groupCtx = errgroup.WithContext(ctx)
			model           = d.embedder.Model()
			mu              sync.Mutex
		)
		for _, emb := range embeddings {
			group.Go(func() error {
				err := d.store.StoreEmbedding(groupCtx, emb.NodeID, emb.Embedding, model)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed++
					result.Errors = append(result.Errors, err.Error())
				} else {
					result.Embedded++
				}
				return nil
			})
		}
		_ = group.Wait()

		processed += len(batch)
		report("embedding", processed, batchIdx+1)
	}

	result.Success = result.Failed == 0
	result.ElapsedMs = time.Since(started).Milliseconds()
	report("complete", processed, totalBatches)

	slog.Info("embedding run finished",
		"embedded", result.Embedded, "skipped", result.Skipped, "failed", result.Failed,
		"elapsed_ms", result.ElapsedMs)
	return result, nil
}

// EmbedBatch embeds an explicit list of node ids, honoring the same
// idempotency rule as EmbedAll.
func (d *Driver) EmbedBatch(ctx context.Context, nodeIDs []string, opts EmbedOptions) (*EmbedResult, error) {
	opts.SetDefaults()
	started := time.Now()
	result := &EmbedResult{Total: len(nodeIDs)}

	nodes, err := d.store.GetNodes(ctx, nodeIDs)
	if err != nil {
		return nil, err
	}

	texts := make([]embedder.NodeText, 0, len(nodes))
	for _, node := range nodes {
		if node.Embedded() || !matchesFilters(node, opts) {
			result.Skipped++
			continue
		}
		texts = append(texts, embedder.NodeText{ID: node.ID, Text: node.Text})
	}

	if len(texts) > 0 {
		embeddings, err := d.embedder.EmbedNodes(ctx, texts)
		if err != nil {
			result.Failed = len(texts)
			result.Errors = append(result.Errors, err.Error())
		} else {
			model := d.embedder.Model()
			for _, emb := range embeddings {
				if err := d.store.StoreEmbedding(ctx, emb.NodeID, emb.Embedding, model); err != nil {
					result.Failed++
					result.Errors = append(result.Errors, err.Error())
					continue
				}
				result.Embedded++
			}
		}
	}

	result.Success = result.Failed == 0
	result.ElapsedMs = time.Since(started).Milliseconds()
	return result, nil
}
