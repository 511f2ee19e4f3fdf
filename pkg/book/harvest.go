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

package book

import (
	"context"
	"sort"
	"time"

	"github.com/humanizer-ai/aui/pkg/store"
)

// SearchFunc is the search adapter used by Harvest. Results come back best
// first with their relevance.
type SearchFunc func(ctx context.Context, query string, limit int) ([]Passage, error)

// HarvestOptions filters a passage harvest.
type HarvestOptions struct {
	Query               string
	Limit               int
	MinRelevance        float64
	DateRange           *store.DateRange
	ExcludeIDs          []string
	MaxFromSingleSource int
}

// Harvest queries the search adapter and filters the hits: excluded ids and
// out-of-range dates drop out, and per-source caps are enforced by bucketing
// before re-sorting by relevance.
func Harvest(ctx context.Context, search SearchFunc, opts HarvestOptions) ([]Passage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	hits, err := search(ctx, opts.Query, limit*2)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(opts.ExcludeIDs))
	for _, id := range opts.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	var filtered []Passage
	for _, hit := range hits {
		if hit.Relevance < opts.MinRelevance {
			continue
		}
		if _, skip := excluded[hit.Node.ID]; skip {
			continue
		}
		if opts.DateRange != nil && !inRange(hit.Node.SourceCreatedAt, opts.DateRange) {
			continue
		}
		filtered = append(filtered, hit)
	}

	if opts.MaxFromSingleSource > 0 {
		buckets := make(map[string][]Passage)
		for _, passage := range filtered {
			key := passage.Node.SourceType
			buckets[key] = append(buckets[key], passage)
		}
		filtered = filtered[:0]
		for _, bucket := range buckets {
			sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].Relevance > bucket[j].Relevance })
			if len(bucket) > opts.MaxFromSingleSource {
				bucket = bucket[:opts.MaxFromSingleSource]
			}
			filtered = append(filtered, bucket...)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Relevance > filtered[j].Relevance })
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func inRange(t time.Time, r *store.DateRange) bool {
	if t.IsZero() {
		return false
	}
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}
