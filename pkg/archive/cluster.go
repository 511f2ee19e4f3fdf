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

package archive

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/humanizer-ai/aui/pkg/store"
)

// DiscoverOptions configures cluster discovery.
type DiscoverOptions struct {
	SampleSize      int
	MaxClusters     int
	MinClusterSize  int
	MinSimilarity   float32
	MinWordCount    int
	SourceTypes     []string
	AuthorRoles     []string
	ExcludePatterns []string
}

// SetDefaults applies the default discovery parameters.
func (o *DiscoverOptions) SetDefaults() {
	if o.SampleSize == 0 {
		o.SampleSize = 500
	}
	if o.MaxClusters == 0 {
		o.MaxClusters = 10
	}
	if o.MinClusterSize == 0 {
		o.MinClusterSize = 5
	}
	if o.MinSimilarity == 0 {
		o.MinSimilarity = 0.7
	}
}

// maxSeeds bounds how many filtered nodes are tried as cluster seeds.
const maxSeeds = 100

// neighborLimit bounds the neighborhood query per seed.
const neighborLimit = 100

// DiscoverResult is the outcome of one discovery run.
type DiscoverResult struct {
	Clusters         []*store.Cluster `json:"clusters"`
	TotalPassages    int              `json:"total_passages"`
	AssignedPassages int              `json:"assigned_passages"`
	NoisePassages    int              `json:"noise_passages"`
}

// Discoverer grows similarity clusters over embedded nodes.
type Discoverer struct {
	store store.Store
}

// NewDiscoverer creates a discoverer.
func NewDiscoverer(st store.Store) *Discoverer {
	return &Discoverer{store: st}
}

// Discover samples embedded nodes, filters them, and grows a cluster around
// each unassigned seed whose neighborhood is large enough. Zero embedded
// nodes yield an empty result, not an error.
func (d *Discoverer) Discover(ctx context.Context, opts DiscoverOptions) (*DiscoverResult, error) {
	opts.SetDefaults()
	result := &DiscoverResult{Clusters: []*store.Cluster{}}

	sampleIDs, err := d.store.GetRandomEmbeddedNodeIDs(ctx, opts.SampleSize)
	if err != nil {
		return nil, err
	}
	if len(sampleIDs) == 0 {
		return result, nil
	}

	var excludeRes []*regexp.Regexp
	for _, pattern := range opts.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		excludeRes = append(excludeRes, re)
	}

	nodes, err := d.store.GetNodes(ctx, sampleIDs)
	if err != nil {
		return nil, err
	}

	var filtered []*store.Node
	for _, node := range nodes {
		if opts.MinWordCount > 0 && node.WordCount < opts.MinWordCount {
			continue
		}
		if len(opts.SourceTypes) > 0 && !contains(opts.SourceTypes, node.SourceType) {
			continue
		}
		if len(opts.AuthorRoles) > 0 && !contains(opts.AuthorRoles, node.AuthorRole) {
			continue
		}
		excluded := false
		for _, re := range excludeRes {
			if re.MatchString(node.Text) {
				excluded = true
				break
			}
		}
		if !excluded {
			filtered = append(filtered, node)
		}
	}
	result.TotalPassages = len(filtered)

	byID := make(map[string]*store.Node, len(filtered))
	for _, node := range filtered {
		byID[node.ID] = node
	}

	assigned := make(map[string]struct{})

	seeds := filtered
	if len(seeds) > maxSeeds {
		seeds = seeds[:maxSeeds]
	}

	for _, seed := range seeds {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(result.Clusters) >= opts.MaxClusters {
			break
		}
		if _, done := assigned[seed.ID]; done {
			continue
		}

		matches, err := d.store.SearchByEmbedding(ctx, seed.Embedding, store.SearchOptions{
			Limit:     neighborLimit,
			Threshold: opts.MinSimilarity,
		})
		if err != nil {
			return nil, err
		}

		var members []*store.Node
		var similaritySum float64
		members = append(members, seed)
		for _, match := range matches {
			if match.NodeID == seed.ID {
				continue
			}
			node, ok := byID[match.NodeID]
			if !ok {
				continue
			}
			if _, done := assigned[node.ID]; done {
				continue
			}
			members = append(members, node)
			similaritySum += float64(match.Similarity)
		}

		if len(members) < opts.MinClusterSize {
			continue
		}

		for _, member := range members {
			assigned[member.ID] = struct{}{}
		}
		result.Clusters = append(result.Clusters, buildCluster(members, similaritySum))
	}

	result.AssignedPassages = len(assigned)
	result.NoisePassages = result.TotalPassages - result.AssignedPassages
	return result, nil
}

// buildCluster computes the descriptive stats of a cluster.
func buildCluster(members []*store.Node, similaritySum float64) *store.Cluster {
	cluster := &store.Cluster{
		ID:                 uuid.NewString(),
		TotalPassages:      len(members),
		SourceDistribution: make(map[string]int),
		CreatedAt:          time.Now(),
	}

	neighbors := len(members) - 1
	if neighbors > 0 {
		cluster.Coherence = similaritySum / float64(neighbors)
	}

	var wordSum int
	var minDate, maxDate time.Time
	tokenCounts := make(map[string]int)

	for _, node := range members {
		cluster.Passages = append(cluster.Passages, node.ID)
		cluster.SourceDistribution[node.SourceType]++
		wordSum += node.WordCount

		if !node.SourceCreatedAt.IsZero() {
			if minDate.IsZero() || node.SourceCreatedAt.Before(minDate) {
				minDate = node.SourceCreatedAt
			}
			if maxDate.IsZero() || node.SourceCreatedAt.After(maxDate) {
				maxDate = node.SourceCreatedAt
			}
		}

		for _, token := range strings.Fields(strings.ToLower(node.Text)) {
			token = strings.Trim(token, ".,;:!?\"'()[]")
			if len(token) > 4 {
				tokenCounts[token]++
			}
		}
	}

	cluster.AvgWordCount = float64(wordSum) / float64(len(members))
	if !minDate.IsZero() {
		cluster.DateRange = &store.DateRange{From: minDate, To: maxDate}
	}

	cluster.Keywords = topKeywords(tokenCounts, 10)
	if len(cluster.Keywords) > 0 {
		cluster.Label = strings.Join(cluster.Keywords[:min(3, len(cluster.Keywords))], " / ")
	} else {
		cluster.Label = "cluster " + cluster.ID[:8]
	}
	cluster.Description = fmt.Sprintf("%d passages, coherence %.2f", len(members), cluster.Coherence)
	return cluster
}

// topKeywords returns the n most frequent tokens, ties broken
// alphabetically for stable output.
func topKeywords(counts map[string]int, n int) []string {
	type kv struct {
		token string
		count int
	}
	pairs := make([]kv, 0, len(counts))
	for token, count := range counts {
		pairs = append(pairs, kv{token, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].token < pairs[j].token
		}
		return pairs[i].count > pairs[j].count
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	keywords := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		keywords = append(keywords, pair.token)
	}
	return keywords
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
