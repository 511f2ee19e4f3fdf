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

package admin

import (
	"log/slog"
	"strings"
	"sync"
)

// ModelRate prices one model in cents per million tokens.
type ModelRate struct {
	InCentsPer1M  float64 `json:"in_cents_per_1m"`
	OutCentsPer1M float64 `json:"out_cents_per_1m"`
}

// RateCatalog maps model ids to rates. Local models are zero-rate by
// prefix; unknown models fall back to a default rate and are logged once so
// unpriced additions surface in tests.
type RateCatalog struct {
	mu            sync.RWMutex
	rates         map[string]ModelRate
	localPrefixes []string
	fallback      ModelRate
	warned        map[string]struct{}
}

// NewRateCatalog creates the built-in catalog.
func NewRateCatalog() *RateCatalog {
	return &RateCatalog{
		rates: map[string]ModelRate{
			"claude-sonnet": {InCentsPer1M: 300, OutCentsPer1M: 1500},
			"claude-haiku":  {InCentsPer1M: 80, OutCentsPer1M: 400},
			"gpt-4o":        {InCentsPer1M: 250, OutCentsPer1M: 1000},
			"gpt-4o-mini":   {InCentsPer1M: 15, OutCentsPer1M: 60},
		},
		localPrefixes: []string{"ollama/", "local/", "llama", "mistral", "nomic-"},
		fallback:      ModelRate{InCentsPer1M: 100, OutCentsPer1M: 300},
		warned:        make(map[string]struct{}),
	}
}

// IsLocal reports whether the model is a zero-rate local model.
func (c *RateCatalog) IsLocal(model string) bool {
	model = normalizeModel(model)
	for _, prefix := range c.localPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// Rate returns the rate for a model.
func (c *RateCatalog) Rate(model string) ModelRate {
	model = normalizeModel(model)
	if c.IsLocal(model) {
		return ModelRate{}
	}

	c.mu.RLock()
	rate, ok := c.rates[model]
	c.mu.RUnlock()
	if ok {
		return rate
	}

	c.mu.Lock()
	if _, already := c.warned[model]; !already {
		c.warned[model] = struct{}{}
		slog.Warn("no rate for model, using fallback", "model", model,
			"in_cents_per_1m", c.fallback.InCentsPer1M, "out_cents_per_1m", c.fallback.OutCentsPer1M)
	}
	c.mu.Unlock()
	return c.fallback
}

// SetRate adds or replaces a model rate.
func (c *RateCatalog) SetRate(model string, rate ModelRate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[normalizeModel(model)] = rate
}

// Cost computes the cost in cents for a token count pair.
func (c *RateCatalog) Cost(model string, inputTokens, outputTokens int) float64 {
	rate := c.Rate(model)
	return (float64(inputTokens)*rate.InCentsPer1M + float64(outputTokens)*rate.OutCentsPer1M) / 1_000_000
}

// Rates returns the rate catalog of the plane.
func (p *Plane) Rates() *RateCatalog { return p.rates }
