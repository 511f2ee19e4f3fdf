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
	"sort"
	"strings"

	"github.com/humanizer-ai/aui/pkg/auierr"
)

// TierLimits bounds a tier. Zero means unlimited.
type TierLimits struct {
	TokensPerDay       int `json:"tokens_per_day,omitempty"`
	TokensPerMonth     int `json:"tokens_per_month,omitempty"`
	RequestsPerMinute  int `json:"requests_per_minute,omitempty"`
	MaxConcurrentTasks int `json:"max_concurrent_tasks,omitempty"`
}

// Tier is a named bundle of limits and allowed models.
type Tier struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Limits        TierLimits `json:"limits"`
	AllowedModels []string   `json:"allowed_models,omitempty"` // prefixes; empty allows all
	Features      []string   `json:"features,omitempty"`
	Priority      int        `json:"priority"`
	Public        bool       `json:"public"`
}

// DefaultTiers returns the built-in tier catalog.
func DefaultTiers() []*Tier {
	return []*Tier{
		{
			ID:   "free",
			Name: "Free",
			Limits: TierLimits{
				TokensPerDay:       10_000,
				TokensPerMonth:     100_000,
				RequestsPerMinute:  10,
				MaxConcurrentTasks: 1,
			},
			AllowedModels: []string{"ollama/", "local/", "llama", "mistral", "nomic-"},
			Features:      []string{"sessions", "buffers", "search"},
			Priority:      1,
			Public:        true,
		},
		{
			ID:   "pro",
			Name: "Pro",
			Limits: TierLimits{
				TokensPerDay:       250_000,
				TokensPerMonth:     5_000_000,
				RequestsPerMinute:  60,
				MaxConcurrentTasks: 5,
			},
			AllowedModels: []string{"ollama/", "local/", "llama", "mistral", "nomic-", "claude-sonnet", "claude-haiku", "gpt-4o-mini"},
			Features:      []string{"sessions", "buffers", "search", "agent", "books"},
			Priority:      5,
			Public:        true,
		},
		{
			ID:       "enterprise",
			Name:     "Enterprise",
			Limits:   TierLimits{},
			Features: []string{"sessions", "buffers", "search", "agent", "books", "clusters", "personas"},
			Priority: 10,
			Public:   false,
		},
	}
}

// ListTiers returns the tier catalog sorted by priority.
func (p *Plane) ListTiers() []*Tier {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tiers := make([]*Tier, 0, len(p.tiers))
	for _, tier := range p.tiers {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Priority < tiers[j].Priority })
	return tiers
}

// GetTier returns a tier by id.
func (p *Plane) GetTier(id string) (*Tier, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tier, ok := p.tiers[id]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "tier %q not found", id)
	}
	return tier, nil
}

// SetTier creates or replaces a tier.
func (p *Plane) SetTier(tier *Tier) error {
	if tier == nil || tier.ID == "" {
		return auierr.New(auierr.InvalidArgs, "tier id is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.tiers[tier.ID] = tier
	return nil
}

// DeleteTier removes a tier. The free tier is undeletable.
func (p *Plane) DeleteTier(id string) error {
	if id == "free" {
		return auierr.New(auierr.InvalidArgs, "the free tier cannot be deleted")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.tiers[id]; !ok {
		return auierr.New(auierr.NotFound, "tier %q not found", id)
	}
	delete(p.tiers, id)
	return nil
}

// SetUserTier assigns a tier to a user. Unknown tiers are rejected.
func (p *Plane) SetUserTier(userID, tierID string) error {
	if userID == "" {
		return auierr.New(auierr.InvalidArgs, "user id is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.tiers[tierID]; !ok {
		return auierr.New(auierr.NotFound, "tier %q not found", tierID)
	}
	p.userTiers[userID] = tierID
	return nil
}

// UserTier resolves the tier of a user, falling back to the default.
func (p *Plane) UserTier(userID string) *Tier {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tierID, ok := p.userTiers[userID]
	if !ok {
		tierID = p.cfg.DefaultTierID
	}
	if tier, ok := p.tiers[tierID]; ok {
		return tier
	}
	return p.tiers["free"]
}

// IsModelAllowed checks a tier's allowed model set. An empty set allows
// every model.
func IsModelAllowed(tier *Tier, model string) bool {
	if tier == nil || len(tier.AllowedModels) == 0 {
		return true
	}
	model = normalizeModel(model)
	for _, allowed := range tier.AllowedModels {
		if strings.HasPrefix(model, normalizeModel(allowed)) {
			return true
		}
	}
	return false
}

// IncActiveTasks registers a running task for the concurrency limit.
func (p *Plane) IncActiveTasks(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[userID]++
}

// DecActiveTasks releases a running task.
func (p *Plane) DecActiveTasks(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[userID] > 0 {
		p.active[userID]--
	}
}
