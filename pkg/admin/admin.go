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

// Package admin implements the service's admin plane: audited config KV,
// prompt templates, per-call cost recording, per-(user,period) usage
// aggregation, tier limits and limit checks.
//
// Config, usage and limit reads never fail; lookups of a missing prompt or
// tier return NotFound; mutations return typed errors. All admin tables are
// mutated only through the Plane. When a store is attached, cost entries and
// usage buckets are persisted through it as well; the in-memory aggregates
// stay authoritative for queries.
package admin

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/observability"
	"github.com/humanizer-ai/aui/pkg/store"
)

// Config configures the plane.
type Config struct {
	// EnableCostTracking gates all cost and usage writes.
	EnableCostTracking bool `yaml:"enable_cost_tracking"`

	// CostRetentionDays bounds how long entries are kept.
	CostRetentionDays int `yaml:"cost_retention_days,omitempty"`

	// DefaultTierID is assigned to users without an explicit tier.
	DefaultTierID string `yaml:"default_tier_id,omitempty"`
}

// SetDefaults applies the default retention and tier.
func (c *Config) SetDefaults() {
	if c.CostRetentionDays == 0 {
		c.CostRetentionDays = 90
	}
	if c.DefaultTierID == "" {
		c.DefaultTierID = "free"
	}
}

// AuditRecord is one config or prompt mutation.
type AuditRecord struct {
	Category  string    `json:"category"`
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Reason    string    `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy string    `json:"changed_by,omitempty"`
}

// PromptTemplate is one named template with {{var}} placeholders.
type PromptTemplate struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Template    string    `json:"template"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Plane is the admin plane.
type Plane struct {
	cfg   Config
	rates *RateCatalog

	mu        sync.RWMutex
	config    map[string]map[string]any
	audit     []AuditRecord
	prompts   map[string]*PromptTemplate
	tiers     map[string]*Tier
	userTiers map[string]string
	entries   []*store.CostEntry
	usage     map[string]*store.Usage
	active    map[string]int

	persist store.Store            // optional
	metrics *observability.Metrics // optional

	// now is swappable for tests.
	now func() time.Time
}

// NewPlane creates a plane with the built-in tier and rate catalogs.
// persist may be nil.
func NewPlane(cfg Config, persist store.Store) *Plane {
	cfg.SetDefaults()
	p := &Plane{
		cfg:       cfg,
		rates:     NewRateCatalog(),
		config:    make(map[string]map[string]any),
		prompts:   make(map[string]*PromptTemplate),
		tiers:     make(map[string]*Tier),
		userTiers: make(map[string]string),
		usage:     make(map[string]*store.Usage),
		active:    make(map[string]int),
		persist:   persist,
		now:       time.Now,
	}
	for _, tier := range DefaultTiers() {
		p.tiers[tier.ID] = tier
	}
	return p
}

// SetClock replaces the time source. Tests only.
func (p *Plane) SetClock(now func() time.Time) { p.now = now }

// SetMetrics attaches the service metrics so recorded cost feeds the
// per-model cost counter.
func (p *Plane) SetMetrics(m *observability.Metrics) { p.metrics = m }

// ---------------------------------------------------------------------------
// Config KV
// ---------------------------------------------------------------------------

// MutationMeta carries the audit context of a mutation.
type MutationMeta struct {
	Reason    string
	ChangedBy string
}

// GetConfig returns a config value.
func (p *Plane) GetConfig(category, key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cat, ok := p.config[category]
	if !ok {
		return nil, false
	}
	value, ok := cat[key]
	return value, ok
}

// GetConfigOrDefault returns a config value or the fallback.
func (p *Plane) GetConfigOrDefault(category, key string, fallback any) any {
	if value, ok := p.GetConfig(category, key); ok {
		return value
	}
	return fallback
}

// SetConfig stores a config value and appends an audit record.
func (p *Plane) SetConfig(category, key string, value any, meta MutationMeta) error {
	if category == "" || key == "" {
		return auierr.New(auierr.InvalidArgs, "config category and key are required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config[category] == nil {
		p.config[category] = make(map[string]any)
	}
	p.config[category][key] = value
	p.audit = append(p.audit, AuditRecord{
		Category:  category,
		Key:       key,
		Value:     value,
		Reason:    meta.Reason,
		ChangedAt: p.now(),
		ChangedBy: meta.ChangedBy,
	})
	return nil
}

// AuditLog returns a copy of the audit trail.
func (p *Plane) AuditLog() []AuditRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]AuditRecord(nil), p.audit...)
}

// ---------------------------------------------------------------------------
// Prompt templates
// ---------------------------------------------------------------------------

var promptVarRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// SavePrompt creates or updates a template. Mutations are audited under the
// "prompt" category.
func (p *Plane) SavePrompt(tpl *PromptTemplate, meta MutationMeta) (*PromptTemplate, error) {
	if tpl == nil || tpl.Template == "" {
		return nil, auierr.New(auierr.InvalidArgs, "prompt template text is required")
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	tpl.UpdatedAt = p.now()

	p.mu.Lock()
	p.prompts[tpl.ID] = tpl
	p.audit = append(p.audit, AuditRecord{
		Category:  "prompt",
		Key:       tpl.ID,
		Value:     tpl.Name,
		Reason:    meta.Reason,
		ChangedAt: tpl.UpdatedAt,
		ChangedBy: meta.ChangedBy,
	})
	p.mu.Unlock()
	return tpl, nil
}

// GetPrompt returns a template by id.
func (p *Plane) GetPrompt(id string) (*PromptTemplate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tpl, ok := p.prompts[id]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "prompt %q not found", id)
	}
	return tpl, nil
}

// ListPrompts returns every template.
func (p *Plane) ListPrompts() []*PromptTemplate {
	p.mu.RLock()
	defer p.mu.RUnlock()

	prompts := make([]*PromptTemplate, 0, len(p.prompts))
	for _, tpl := range p.prompts {
		prompts = append(prompts, tpl)
	}
	return prompts
}

// DeletePrompt removes a template.
func (p *Plane) DeletePrompt(id string, meta MutationMeta) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.prompts[id]; !ok {
		return auierr.New(auierr.NotFound, "prompt %q not found", id)
	}
	delete(p.prompts, id)
	p.audit = append(p.audit, AuditRecord{
		Category:  "prompt",
		Key:       id,
		Value:     nil,
		Reason:    meta.Reason,
		ChangedAt: p.now(),
		ChangedBy: meta.ChangedBy,
	})
	return nil
}

// CompilePrompt substitutes {{name}} tokens with vars. Unknown tokens are
// left in place so callers can spot missing variables.
func (p *Plane) CompilePrompt(id string, vars map[string]string) (string, error) {
	tpl, err := p.GetPrompt(id)
	if err != nil {
		return "", err
	}

	compiled := promptVarRe.ReplaceAllStringFunc(tpl.Template, func(match string) string {
		name := promptVarRe.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
	return compiled, nil
}

// TestPrompt compiles a template against vars without side effects.
func (p *Plane) TestPrompt(id string, vars map[string]string) (string, error) {
	return p.CompilePrompt(id, vars)
}

// promptVars lists the variable names a template references.
func promptVars(template string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, m := range promptVarRe.FindAllStringSubmatch(template, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// PromptVars lists the variables the given template id references.
func (p *Plane) PromptVars(id string) ([]string, error) {
	tpl, err := p.GetPrompt(id)
	if err != nil {
		return nil, err
	}
	return promptVars(tpl.Template), nil
}

// persistUsage mirrors a usage bucket to the attached store, best effort.
func (p *Plane) persistUsage(usage *store.Usage) {
	if p.persist == nil {
		return
	}
	_ = p.persist.SaveUsage(context.Background(), usage)
}

// normalizeModel lowercases and trims a model id for catalog lookups.
func normalizeModel(model string) string {
	return strings.ToLower(strings.TrimSpace(model))
}
