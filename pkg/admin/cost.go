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
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/store"
)

// CostRecord is the input to RecordLLMCost. When HasCost is false the cost is
// derived from the rate catalog and CostCents is ignored.
type CostRecord struct {
	UserID       string
	SessionID    string
	Model        string
	Operation    string
	InputTokens  int
	OutputTokens int
	CostCents    float64
	HasCost      bool
	LatencyMs    int64
	Success      bool
	Error        string
}

// DayKey formats a day period key.
func DayKey(t time.Time) string { return t.Format("2006-01-02") }

// MonthKey formats a month period key.
func MonthKey(t time.Time) string { return t.Format("2006-01") }

// weekKey formats an ISO week period key.
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// RecordLLMCost records one LLM call and updates the caller's day and month
// usage buckets. A no-op when cost tracking is disabled.
func (p *Plane) RecordLLMCost(rec CostRecord) *store.CostEntry {
	if !p.cfg.EnableCostTracking {
		return nil
	}

	now := p.now()
	cost := rec.CostCents
	if !rec.HasCost {
		cost = p.rates.Cost(rec.Model, rec.InputTokens, rec.OutputTokens)
	}

	entry := &store.CostEntry{
		ID:           uuid.NewString(),
		Timestamp:    now,
		UserID:       rec.UserID,
		SessionID:    rec.SessionID,
		Model:        rec.Model,
		Operation:    rec.Operation,
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		CostCents:    cost,
		LatencyMs:    rec.LatencyMs,
		Success:      rec.Success,
		Error:        rec.Error,
	}

	p.mu.Lock()
	p.entries = append(p.entries, entry)
	if rec.UserID != "" {
		p.applyUsageLocked(rec.UserID, DayKey(now), entry)
		p.applyUsageLocked(rec.UserID, MonthKey(now), entry)
	}
	p.mu.Unlock()

	p.metrics.ObserveLLMCost(entry.Model, entry.CostCents)

	if p.persist != nil {
		_ = p.persist.AppendCostEntry(context.Background(), entry)
	}
	return entry
}

// applyUsageLocked folds an entry into one usage bucket. Callers hold p.mu.
func (p *Plane) applyUsageLocked(userID, period string, entry *store.CostEntry) {
	key := userID + "|" + period
	usage, ok := p.usage[key]
	if !ok {
		usage = &store.Usage{
			UserID:      userID,
			Period:      period,
			ByModel:     make(map[string]int),
			ByOperation: make(map[string]int),
			CostByModel: make(map[string]float64),
		}
		p.usage[key] = usage
	}

	tokens := entry.InputTokens + entry.OutputTokens
	usage.TokensUsed += tokens
	usage.RequestCount++
	usage.CostCents += entry.CostCents
	usage.ByModel[entry.Model] += tokens
	usage.ByOperation[entry.Operation] += tokens
	usage.CostByModel[entry.Model] += entry.CostCents
	usage.UpdatedAt = entry.Timestamp

	p.persistUsage(usage)
}

// GetUsage returns the usage bucket for a user and period, or an empty
// bucket when nothing was recorded.
func (p *Plane) GetUsage(userID, period string) *store.Usage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if usage, ok := p.usage[userID+"|"+period]; ok {
		return usage
	}
	return &store.Usage{UserID: userID, Period: period}
}

// PruneCostEntries drops entries older than the retention window. Usage
// aggregates are untouched; they stay authoritative for queries.
func (p *Plane) PruneCostEntries() int {
	cutoff := p.now().AddDate(0, 0, -p.cfg.CostRetentionDays)

	p.mu.Lock()
	kept := p.entries[:0]
	pruned := 0
	for _, entry := range p.entries {
		if entry.Timestamp.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, entry)
	}
	p.entries = kept
	p.mu.Unlock()

	if p.persist != nil {
		_, _ = p.persist.PruneCostEntries(context.Background(), cutoff)
	}
	return pruned
}

// ---------------------------------------------------------------------------
// Limit checks
// ---------------------------------------------------------------------------

// ExceededLimit reports one limit over its maximum.
type ExceededLimit struct {
	Limit       string  `json:"limit"`
	Current     int     `json:"current"`
	Maximum     int     `json:"maximum"`
	PercentOver float64 `json:"percent_over"`
}

// LimitWarning reports usage in the 80-100% band.
type LimitWarning struct {
	Limit   string  `json:"limit"`
	Current int     `json:"current"`
	Maximum int     `json:"maximum"`
	Percent float64 `json:"percent"`
}

// LimitCheck is the result of CheckLimits.
type LimitCheck struct {
	WithinLimits   bool            `json:"within_limits"`
	ExceededLimits []ExceededLimit `json:"exceeded_limits,omitempty"`
	Warnings       []LimitWarning  `json:"warnings,omitempty"`
	Tier           *Tier           `json:"tier"`
	CurrentUsage   *store.Usage    `json:"current_usage"`
}

// CheckLimits evaluates a user against their tier. requestsPerMinute is
// computed over a rolling 60 second window of cost entries.
func (p *Plane) CheckLimits(userID string) *LimitCheck {
	tier := p.UserTier(userID)
	now := p.now()
	day := p.GetUsage(userID, DayKey(now))
	month := p.GetUsage(userID, MonthKey(now))

	p.mu.RLock()
	recentRequests := 0
	windowStart := now.Add(-time.Minute)
	for i := len(p.entries) - 1; i >= 0; i-- {
		entry := p.entries[i]
		if entry.Timestamp.Before(windowStart) {
			break
		}
		if entry.UserID == userID {
			recentRequests++
		}
	}
	activeTasks := p.active[userID]
	p.mu.RUnlock()

	check := &LimitCheck{WithinLimits: true, Tier: tier, CurrentUsage: day}

	evaluate := func(name string, current, maximum int) {
		if maximum <= 0 {
			return
		}
		if current > maximum {
			check.WithinLimits = false
			check.ExceededLimits = append(check.ExceededLimits, ExceededLimit{
				Limit:       name,
				Current:     current,
				Maximum:     maximum,
				PercentOver: float64(current-maximum) / float64(maximum) * 100,
			})
			return
		}
		percent := float64(current) / float64(maximum) * 100
		if percent >= 80 && percent < 100 {
			check.Warnings = append(check.Warnings, LimitWarning{
				Limit:   name,
				Current: current,
				Maximum: maximum,
				Percent: percent,
			})
		}
	}

	evaluate("tokensPerDay", day.TokensUsed, tier.Limits.TokensPerDay)
	evaluate("tokensPerMonth", month.TokensUsed, tier.Limits.TokensPerMonth)
	evaluate("requestsPerMinute", recentRequests, tier.Limits.RequestsPerMinute)
	evaluate("maxConcurrentTasks", activeTasks, tier.Limits.MaxConcurrentTasks)

	return check
}

// LimitError converts a failed check into a LimitExceeded error carrying
// the exceeded records for client display.
func LimitError(check *LimitCheck) error {
	if check.WithinLimits {
		return nil
	}
	first := check.ExceededLimits[0]
	return auierr.New(auierr.LimitExceeded, "%s limit exceeded: %d of %d", first.Limit, first.Current, first.Maximum).
		WithDetail("exceeded_limits", check.ExceededLimits)
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

// ReportOptions selects and groups report rows.
type ReportOptions struct {
	From    time.Time
	To      time.Time
	UserID  string
	GroupBy string // day, week, month, user, tier, model, operation
}

// ReportGroup is one aggregate row.
type ReportGroup struct {
	Key          string  `json:"key"`
	CostCents    float64 `json:"cost_cents"`
	Tokens       int     `json:"tokens"`
	RequestCount int     `json:"request_count"`
	FailureCount int     `json:"failure_count"`
}

// Report aggregates cost entries over a date range.
type Report struct {
	From         time.Time               `json:"from"`
	To           time.Time               `json:"to"`
	CostCents    float64                 `json:"cost_cents"`
	Tokens       int                     `json:"tokens"`
	RequestCount int                     `json:"request_count"`
	Groups       map[string]*ReportGroup `json:"groups,omitempty"`
}

// CostReport aggregates entries in [From, To) with optional grouping.
func (p *Plane) CostReport(opts ReportOptions) *Report {
	if opts.To.IsZero() {
		opts.To = p.now()
	}
	if opts.From.IsZero() {
		opts.From = opts.To.AddDate(0, -1, 0)
	}

	report := &Report{From: opts.From, To: opts.To}
	if opts.GroupBy != "" {
		report.Groups = make(map[string]*ReportGroup)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, entry := range p.entries {
		if entry.Timestamp.Before(opts.From) || !entry.Timestamp.Before(opts.To) {
			continue
		}
		if opts.UserID != "" && entry.UserID != opts.UserID {
			continue
		}

		tokens := entry.InputTokens + entry.OutputTokens
		report.CostCents += entry.CostCents
		report.Tokens += tokens
		report.RequestCount++

		if report.Groups == nil {
			continue
		}
		key := p.groupKeyLocked(opts.GroupBy, entry)
		group, ok := report.Groups[key]
		if !ok {
			group = &ReportGroup{Key: key}
			report.Groups[key] = group
		}
		group.CostCents += entry.CostCents
		group.Tokens += tokens
		group.RequestCount++
		if !entry.Success {
			group.FailureCount++
		}
	}
	return report
}

// groupKeyLocked maps an entry to its report group. Callers hold p.mu.
func (p *Plane) groupKeyLocked(groupBy string, entry *store.CostEntry) string {
	switch groupBy {
	case "day":
		return DayKey(entry.Timestamp)
	case "week":
		return weekKey(entry.Timestamp)
	case "month":
		return MonthKey(entry.Timestamp)
	case "user":
		return entry.UserID
	case "tier":
		tierID, ok := p.userTiers[entry.UserID]
		if !ok {
			tierID = p.cfg.DefaultTierID
		}
		return tierID
	case "model":
		return entry.Model
	case "operation":
		return entry.Operation
	default:
		return "all"
	}
}

// UsageReport aggregates usage over a date range. Usage and cost reports
// share the same scan; they differ only in which fields callers read.
func (p *Plane) UsageReport(opts ReportOptions) *Report {
	return p.CostReport(opts)
}
