package admin

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/observability"
)

func newTestPlane(t *testing.T) (*Plane, *time.Time) {
	t.Helper()
	plane := NewPlane(Config{EnableCostTracking: true}, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	plane.SetClock(func() time.Time { return now })
	return plane, &now
}

func TestConfigKV_Audited(t *testing.T) {
	plane, _ := newTestPlane(t)

	_, ok := plane.GetConfig("search", "default_limit")
	assert.False(t, ok)
	assert.Equal(t, 10, plane.GetConfigOrDefault("search", "default_limit", 10))

	require.NoError(t, plane.SetConfig("search", "default_limit", 25, MutationMeta{Reason: "tuning", ChangedBy: "ops"}))
	value, ok := plane.GetConfig("search", "default_limit")
	assert.True(t, ok)
	assert.Equal(t, 25, value)

	audit := plane.AuditLog()
	require.Len(t, audit, 1)
	assert.Equal(t, "search", audit[0].Category)
	assert.Equal(t, "tuning", audit[0].Reason)
	assert.Equal(t, "ops", audit[0].ChangedBy)
}

func TestPrompts_CompileAndAudit(t *testing.T) {
	plane, _ := newTestPlane(t)

	tpl, err := plane.SavePrompt(&PromptTemplate{
		Name:     "greeting",
		Template: "Hello {{name}}, welcome to {{place}}! Again: {{name}}.",
	}, MutationMeta{Reason: "initial"})
	require.NoError(t, err)

	compiled, err := plane.CompilePrompt(tpl.ID, map[string]string{"name": "Ada", "place": "the archive"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, welcome to the archive! Again: Ada.", compiled)

	// Unknown tokens stay visible.
	partial, err := plane.CompilePrompt(tpl.ID, map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Contains(t, partial, "{{place}}")

	vars, err := plane.PromptVars(tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "place"}, vars)

	require.NoError(t, plane.DeletePrompt(tpl.ID, MutationMeta{}))
	_, err = plane.GetPrompt(tpl.ID)
	assert.True(t, auierr.IsKind(err, auierr.NotFound))

	// Save + delete both audited.
	assert.Len(t, plane.AuditLog(), 2)
}

func TestRateCatalog(t *testing.T) {
	catalog := NewRateCatalog()

	assert.True(t, catalog.IsLocal("ollama/llama3.2"))
	assert.True(t, catalog.IsLocal("nomic-embed-text"))
	assert.False(t, catalog.IsLocal("claude-sonnet"))

	assert.Zero(t, catalog.Cost("ollama/llama3.2", 1_000_000, 1_000_000))

	// claude-sonnet: 300 in + 1500 out cents per 1M.
	cost := catalog.Cost("claude-sonnet", 1_000_000, 1_000_000)
	assert.InDelta(t, 1800.0, cost, 1e-9)

	// Unknown models get the fallback rate.
	fallback := catalog.Cost("mystery-model-9000", 1_000_000, 0)
	assert.InDelta(t, 100.0, fallback, 1e-9)
}

func TestRecordLLMCost_UpdatesUsageBuckets(t *testing.T) {
	plane, now := newTestPlane(t)

	entry := plane.RecordLLMCost(CostRecord{
		UserID:       "u1",
		Model:        "claude-sonnet",
		Operation:    "agent",
		InputTokens:  600,
		OutputTokens: 500,
		Success:      true,
	})
	require.NotNil(t, entry)
	assert.InDelta(t, (600*300.0+500*1500.0)/1_000_000, entry.CostCents, 1e-9)

	day := plane.GetUsage("u1", DayKey(*now))
	assert.Equal(t, 1100, day.TokensUsed)
	assert.Equal(t, 1, day.RequestCount)
	assert.Equal(t, 1100, day.ByModel["claude-sonnet"])
	assert.Equal(t, 1100, day.ByOperation["agent"])

	month := plane.GetUsage("u1", MonthKey(*now))
	assert.Equal(t, 1100, month.TokensUsed)
}

func TestRecordLLMCost_FeedsCostCounter(t *testing.T) {
	plane, _ := newTestPlane(t)
	metrics := observability.New()
	plane.SetMetrics(metrics)

	entry := plane.RecordLLMCost(CostRecord{
		UserID:       "u1",
		Model:        "claude-sonnet",
		Operation:    "agent",
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
		Success:      true,
	})
	require.NotNil(t, entry)

	counted := testutil.ToFloat64(metrics.LLMCostCents.WithLabelValues("claude-sonnet"))
	assert.InDelta(t, entry.CostCents, counted, 1e-9)
}

func TestRecordLLMCost_DisabledTracking(t *testing.T) {
	plane := NewPlane(Config{EnableCostTracking: false}, nil)

	entry := plane.RecordLLMCost(CostRecord{UserID: "u1", Model: "gpt-4o", InputTokens: 10, OutputTokens: 10})
	assert.Nil(t, entry)
	assert.Zero(t, plane.GetUsage("u1", DayKey(time.Now())).TokensUsed)
}

func TestCheckLimits_TokensPerDayExceeded(t *testing.T) {
	plane, _ := newTestPlane(t)

	for i := 0; i < 10; i++ {
		plane.RecordLLMCost(CostRecord{
			UserID:       "u1",
			Model:        "claude-sonnet",
			Operation:    "agent",
			InputTokens:  600,
			OutputTokens: 500,
			Success:      true,
		})
	}

	check := plane.CheckLimits("u1")
	assert.False(t, check.WithinLimits)
	require.Len(t, check.ExceededLimits, 1)
	exceeded := check.ExceededLimits[0]
	assert.Equal(t, "tokensPerDay", exceeded.Limit)
	assert.Equal(t, 11_000, exceeded.Current)
	assert.Equal(t, 10_000, exceeded.Maximum)
	assert.InDelta(t, 10.0, exceeded.PercentOver, 1e-9)

	err := LimitError(check)
	require.Error(t, err)
	assert.True(t, auierr.IsKind(err, auierr.LimitExceeded))
}

func TestCheckLimits_RequestsPerMinuteRollingWindow(t *testing.T) {
	plane, _ := newTestPlane(t)
	require.NoError(t, plane.SetTier(&Tier{
		ID:     "tight",
		Name:   "Tight",
		Limits: TierLimits{RequestsPerMinute: 3},
	}))
	require.NoError(t, plane.SetUserTier("u1", "tight"))

	for i := 0; i < 4; i++ {
		plane.RecordLLMCost(CostRecord{UserID: "u1", Model: "ollama/llama3.2", Operation: "agent", InputTokens: 1, Success: true})
	}

	check := plane.CheckLimits("u1")
	assert.False(t, check.WithinLimits)
	require.Len(t, check.ExceededLimits, 1)
	assert.Equal(t, "requestsPerMinute", check.ExceededLimits[0].Limit)
	assert.Equal(t, 4, check.ExceededLimits[0].Current)
}

func TestCheckLimits_Warnings(t *testing.T) {
	plane, _ := newTestPlane(t)

	// 85% of the free tier's 10k daily tokens.
	plane.RecordLLMCost(CostRecord{UserID: "u1", Model: "ollama/llama3.2", Operation: "agent", InputTokens: 8500, Success: true})

	check := plane.CheckLimits("u1")
	assert.True(t, check.WithinLimits)
	require.NotEmpty(t, check.Warnings)
	assert.Equal(t, "tokensPerDay", check.Warnings[0].Limit)
	assert.InDelta(t, 85.0, check.Warnings[0].Percent, 1e-9)
}

func TestTiers(t *testing.T) {
	plane, _ := newTestPlane(t)

	tiers := plane.ListTiers()
	require.Len(t, tiers, 3)
	assert.Equal(t, "free", tiers[0].ID)

	assert.Error(t, plane.DeleteTier("free"))
	require.NoError(t, plane.SetTier(&Tier{ID: "trial", Name: "Trial"}))
	require.NoError(t, plane.DeleteTier("trial"))

	err := plane.SetUserTier("u1", "nope")
	assert.True(t, auierr.IsKind(err, auierr.NotFound))
	require.NoError(t, plane.SetUserTier("u1", "pro"))
	assert.Equal(t, "pro", plane.UserTier("u1").ID)
	assert.Equal(t, "free", plane.UserTier("unknown-user").ID)
}

func TestIsModelAllowed(t *testing.T) {
	free, err := NewPlane(Config{}, nil).GetTier("free")
	require.NoError(t, err)

	assert.True(t, IsModelAllowed(free, "ollama/llama3.2"))
	assert.False(t, IsModelAllowed(free, "claude-sonnet"))

	enterprise := &Tier{ID: "enterprise"}
	assert.True(t, IsModelAllowed(enterprise, "claude-sonnet"))
}

func TestConcurrentTaskLimit(t *testing.T) {
	plane, _ := newTestPlane(t)

	// Free tier allows one concurrent task.
	plane.IncActiveTasks("u1")
	plane.IncActiveTasks("u1")

	check := plane.CheckLimits("u1")
	assert.False(t, check.WithinLimits)
	require.Len(t, check.ExceededLimits, 1)
	assert.Equal(t, "maxConcurrentTasks", check.ExceededLimits[0].Limit)

	plane.DecActiveTasks("u1")
	check = plane.CheckLimits("u1")
	assert.True(t, check.WithinLimits)
}

func TestCostReport_Grouping(t *testing.T) {
	plane, now := newTestPlane(t)

	plane.RecordLLMCost(CostRecord{UserID: "u1", Model: "claude-sonnet", Operation: "agent", InputTokens: 100, OutputTokens: 50, Success: true})
	plane.RecordLLMCost(CostRecord{UserID: "u1", Model: "gpt-4o", Operation: "persona_sample", InputTokens: 200, OutputTokens: 10, Success: true})
	plane.RecordLLMCost(CostRecord{UserID: "u2", Model: "claude-sonnet", Operation: "agent", InputTokens: 50, OutputTokens: 5, Success: false, Error: "boom"})

	report := plane.CostReport(ReportOptions{
		From:    now.Add(-time.Hour),
		To:      now.Add(time.Hour),
		GroupBy: "model",
	})

	assert.Equal(t, 3, report.RequestCount)
	assert.Equal(t, 415, report.Tokens)
	require.Len(t, report.Groups, 2)
	assert.Equal(t, 205, report.Groups["claude-sonnet"].Tokens)
	assert.Equal(t, 1, report.Groups["claude-sonnet"].FailureCount)

	byUser := plane.CostReport(ReportOptions{From: now.Add(-time.Hour), To: now.Add(time.Hour), GroupBy: "user"})
	require.Len(t, byUser.Groups, 2)
	assert.Equal(t, 2, byUser.Groups["u1"].RequestCount)
}

func TestPruneCostEntries_KeepsAggregates(t *testing.T) {
	plane := NewPlane(Config{EnableCostTracking: true, CostRetentionDays: 30}, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	plane.SetClock(func() time.Time { return now })

	plane.RecordLLMCost(CostRecord{UserID: "u1", Model: "gpt-4o", Operation: "agent", InputTokens: 100, Success: true})
	oldPeriod := DayKey(now)

	// Jump past retention and prune.
	now = base.AddDate(0, 0, 40)
	pruned := plane.PruneCostEntries()
	assert.Equal(t, 1, pruned)

	// The aggregate survives independently of its entries.
	assert.Equal(t, 100, plane.GetUsage("u1", oldPeriod).TokensUsed)
	report := plane.CostReport(ReportOptions{From: base.Add(-time.Hour), To: now})
	assert.Equal(t, 0, report.RequestCount)
}
