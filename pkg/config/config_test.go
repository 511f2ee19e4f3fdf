package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfigFromBytes([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.MaxSessions)
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 60*time.Second, cfg.CleanupInterval)
	assert.True(t, *cfg.EnableCostTracking)
	assert.Equal(t, 90, cfg.CostRetentionDays)
	assert.Equal(t, "free", cfg.DefaultTierID)
	assert.Equal(t, 10, cfg.MaxStepsDefault)
	assert.Equal(t, 3, cfg.RewritePasses)
	assert.Equal(t, 50, cfg.MaxPassagesDefault)
	assert.Equal(t, 500, cfg.Cluster.SampleSize)
	assert.Equal(t, 10, cfg.Cluster.MaxClusters)
	assert.Equal(t, 5, cfg.Cluster.MinClusterSize)
	assert.InDelta(t, 0.7, float64(cfg.Cluster.MinSimilarity), 1e-6)
	assert.Equal(t, 50, cfg.Embedding.BatchSize)
	assert.Equal(t, 7, cfg.Embedding.MinWordCount)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("AUI_TEST_DSN", "file:test.db")

	cfg, err := LoadConfigFromBytes([]byte(`
database:
  driver: sqlite
  dsn: ${AUI_TEST_DSN}
`))
	require.NoError(t, err)
	assert.Equal(t, "file:test.db", cfg.Database.DSN)
}

func TestLoad_OverridesAndCostTrackingOff(t *testing.T) {
	cfg, err := LoadConfigFromBytes([]byte(`
max_sessions: 2
session_timeout: 60s
enable_cost_tracking: false
logging:
  level: debug
llms:
  main:
    type: ollama
    model: llama3.2
`))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MaxSessions)
	assert.Equal(t, time.Minute, cfg.SessionTimeout)
	assert.False(t, *cfg.EnableCostTracking)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.Contains(t, cfg.LLMs, "main")
	assert.Equal(t, "ollama", cfg.LLMs["main"].Type)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad driver", yaml: "database:\n  driver: cassandra\n"},
		{name: "missing dsn", yaml: "database:\n  driver: sqlite\n"},
		{name: "bad llm type", yaml: "llms:\n  x:\n    type: carrier-pigeon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromBytes([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
