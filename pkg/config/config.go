// Package config provides configuration types and loading for the service.
//
// Configuration is a single yaml document with ${ENV} expansion. A .env file
// beside the config is loaded first, so local development secrets never need
// exporting. Every type follows the SetDefaults/Validate convention.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/humanizer-ai/aui/pkg/llms"
)

// Config is the root service configuration.
type Config struct {
	// Server settings.
	Server ServerConfig `yaml:"server,omitempty"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging,omitempty"`

	// Session lifecycle.
	MaxSessions     int           `yaml:"max_sessions,omitempty"`
	SessionTimeout  time.Duration `yaml:"session_timeout,omitempty"`
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty"`
	PersistSessions bool          `yaml:"persist_sessions,omitempty"`

	// Cost tracking.
	EnableCostTracking *bool  `yaml:"enable_cost_tracking,omitempty"`
	CostRetentionDays  int    `yaml:"cost_retention_days,omitempty"`
	DefaultTierID      string `yaml:"default_tier_id,omitempty"`

	// Agent loop.
	MaxStepsDefault int           `yaml:"max_steps_default,omitempty"`
	ToolTimeout     time.Duration `yaml:"tool_timeout,omitempty"`

	// Book assembly.
	RewritePasses      int `yaml:"rewrite_passes,omitempty"`
	MaxPassagesDefault int `yaml:"max_passages_default,omitempty"`

	// Cluster discovery.
	Cluster ClusterConfig `yaml:"cluster,omitempty"`

	// Embedding runs.
	Embedding EmbeddingConfig `yaml:"embedding,omitempty"`

	// Providers.
	LLMs      map[string]*llms.ProviderConfig `yaml:"llms,omitempty"`
	Embedders map[string]*EmbedderConfig      `yaml:"embedders,omitempty"`

	// Storage.
	Database DatabaseConfig `yaml:"database,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	File   string `yaml:"file,omitempty"`
}

// ClusterConfig bounds cluster discovery.
type ClusterConfig struct {
	SampleSize     int     `yaml:"sample_size,omitempty"`
	MaxClusters    int     `yaml:"max_clusters,omitempty"`
	MinClusterSize int     `yaml:"min_cluster_size,omitempty"`
	MinSimilarity  float32 `yaml:"min_similarity,omitempty"`
}

// EmbeddingConfig bounds embedding runs.
type EmbeddingConfig struct {
	BatchSize    int `yaml:"batch_size,omitempty"`
	MinWordCount int `yaml:"min_word_count,omitempty"`
}

// EmbedderConfig declares one embedder provider.
type EmbedderConfig struct {
	Type    string        `yaml:"type"` // currently "ollama"
	Host    string        `yaml:"host,omitempty"`
	Model   string        `yaml:"model,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	// Driver is "memory", "sqlite", "mysql" or "postgres".
	Driver string `yaml:"driver,omitempty"`

	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn,omitempty"`
}

// SetDefaults applies the documented defaults.
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = 1000
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 30 * time.Minute
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = 60 * time.Second
	}
	if c.EnableCostTracking == nil {
		enabled := true
		c.EnableCostTracking = &enabled
	}
	if c.CostRetentionDays == 0 {
		c.CostRetentionDays = 90
	}
	if c.DefaultTierID == "" {
		c.DefaultTierID = "free"
	}
	if c.MaxStepsDefault == 0 {
		c.MaxStepsDefault = 10
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = 30 * time.Second
	}
	if c.RewritePasses == 0 {
		c.RewritePasses = 3
	}
	if c.MaxPassagesDefault == 0 {
		c.MaxPassagesDefault = 50
	}
	if c.Cluster.SampleSize == 0 {
		c.Cluster.SampleSize = 500
	}
	if c.Cluster.MaxClusters == 0 {
		c.Cluster.MaxClusters = 10
	}
	if c.Cluster.MinClusterSize == 0 {
		c.Cluster.MinClusterSize = 5
	}
	if c.Cluster.MinSimilarity == 0 {
		c.Cluster.MinSimilarity = 0.7
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 50
	}
	if c.Embedding.MinWordCount == 0 {
		c.Embedding.MinWordCount = 7
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for driver %q", c.Database.Driver)
	}
	for name, llmCfg := range c.LLMs {
		if err := llmCfg.Validate(); err != nil {
			return fmt.Errorf("llm %q: %w", name, err)
		}
	}
	for name, embCfg := range c.Embedders {
		if embCfg.Type != "ollama" {
			return fmt.Errorf("embedder %q: unsupported type %q", name, embCfg.Type)
		}
	}
	return nil
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references with environment values.
func expandEnv(raw []byte) []byte {
	return envVarRe.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envVarRe.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadConfig reads a yaml config file, loading a sibling .env first.
func LoadConfig(path string) (*Config, error) {
	// A .env next to the config keeps secrets out of yaml. Best effort.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return LoadConfigFromBytes(raw)
}

// LoadConfigFromBytes parses yaml config content.
func LoadConfigFromBytes(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnv(raw), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch reloads the config on file changes and calls onChange with each
// valid new config. Returns a stop function.
func Watch(path string, onChange func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path || !event.Has(fsnotify.Write) {
					continue
				}
				cfg, err := LoadConfig(path)
				if err != nil {
					continue
				}
				onChange(cfg)
			case <-watcher.Errors:
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
