// Package config loads Sagitta's configuration the way manifold/internal/config
// does: a typed struct populated from a YAML file, with environment variables
// layered on top for secrets, and a .env loader for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// OpenAIConfig configures the OpenAI-compatible provider adapter.
type OpenAIConfig struct {
	APIKey      string         `yaml:"api_key"`
	BaseURL     string         `yaml:"base_url"`
	Model       string         `yaml:"model"`
	API         string         `yaml:"api"` // not read: the OpenAI adapter always uses Chat Completions
	ExtraParams map[string]any `yaml:"extra_params,omitempty"`
	LogPayloads bool           `yaml:"log_payloads"`
}

// AnthropicConfig configures the Claude-Code provider adapter.
type AnthropicConfig struct {
	APIKey      string         `yaml:"api_key"`
	BaseURL     string         `yaml:"base_url"`
	Model       string         `yaml:"model"`
	ExtraParams map[string]any `yaml:"extra_params,omitempty"`
}

// EmbeddingConfig configures the Embedding Port's HTTP-backed implementation.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	Path       string `yaml:"path"`
	APIKey     string `yaml:"api_key"`
	APIHeader  string `yaml:"api_header"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Timeout    int    `yaml:"timeout_seconds"`
	BatchSize  int    `yaml:"batch_size"`
}

// VectorStoreConfig configures the Qdrant-backed Vector Store Port.
type VectorStoreConfig struct {
	Backend    string `yaml:"backend"` // "qdrant" or "memory"
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"` // cosine|l2|euclidean|ip|dot|manhattan
}

// GitSyncConfig configures CORE-A: the incremental sync engine.
type GitSyncConfig struct {
	CacheDir             string   `yaml:"cache_dir"`
	IgnorePatterns       []string `yaml:"ignore_patterns"`
	FullSyncThreshold    float64  `yaml:"full_sync_threshold"` // ratio of tracked files, default 0.5
	MaxFileFailureRatio  float64  `yaml:"max_file_failure_ratio"`
	EmbedBatchSize       int      `yaml:"embed_batch_size"`
	DetectRenames        bool     `yaml:"detect_renames"`
	MaxIndexingWorkers   int      `yaml:"max_indexing_workers"`
}

// ConversationStoreConfig configures CORE-C's persistence.
type ConversationStoreConfig struct {
	ContentDir           string `yaml:"content_dir"`
	AutoApplyTagThreshold float64 `yaml:"auto_apply_tag_threshold"`
}

// AgentConfig configures CORE-B's loop.
type AgentConfig struct {
	MaxSteps           int `yaml:"max_steps"`
	MaxToolParallelism int `yaml:"max_tool_parallelism"`
	ProviderTimeoutSec int `yaml:"provider_timeout_seconds"`
	MaxRetries         int `yaml:"max_retries"`
}

// RedisConfig configures the optional cache-aside layer in front of the
// Conversation Store (disabled by default: the file-based Store alone
// is sufficient without it).
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLSec   int    `yaml:"ttl_seconds"`
}

// EventsConfig configures the Broadcast Events bus's optional Kafka mirror
// (disabled by default: the in-process Bus alone is sufficient).
type EventsConfig struct {
	KafkaEnabled bool     `yaml:"kafka_enabled"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// Config is the top-level Sagitta configuration.
type Config struct {
	LogLevel     string                  `yaml:"log_level"`
	LogPath      string                  `yaml:"log_path"`
	OpenAI       OpenAIConfig            `yaml:"openai"`
	Anthropic    AnthropicConfig         `yaml:"anthropic"`
	Embeddings   EmbeddingConfig         `yaml:"embeddings"`
	VectorStore  VectorStoreConfig       `yaml:"vector_store"`
	GitSync      GitSyncConfig           `yaml:"git_sync"`
	Conversation ConversationStoreConfig `yaml:"conversation"`
	Agent        AgentConfig             `yaml:"agent"`
	Redis        RedisConfig             `yaml:"redis"`
	Events       EventsConfig            `yaml:"events"`
}

// Default returns a Config with reasonable production defaults: 384-dim
// embeddings, batch size 64, 0.5 full-sync threshold, 5% failure
// tolerance, 120s provider timeout.
func Default() Config {
	return Config{
		LogLevel: "info",
		Embeddings: EmbeddingConfig{
			Dimensions: 384,
			BatchSize:  64,
			Timeout:    30,
			Path:       "/embeddings",
		},
		VectorStore: VectorStoreConfig{
			Backend:    "memory",
			Collection: "sagitta_code",
			Dimensions: 384,
			Metric:     "cosine",
		},
		GitSync: GitSyncConfig{
			FullSyncThreshold:   0.5,
			MaxFileFailureRatio: 0.05,
			EmbedBatchSize:      64,
			DetectRenames:       true,
			MaxIndexingWorkers:  4,
		},
		Conversation: ConversationStoreConfig{
			ContentDir:            "conversations",
			AutoApplyTagThreshold: 0.75,
		},
		Agent: AgentConfig{
			MaxSteps:           25,
			MaxToolParallelism: 4,
			ProviderTimeoutSec: 120,
			MaxRetries:         5,
		},
		Redis: RedisConfig{
			TTLSec: 30,
		},
	}
}

// Load reads YAML config from path (if non-empty) over the defaults, then
// applies environment variable overrides for values operators usually keep
// out of files (API keys, DSNs). A missing .env at envPath is not an error;
// godotenv only seeds process environment variables that aren't already set.
func Load(path string, envPath string) (Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SAGITTA_OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("SAGITTA_ANTHROPIC_API_KEY"); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if v := os.Getenv("SAGITTA_EMBEDDINGS_API_KEY"); v != "" {
		cfg.Embeddings.APIKey = v
	}
	if v := os.Getenv("SAGITTA_VECTOR_STORE_DSN"); v != "" {
		cfg.VectorStore.DSN = v
	}
	if v := os.Getenv("SAGITTA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SAGITTA_EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("SAGITTA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SAGITTA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SAGITTA_KAFKA_BROKERS"); v != "" {
		cfg.Events.KafkaBrokers = strings.Split(v, ",")
	}
}

// Validate checks required fields and returns a descriptive error listing
// every problem found, joined with "; ", so a misconfigured deployment fails
// fast with one readable message instead of one field at a time.
func (c Config) Validate() error {
	var problems []string
	if c.VectorStore.Backend == "qdrant" && strings.TrimSpace(c.VectorStore.DSN) == "" {
		problems = append(problems, "vector_store.dsn is required when backend is qdrant")
	}
	if c.Embeddings.Dimensions <= 0 {
		problems = append(problems, "embeddings.dimensions must be > 0")
	}
	if c.GitSync.FullSyncThreshold <= 0 || c.GitSync.FullSyncThreshold > 1 {
		problems = append(problems, "git_sync.full_sync_threshold must be in (0, 1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
