package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for ragctx. Secrets are copied in from the
// environment once by ResolveSecrets; nothing reads the environment later.
type Config struct {
	Tokens     TokensConfig     `yaml:"tokens"`
	Assemble   AssembleConfig   `yaml:"assemble"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Completion CompletionConfig `yaml:"completion"`
	Store      StoreConfig      `yaml:"store"`
	Cache      CacheConfig      `yaml:"cache"`
	Index      IndexConfig      `yaml:"index"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// TokensConfig holds token counting configuration.
type TokensConfig struct {
	Encoding           string `yaml:"encoding"` // encoding or model name, "heuristic", "words"
	CacheSize          int    `yaml:"cache_size"`
	PerMessageOverhead int    `yaml:"per_message_overhead"`
	PerNameAdjustment  int    `yaml:"per_name_adjustment"`
	ReplyPriming       int    `yaml:"reply_priming"`
}

// AssembleConfig holds prompt assembly configuration.
type AssembleConfig struct {
	Budget       int    `yaml:"budget"`
	Overhead     int    `yaml:"overhead"`
	Preamble     string `yaml:"preamble"`
	SystemPrompt string `yaml:"system_prompt"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"` // drop results below this score (0 = disabled)
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"` // "openai", "azure", "mock"
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIVersion  string        `yaml:"api_version"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	APIKey      string        `yaml:"-"`
	Dimension   int           `yaml:"dimension"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	CacheSize   int           `yaml:"cache_size"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
}

// CompletionConfig holds chat completion configuration.
type CompletionConfig struct {
	Provider    string        `yaml:"provider"` // "openai", "azure", "mock"
	Model       string        `yaml:"model"`    // model name or Azure deployment
	BaseURL     string        `yaml:"base_url"`
	APIVersion  string        `yaml:"api_version"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	APIKey      string        `yaml:"-"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
}

// StoreConfig selects where passages and vectors live.
type StoreConfig struct {
	Backend  string `yaml:"backend"` // "bolt", "redis", "memory"
	Path     string `yaml:"path"`    // bolt file; defaults to .ragctx/index.db
	RedisURL string `yaml:"redis_url"`
	Prefix   string `yaml:"prefix"`
}

// CacheConfig holds semantic answer cache configuration.
type CacheConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Backend           string        `yaml:"backend"` // "memory", "redis"
	RedisURL          string        `yaml:"redis_url"`
	Prefix            string        `yaml:"prefix"`
	DistanceThreshold float64       `yaml:"distance_threshold"`
	TTL               time.Duration `yaml:"ttl"`
	MaxEntries        int           `yaml:"max_entries"`
}

// IndexConfig holds indexing configuration.
type IndexConfig struct {
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
	Chunker      string   `yaml:"chunker"` // "line", "sentence", "wrap"
	ChunkTokens  int      `yaml:"chunk_tokens"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	WrapWidth    int      `yaml:"wrap_width"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Tokens: TokensConfig{
			Encoding:           "cl100k_base",
			CacheSize:          4096,
			PerMessageOverhead: 3,
			PerNameAdjustment:  1,
			ReplyPriming:       3,
		},
		Assemble: AssembleConfig{
			Budget:       15000,
			Overhead:     2000,
			SystemPrompt: "You answer questions in summary from the blog posts.",
		},
		Retrieve: RetrieveConfig{
			TopK: 5,
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-ada-002",
			APIKeyEnv:   "OPENAI_API_KEY",
			Dimension:   1536,
			BatchSize:   100,
			Concurrency: 4,
			CacheSize:   1024,
			Timeout:     60 * time.Second,
			RetryCount:  3,
		},
		Completion: CompletionConfig{
			Provider:    "openai",
			Model:       "gpt-3.5-turbo-16k",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.5,
			TopP:        0.95,
			MaxTokens:   2000,
			Timeout:     120 * time.Second,
			RetryCount:  3,
		},
		Store: StoreConfig{
			Backend:  "bolt",
			RedisURL: "redis://localhost:6379/0",
			Prefix:   "post",
		},
		Cache: CacheConfig{
			Enabled:           false,
			Backend:           "memory",
			RedisURL:          "redis://localhost:6379/0",
			Prefix:            "answercache",
			DistanceThreshold: 0.1,
			TTL:               24 * time.Hour,
			MaxEntries:        1000,
		},
		Index: IndexConfig{
			Includes:     []string{"**/*.json", "**/*.md", "**/*.txt"},
			Excludes:     []string{"**/.git/**", "**/.ragctx/**", "**/node_modules/**"},
			Chunker:      "line",
			ChunkTokens:  512,
			ChunkOverlap: 50,
			WrapWidth:    2048,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for ragctx.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "ragctx.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".ragctx", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// LoadEnv loads dir/.env into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ResolveSecrets copies API keys from the environment variables named in the
// configuration. Missing keys are left empty; providers that need one fail
// when they are constructed.
func (c *Config) ResolveSecrets(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if c.Embedding.APIKey == "" && c.Embedding.APIKeyEnv != "" {
		if v, ok := lookup(c.Embedding.APIKeyEnv); ok {
			c.Embedding.APIKey = v
		}
	}
	if c.Completion.APIKey == "" && c.Completion.APIKeyEnv != "" {
		if v, ok := lookup(c.Completion.APIKeyEnv); ok {
			c.Completion.APIKey = v
		}
	}
}

// Validate rejects configurations no command can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Assemble.Budget <= 0 {
		errs = append(errs, fmt.Errorf("assemble.budget must be positive, got %d", c.Assemble.Budget))
	}
	if c.Assemble.Overhead < 0 {
		errs = append(errs, fmt.Errorf("assemble.overhead must not be negative, got %d", c.Assemble.Overhead))
	}
	if c.Retrieve.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK))
	}
	switch c.Store.Backend {
	case "bolt", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "memory", "redis":
		default:
			errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
		}
		if c.Cache.DistanceThreshold < 0 || c.Cache.DistanceThreshold > 2 {
			errs = append(errs, fmt.Errorf("cache.distance_threshold must be within [0, 2], got %g", c.Cache.DistanceThreshold))
		}
	}
	switch c.Index.Chunker {
	case "line", "sentence", "wrap":
	default:
		errs = append(errs, fmt.Errorf("unknown index.chunker %q", c.Index.Chunker))
	}
	if c.Tokens.PerMessageOverhead < 0 || c.Tokens.ReplyPriming < 0 {
		errs = append(errs, errors.New("tokens.per_message_overhead and tokens.reply_priming must not be negative"))
	}
	return errors.Join(errs...)
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, ".ragctx", "index.db")
}

// EnsureDataDir ensures the .ragctx directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".ragctx"), 0755)
}
