package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CorpusConfig locates the labeled corpus.
type CorpusConfig struct {
	Path         string `yaml:"path"`
	Sheet        string `yaml:"sheet,omitempty"`
	OutputSchema string `yaml:"output_schema,omitempty"`
}

// HoldoutConfig locates the persisted evaluation holdout.
type HoldoutConfig struct {
	Path     string  `yaml:"path"`
	Fraction float64 `yaml:"fraction"`
	Seed     uint64  `yaml:"seed"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the index storage.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// SQLiteConfig points at the on-disk index database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrievalConfig tunes the query and rebuild paths.
type RetrievalConfig struct {
	TopK    int `yaml:"top_k"`
	Workers int `yaml:"workers"`
}

// CacheConfig enables the redis context cache when RedisURL is set.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url,omitempty"`
	TTLSecs  int    `yaml:"ttl_secs"`
}

// GeneratorConfig selects the text generation engine. Empty type disables generation.
type GeneratorConfig struct {
	Type   string                 `yaml:"type"`
	OpenAI *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
}

// OpenAIGeneratorConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIGeneratorConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EvaluationConfig lists extra engines scored next to generator by the evaluate command.
type EvaluationConfig struct {
	Generators []GeneratorConfig `yaml:"generators,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         LogConfig         `yaml:"log"`
	Corpus      CorpusConfig      `yaml:"corpus"`
	Holdout     HoldoutConfig     `yaml:"holdout"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Cache       CacheConfig       `yaml:"cache"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Server      ServerConfig      `yaml:"server"`
}

// CacheTTL returns the context cache lifetime.
func (c *AppConfig) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSecs) * time.Second
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/exemplar/config.yaml.
// If neither exists, it writes defaults to ~/.config/exemplar/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "exemplar", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{
		Log:         LogConfig{Level: "info", Format: "text"},
		Corpus:      CorpusConfig{Path: "data/sd_prompts.xlsx"},
		Holdout:     HoldoutConfig{Path: "data/test_set.json"},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "sqlite"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Holdout.Fraction == 0 {
		cfg.Holdout.Fraction = 0.05
	}
	if cfg.Holdout.Seed == 0 {
		cfg.Holdout.Seed = 42
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.Workers == 0 {
		cfg.Retrieval.Workers = 4
	}
	if cfg.Cache.TTLSecs == 0 {
		cfg.Cache.TTLSecs = 300
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.VectorStore.Type == "sqlite" || cfg.VectorStore.Type == "" {
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		if cfg.VectorStore.SQLite.Path == "" {
			cfg.VectorStore.SQLite.Path = "database/index.db"
		}
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "stable_diffusion_prompts"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 5
		}
	}
	applyGeneratorDefaults(&cfg.Generator)
	for i := range cfg.Evaluation.Generators {
		applyGeneratorDefaults(&cfg.Evaluation.Generators[i])
	}
}

func applyGeneratorDefaults(g *GeneratorConfig) {
	if g.Type != "openai" || g.OpenAI == nil {
		return
	}
	if g.OpenAI.BaseURL == "" {
		g.OpenAI.BaseURL = "https://api.x.ai/v1"
	}
	if g.OpenAI.APIKeyEnv == "" {
		g.OpenAI.APIKeyEnv = "XAI_API_KEY"
	}
	if g.OpenAI.Model == "" {
		g.OpenAI.Model = "grok-2-latest"
	}
	if g.OpenAI.TimeoutSecs == 0 {
		g.OpenAI.TimeoutSecs = 60
	}
	if g.OpenAI.MaxRetries == 0 {
		g.OpenAI.MaxRetries = 3
	}
}
