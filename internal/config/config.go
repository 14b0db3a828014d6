// Package config holds the explicit configuration object passed to the
// dramatis pipeline and the loader that fills it from a YAML file,
// environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned by Validate for out-of-range options.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix is prepended to every environment override (DRAMATIS_CHUNK_SIZE, ...).
const EnvPrefix = "DRAMATIS"

// Config is the full configuration for ingestion and character lookup.
type Config struct {
	Stories  StoriesConfig  `mapstructure:"stories"`
	Chunk    ChunkConfig    `mapstructure:"chunk"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Index    IndexConfig    `mapstructure:"index"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      LogConfig      `mapstructure:"log"`
}

// StoriesConfig locates the persisted story collection.
type StoriesConfig struct {
	// Path is the JSON document holding all ingested stories
	Path string `mapstructure:"path"`

	// Source is the default ingestion source (directory, git or github or s3 URL)
	Source string `mapstructure:"source"`

	// GitHubToken authenticates github: sources (optional for public repos)
	GitHubToken string `mapstructure:"github_token"`

	// S3Endpoint targets an S3-compatible service for s3:// sources
	S3Endpoint string `mapstructure:"s3_endpoint"`
}

// ChunkConfig controls how stories are split before embedding.
type ChunkConfig struct {
	Size     int    `mapstructure:"size"`
	Overlap  int    `mapstructure:"overlap"`
	Strategy string `mapstructure:"strategy"` // "fixed" or "recursive"
}

// EmbedConfig selects the embedding model.
type EmbedConfig struct {
	Provider  string `mapstructure:"provider"` // "openai" or "ollama"
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	BatchSize int    `mapstructure:"batch_size"`
	CacheSize int    `mapstructure:"cache_size"`
}

// IndexConfig selects and locates the vector store.
type IndexConfig struct {
	Backend    string        `mapstructure:"backend"` // "milvus", "sqlite" or "pgvector"
	URL        string        `mapstructure:"url"`     // Milvus address or Postgres DSN
	Dir        string        `mapstructure:"dir"`     // directory for the sqlite backend
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LLMConfig selects the language model used for verification and extraction.
type LLMConfig struct {
	Provider           string        `mapstructure:"provider"` // "openai" or "ollama"
	Endpoint           string        `mapstructure:"endpoint"`
	Model              string        `mapstructure:"model"`
	APIKey             string        `mapstructure:"api_key"`
	VerifyTemperature  float64       `mapstructure:"verify_temperature"`
	ExtractTemperature float64       `mapstructure:"extract_temperature"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// PipelineConfig tunes the query pipeline.
type PipelineConfig struct {
	TopK int `mapstructure:"top_k"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Stories: StoriesConfig{
			Path:   "./stories.json",
			Source: "./data",
		},
		Chunk: ChunkConfig{
			Size:     1000,
			Overlap:  200,
			Strategy: "fixed",
		},
		Embed: EmbedConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 16,
			CacheSize: 256,
		},
		Index: IndexConfig{
			Backend:    "sqlite",
			URL:        "localhost:19530",
			Dir:        "./vector_db",
			Collection: "stories",
			Timeout:    30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:           "openai",
			Model:              "gpt-4o-mini",
			VerifyTemperature:  0,
			ExtractTemperature: 0.7,
			MaxTokens:          2000,
			Timeout:            60 * time.Second,
		},
		Pipeline: PipelineConfig{
			TopK: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in order: defaults, config file (optional when
// path is empty), .env, DRAMATIS_* environment variables.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("dramatis")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyKeyFallbacks(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so that AutomaticEnv overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("stories.path", d.Stories.Path)
	v.SetDefault("stories.source", d.Stories.Source)
	v.SetDefault("stories.github_token", d.Stories.GitHubToken)
	v.SetDefault("stories.s3_endpoint", d.Stories.S3Endpoint)

	v.SetDefault("chunk.size", d.Chunk.Size)
	v.SetDefault("chunk.overlap", d.Chunk.Overlap)
	v.SetDefault("chunk.strategy", d.Chunk.Strategy)

	v.SetDefault("embed.provider", d.Embed.Provider)
	v.SetDefault("embed.model", d.Embed.Model)
	v.SetDefault("embed.dimension", d.Embed.Dimension)
	v.SetDefault("embed.base_url", d.Embed.BaseURL)
	v.SetDefault("embed.api_key", d.Embed.APIKey)
	v.SetDefault("embed.batch_size", d.Embed.BatchSize)
	v.SetDefault("embed.cache_size", d.Embed.CacheSize)

	v.SetDefault("index.backend", d.Index.Backend)
	v.SetDefault("index.url", d.Index.URL)
	v.SetDefault("index.dir", d.Index.Dir)
	v.SetDefault("index.collection", d.Index.Collection)
	v.SetDefault("index.timeout", d.Index.Timeout)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.endpoint", d.LLM.Endpoint)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.verify_temperature", d.LLM.VerifyTemperature)
	v.SetDefault("llm.extract_temperature", d.LLM.ExtractTemperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)

	v.SetDefault("pipeline.top_k", d.Pipeline.TopK)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

// applyKeyFallbacks fills credentials from the conventional provider variables.
func applyKeyFallbacks(cfg *Config) {
	if cfg.Embed.APIKey == "" {
		cfg.Embed.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.LLM.APIKey == "" {
		if strings.Contains(cfg.LLM.Endpoint, "groq.com") {
			cfg.LLM.APIKey = os.Getenv("GROQ_API_KEY")
		} else {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Stories.GitHubToken == "" {
		cfg.Stories.GitHubToken = os.Getenv("GITHUB_TOKEN")
	}
}

// Validate checks value ranges. It does not check credentials; providers
// report missing keys when they are constructed.
func (c *Config) Validate() error {
	if c.Chunk.Size <= 0 {
		return fmt.Errorf("%w: chunk.size must be positive, got %d", ErrInvalidConfig, c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("%w: chunk.overlap must be in [0, %d), got %d", ErrInvalidConfig, c.Chunk.Size, c.Chunk.Overlap)
	}
	switch c.Chunk.Strategy {
	case "fixed", "recursive":
	default:
		return fmt.Errorf("%w: unknown chunk.strategy %q", ErrInvalidConfig, c.Chunk.Strategy)
	}
	if c.Pipeline.TopK <= 0 {
		return fmt.Errorf("%w: pipeline.top_k must be positive, got %d", ErrInvalidConfig, c.Pipeline.TopK)
	}
	if c.Embed.Dimension <= 0 {
		return fmt.Errorf("%w: embed.dimension must be positive, got %d", ErrInvalidConfig, c.Embed.Dimension)
	}
	if c.Embed.BatchSize <= 0 {
		return fmt.Errorf("%w: embed.batch_size must be positive, got %d", ErrInvalidConfig, c.Embed.BatchSize)
	}
	switch c.Index.Backend {
	case "milvus", "sqlite", "pgvector":
	default:
		return fmt.Errorf("%w: unknown index.backend %q", ErrInvalidConfig, c.Index.Backend)
	}
	if c.Stories.Path == "" {
		return fmt.Errorf("%w: stories.path is required", ErrInvalidConfig)
	}
	return nil
}
