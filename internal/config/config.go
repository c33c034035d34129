package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"edubot/internal/models"
)

type Config struct {
	Indexer        IndexerConfig    `yaml:"indexer"`
	Embedder       EmbedderConfig   `yaml:"embedder"`
	Index          IndexConfig      `yaml:"index"`
	Generation     GenerationConfig `yaml:"generation"`
	Retrieval      RetrievalConfig  `yaml:"retrieval"`
	PromptTemplate string           `yaml:"prompt_template"`
	Server         ServerConfig     `yaml:"server"`
	Logging        LoggingConfig    `yaml:"logging"`
}

// IndexerConfig controls how the PDF corpus is discovered and split.
type IndexerConfig struct {
	SourceDirectory string `yaml:"source_directory"`
	Glob            string `yaml:"glob"`
	ChunkSize       int    `yaml:"chunk_size"`
	ChunkOverlap    int    `yaml:"chunk_overlap"`
	ChunkUnit       string `yaml:"chunk_unit"` // "chars", "tokens"
	Splitter        string `yaml:"splitter"`   // "window", "recursive"
	ValidatePDF     bool   `yaml:"validate_pdf"`
	SkipOnError     bool   `yaml:"skip_on_error"`
}

type EmbedderConfig struct {
	Provider  string `yaml:"provider"` // "ollama", "openai", "hashing"
	Model     string `yaml:"model"`
	Device    string `yaml:"device"` // "cpu", "gpu"
	BaseURL   string `yaml:"base_url"` // empty selects the provider default
	APIKeyEnv string `yaml:"api_key_env"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

type IndexConfig struct {
	Backend          string         `yaml:"backend"` // "chromem", "pgvector"
	Path             string         `yaml:"path"`
	Collection       string         `yaml:"collection"`
	Compress         bool           `yaml:"compress"`
	ExportFile       string         `yaml:"export_file"`
	EncryptionKeyEnv string         `yaml:"encryption_key_env"`
	Postgres         PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Debug bool   `yaml:"debug"`
}

// GenerationConfig describes the text-generation model.
type GenerationConfig struct {
	ModelType      string        `yaml:"model_type"` // "ollama", "openai"
	Checkpoint     string        `yaml:"checkpoint"`
	BaseURL        string        `yaml:"base_url"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	MaxNewTokens   int           `yaml:"max_new_tokens"`
	Temperature    float64       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	StripThink     bool          `yaml:"strip_think"`
}

type RetrievalConfig struct {
	K int `yaml:"k"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console", "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Indexer: IndexerConfig{
			SourceDirectory: "data",
			Glob:            "*.pdf",
			ChunkSize:       500,
			ChunkOverlap:    50,
			ChunkUnit:       "chars",
			Splitter:        "window",
		},
		Embedder: EmbedderConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			Device:    "cpu",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 384,
			BatchSize: 32,
		},
		Index: IndexConfig{
			Backend:          "chromem",
			Path:             "vectorstore/db_chromem",
			Collection:       "edubot",
			EncryptionKeyEnv: "EDUBOT_EXPORT_KEY",
		},
		Generation: GenerationConfig{
			ModelType:      "ollama",
			Checkpoint:     "llama2",
			APIKeyEnv:      "OPENAI_API_KEY",
			MaxNewTokens:   512,
			Temperature:    0.5,
			Timeout:        2 * time.Minute,
			MaxConcurrency: 1,
			StripThink:     true,
		},
		Retrieval: RetrievalConfig{
			K: 4,
		},
		PromptTemplate: models.DefaultPromptTemplate,
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads a YAML file over the defaults and validates the result.
// A missing file yields the validated defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, models.NewError(models.KindConfigurationError, path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, models.NewError(models.KindConfigurationError, path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks every option and names the first offending one.
func (c *Config) Validate() error {
	invalid := func(option, format string, args ...any) error {
		return models.Errorf(models.KindConfigurationError, option, format, args...)
	}

	if strings.TrimSpace(c.Indexer.SourceDirectory) == "" {
		return invalid("indexer.source_directory", "must not be empty")
	}
	if c.Indexer.Glob == "" {
		return invalid("indexer.glob", "must not be empty")
	}
	if c.Indexer.ChunkSize <= 0 {
		return invalid("indexer.chunk_size", "must be positive, got %d", c.Indexer.ChunkSize)
	}
	if c.Indexer.ChunkOverlap < 0 || c.Indexer.ChunkOverlap >= c.Indexer.ChunkSize {
		return invalid("indexer.chunk_overlap", "must be in [0, chunk_size), got %d", c.Indexer.ChunkOverlap)
	}
	if !oneOf(c.Indexer.ChunkUnit, "chars", "tokens") {
		return invalid("indexer.chunk_unit", "unknown unit %q", c.Indexer.ChunkUnit)
	}
	if !oneOf(c.Indexer.Splitter, "window", "recursive") {
		return invalid("indexer.splitter", "unknown splitter %q", c.Indexer.Splitter)
	}

	if !oneOf(c.Embedder.Provider, "ollama", "openai", "hashing") {
		return invalid("embedder.provider", "unknown provider %q", c.Embedder.Provider)
	}
	if c.Embedder.Model == "" {
		return invalid("embedder.model", "must not be empty")
	}
	if !oneOf(c.Embedder.Device, "cpu", "gpu") {
		return invalid("embedder.device", "must be cpu or gpu, got %q", c.Embedder.Device)
	}
	if c.Embedder.Provider == "hashing" && c.Embedder.Dimension <= 0 {
		return invalid("embedder.dimension", "must be positive, got %d", c.Embedder.Dimension)
	}
	if c.Embedder.BatchSize <= 0 {
		return invalid("embedder.batch_size", "must be positive, got %d", c.Embedder.BatchSize)
	}

	if !oneOf(c.Index.Backend, "chromem", "pgvector") {
		return invalid("index.backend", "unknown backend %q", c.Index.Backend)
	}
	if c.Index.Backend == "chromem" && strings.TrimSpace(c.Index.Path) == "" {
		return invalid("index.path", "must not be empty")
	}
	if c.Index.Backend == "pgvector" && c.Index.Postgres.DSN == "" {
		return invalid("index.postgres.dsn", "required for the pgvector backend")
	}
	if c.Index.Collection == "" {
		return invalid("index.collection", "must not be empty")
	}
	if c.Index.ExportFile != "" {
		if _, err := c.Index.ExportKey(); err != nil {
			return err
		}
	}

	if !oneOf(c.Generation.ModelType, "ollama", "openai") {
		return invalid("generation.model_type", "unknown model type %q", c.Generation.ModelType)
	}
	if c.Generation.Checkpoint == "" {
		return invalid("generation.checkpoint", "must not be empty")
	}
	if c.Generation.MaxNewTokens <= 0 {
		return invalid("generation.max_new_tokens", "must be positive, got %d", c.Generation.MaxNewTokens)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 1 {
		return invalid("generation.temperature", "must be in [0, 1], got %g", c.Generation.Temperature)
	}
	if c.Generation.Timeout < 0 {
		return invalid("generation.timeout", "must not be negative")
	}
	if c.Generation.MaxConcurrency <= 0 {
		return invalid("generation.max_concurrency", "must be positive, got %d", c.Generation.MaxConcurrency)
	}

	if c.Retrieval.K <= 0 {
		return invalid("retrieval.k", "must be positive, got %d", c.Retrieval.K)
	}

	for _, placeholder := range []string{"{context}", "{question}"} {
		if !strings.Contains(c.PromptTemplate, placeholder) {
			return invalid("prompt_template", "missing %s placeholder", placeholder)
		}
	}

	if !oneOf(c.Logging.Format, "console", "json") {
		return invalid("logging.format", "unknown format %q", c.Logging.Format)
	}
	return nil
}

// ExportKey reads the export encryption key from EncryptionKeyEnv. An empty
// key disables encryption; otherwise chromem needs exactly 32 bytes (AES-256).
func (c *IndexConfig) ExportKey() (string, error) {
	if c.EncryptionKeyEnv == "" {
		return "", nil
	}
	key := os.Getenv(c.EncryptionKeyEnv)
	if key != "" && len(key) != 32 {
		return "", models.Errorf(models.KindConfigurationError, "index.encryption_key_env",
			"%s must hold a 32-byte key, got %d bytes", c.EncryptionKeyEnv, len(key))
	}
	return key, nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
