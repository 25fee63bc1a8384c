// Package config loads lore's runtime configuration from an optional YAML file
// layered under environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingCredential = errors.New("missing API credential")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// Store backend identifiers.
const (
	BackendSQLite   = "sqlite"
	BackendMilvus   = "milvus"
	BackendPostgres = "postgres"
)

// Embedder identifiers.
const (
	EmbedderOpenAI  = "openai"
	EmbedderHashing = "hashing"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "lore.yaml"

// MilvusConfig holds Milvus connection and index settings.
type MilvusConfig struct {
	Address        string `yaml:"address"`
	M              int    `yaml:"m"`
	EfConstruction int    `yaml:"ef_construction"`
	Ef             int    `yaml:"ef"`
}

// PostgresConfig holds the pgvector connection string.
type PostgresConfig struct {
	URL string `yaml:"url"`
}

// StoreConfig selects the vector store backend and the collection it holds.
type StoreConfig struct {
	Backend    string         `yaml:"backend"`
	Path       string         `yaml:"path"`
	Collection string         `yaml:"collection"`
	Milvus     MilvusConfig   `yaml:"milvus"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// EmbedderConfig selects the embedding function. Model and Dimension are
// recorded with the collection on first write.
type EmbedderConfig struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// ChunkerConfig sets chunk size and overlap in characters.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// LLMConfig configures the extraction model.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	BaseURL     string  `yaml:"base_url"`
}

type SearchConfig struct {
	Limit int `yaml:"limit"`
}

type ExtractConfig struct {
	MaxContext int `yaml:"max_context"`
}

type StoriesConfig struct {
	Extensions []string `yaml:"extensions"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root configuration structure.
type Config struct {
	// APIKeyEnv names the environment variable holding the model credential.
	APIKeyEnv string `yaml:"api_key_env"`
	// APIKey is resolved from APIKeyEnv at load time and never read from YAML.
	APIKey string `yaml:"-"`

	Store    StoreConfig    `yaml:"store"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Extract  ExtractConfig  `yaml:"extract"`
	Stories  StoriesConfig  `yaml:"stories"`
	Server   ServerConfig   `yaml:"server"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		APIKeyEnv: "OPENAI_API_KEY",
		Store: StoreConfig{
			Backend:    BackendSQLite,
			Path:       filepath.Join("data", "lore.db"),
			Collection: "stories",
			Milvus: MilvusConfig{
				Address:        "localhost:19530",
				M:              16,
				EfConstruction: 256,
				Ef:             64,
			},
		},
		Embedder: EmbedderConfig{
			Type:      EmbedderOpenAI,
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 16,
		},
		Chunker: ChunkerConfig{Size: 1000, Overlap: 200},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   2000,
		},
		Search:  SearchConfig{Limit: 5},
		Extract: ExtractConfig{MaxContext: 30000},
		Stories: StoriesConfig{Extensions: []string{".txt"}},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// Load reads the config at path. An empty path falls back to $LORE_CONFIG and
// then ./lore.yaml; a missing file yields defaults. Environment overrides are
// applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("LORE_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = DefaultConfigFile
	}

	cfg := Default()
	// Model and dimension depend on the embedder type, which the file or the
	// environment may still change; applyDefaults fills them per type.
	cfg.Embedder.Model, cfg.Embedder.Dimension = "", 0

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LORE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("LORE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("LORE_COLLECTION"); v != "" {
		cfg.Store.Collection = v
	}
	if v := os.Getenv("LORE_EMBEDDER"); v != "" {
		cfg.Embedder.Type = v
	}
	if v := os.Getenv("MILVUS_ADDRESS"); v != "" {
		cfg.Store.Milvus.Address = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Store.Postgres.URL = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LORE_SEARCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.Limit = n
		}
	}
	if cfg.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(cfg.APIKeyEnv)
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = def.APIKeyEnv
		cfg.APIKey = os.Getenv(cfg.APIKeyEnv)
	}
	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = def.Store.Backend
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = def.Store.Path
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = def.Store.Collection
	}
	if cfg.Store.Milvus.Address == "" {
		cfg.Store.Milvus.Address = def.Store.Milvus.Address
	}
	if cfg.Store.Milvus.M == 0 {
		cfg.Store.Milvus.M = def.Store.Milvus.M
	}
	if cfg.Store.Milvus.EfConstruction == 0 {
		cfg.Store.Milvus.EfConstruction = def.Store.Milvus.EfConstruction
	}
	if cfg.Store.Milvus.Ef == 0 {
		cfg.Store.Milvus.Ef = def.Store.Milvus.Ef
	}

	cfg.Embedder.Type = strings.ToLower(cfg.Embedder.Type)
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Model == "" {
		if cfg.Embedder.Type == EmbedderHashing {
			cfg.Embedder.Model = "hashing-v1"
		} else {
			cfg.Embedder.Model = def.Embedder.Model
		}
	}
	if cfg.Embedder.Dimension == 0 {
		if cfg.Embedder.Type == EmbedderHashing {
			cfg.Embedder.Dimension = 256
		} else {
			cfg.Embedder.Dimension = def.Embedder.Dimension
		}
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = def.Embedder.BatchSize
	}

	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = def.Chunker.Size
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.Search.Limit == 0 {
		cfg.Search.Limit = def.Search.Limit
	}
	if cfg.Extract.MaxContext == 0 {
		cfg.Extract.MaxContext = def.Extract.MaxContext
	}
	if len(cfg.Stories.Extensions) == 0 {
		cfg.Stories.Extensions = def.Stories.Extensions
	}
	for i, ext := range cfg.Stories.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Stories.Extensions[i] = ext
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendMilvus, BackendPostgres:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	if c.Store.Backend == BackendPostgres && c.Store.Postgres.URL == "" {
		return fmt.Errorf("%w: postgres backend requires store.postgres.url or POSTGRES_URL", ErrInvalidConfig)
	}
	switch c.Embedder.Type {
	case EmbedderOpenAI, EmbedderHashing:
	default:
		return fmt.Errorf("%w: unknown embedder %q", ErrInvalidConfig, c.Embedder.Type)
	}
	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("%w: embedder dimension must be positive", ErrInvalidConfig)
	}
	if c.Chunker.Size <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("%w: chunk overlap must be in [0, size)", ErrInvalidConfig)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("%w: search limit must be positive", ErrInvalidConfig)
	}
	if c.Extract.MaxContext <= 0 {
		return fmt.Errorf("%w: max context must be positive", ErrInvalidConfig)
	}
	return nil
}

// RequireCredential is the pre-flight check every model-backed command runs
// before doing any work.
func (c *Config) RequireCredential() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: %s not found in environment variables", ErrMissingCredential, c.APIKeyEnv)
	}
	return nil
}

// NeedsCredential reports whether the configured embedder calls the remote API.
func (c *Config) NeedsCredential() bool {
	return c.Embedder.Type == EmbedderOpenAI
}
