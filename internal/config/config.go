// Package config loads docqa settings from config/<env>.yaml, .env and DOCQA_* variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. DOCQA_HTTP_PORT.
const EnvPrefix = "DOCQA"

// Config holds the docqa configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
	Auth       AuthConfig       `yaml:"auth"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Query      QueryConfig      `yaml:"query"`
	Index      IndexConfig      `yaml:"index"`
	Cache      CacheConfig      `yaml:"cache"`
	Watch      WatchConfig      `yaml:"watch"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	AdminKeys []string `yaml:"admin_keys" split_words:"true"` // guard rebuild routes; empty disables auth
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec" split_words:"true"`
	WriteTimeoutSec int `yaml:"write_timeout_sec" split_words:"true"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec" split_words:"true"`
}

// CorpusConfig points at the documents to index.
type CorpusConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

// ChunkingConfig holds text splitting settings.
type ChunkingConfig struct {
	ChunkSize int    `yaml:"chunk_size" split_words:"true"`
	Overlap   int    `yaml:"overlap"`
	Boundary  string `yaml:"boundary"` // none, sentence (default), paragraph
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string  `yaml:"provider"` // openai (default), gemini
	Model               string  `yaml:"model"`
	Dimensions          int     `yaml:"dimensions"`
	APIKey              string  `yaml:"api_key" split_words:"true"`
	BaseURL             string  `yaml:"base_url" split_words:"true"`
	BatchSize           int     `yaml:"batch_size" split_words:"true"`
	Concurrency         int     `yaml:"concurrency"`
	RequestsPerSecond   float64 `yaml:"requests_per_second" split_words:"true"` // 0 = unlimited
	Burst               int     `yaml:"burst"`
	TimeoutSec          int     `yaml:"timeout_sec" split_words:"true"`
	DocumentInstruction string  `yaml:"document_instruction" split_words:"true"`
	QueryInstruction    string  `yaml:"query_instruction" split_words:"true"`
}

// GenerationConfig holds answer generation settings.
type GenerationConfig struct {
	Provider       string   `yaml:"provider"` // openai (default), gemini
	Model          string   `yaml:"model"`
	APIKey         string   `yaml:"api_key" split_words:"true"`
	BaseURL        string   `yaml:"base_url" split_words:"true"`
	Temperature    *float32 `yaml:"temperature"`
	MaxTokens      int      `yaml:"max_tokens" split_words:"true"`
	SystemPrompt   string   `yaml:"system_prompt" split_words:"true"`
	PromptTemplate string   `yaml:"prompt_template" split_words:"true"`
	TimeoutSec     int      `yaml:"timeout_sec" split_words:"true"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	SearchType string  `yaml:"search_type" split_words:"true"` // similarity (default), mmr
	K          int     `yaml:"k"`
	FetchK     int     `yaml:"fetch_k" split_words:"true"`
	Lambda     float64 `yaml:"lambda"`
	MinScore   float64 `yaml:"min_score" split_words:"true"`
	// ExpandQueries is the number of generated rephrasings searched alongside the question; 0 disables.
	ExpandQueries int `yaml:"expand_queries" split_words:"true"`
	// Compress trims each retrieved passage to the sentences relevant to the question.
	Compress bool `yaml:"compress"`
}

// HeaderConfig renders one metadata key into a context block header.
type HeaderConfig struct {
	Key    string `yaml:"key"`
	Prefix string `yaml:"prefix"`
}

// ScopeConfig restricts retrieval to Filter when a question matches Patterns.
type ScopeConfig struct {
	Patterns []string          `yaml:"patterns"`
	Filter   map[string]string `yaml:"filter"`
}

// QueryConfig holds question answering settings.
type QueryConfig struct {
	MaxContextChars   int            `yaml:"max_context_chars" split_words:"true"`
	NoContextReply    string         `yaml:"no_context_reply" split_words:"true"`
	SmalltalkPatterns []string       `yaml:"smalltalk_patterns" split_words:"true"`
	SmalltalkReply    string         `yaml:"smalltalk_reply" split_words:"true"`
	ContextHeaders    []HeaderConfig `yaml:"context_headers" ignored:"true"`
	Scope             ScopeConfig    `yaml:"scope" ignored:"true"`
}

// IndexConfig holds snapshot storage settings.
type IndexConfig struct {
	Dir            string `yaml:"dir"`
	Metric         string `yaml:"metric"` // cosine (default), dot, euclidean
	Keep           int    `yaml:"keep"`
	RebuildOnStart bool   `yaml:"rebuild_on_start" split_words:"true"`
	RebuildTimeout int    `yaml:"rebuild_timeout_sec" split_words:"true"`
}

// CacheConfig holds the optional Redis/Valkey embedding cache.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec" split_words:"true"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec" split_words:"true"`
}

// WatchConfig holds corpus watching settings.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMs int  `yaml:"debounce_ms" split_words:"true"`
}

// Load reads configuration from a YAML file by environment name (local, docker, prod),
// then applies .env and DOCQA_* overrides.
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	// a missing .env is fine: variables may come from the shell
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply %s_* overrides: %w", EnvPrefix, err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// generation alone may take up to a minute
		c.HTTP.WriteTimeoutSec = 90
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Corpus.Dir == "" {
		c.Corpus.Dir = "data/corpus"
	}
	if c.Chunking.ChunkSize <= 0 {
		c.Chunking.ChunkSize = 3000
		if c.Chunking.Overlap == 0 {
			c.Chunking.Overlap = 300
		}
	}
	if c.Chunking.Overlap < 0 {
		c.Chunking.Overlap = 0
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderOpenAI
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = defaultEmbeddingModel(c.Embedding.Provider)
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 100
	}
	if c.Embedding.Concurrency <= 0 {
		c.Embedding.Concurrency = 2
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = ProviderOpenAI
	}
	if c.Generation.Model == "" {
		c.Generation.Model = defaultGenerationModel(c.Generation.Provider)
	}
	if c.Generation.APIKey == "" && c.Generation.Provider == c.Embedding.Provider {
		c.Generation.APIKey = c.Embedding.APIKey
	}
	if c.Generation.BaseURL == "" && c.Generation.Provider == c.Embedding.Provider {
		c.Generation.BaseURL = c.Embedding.BaseURL
	}
	if c.Generation.Temperature == nil {
		t := float32(0.3)
		c.Generation.Temperature = &t
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 800
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 60
	}
	if c.Retrieval.SearchType == "" {
		c.Retrieval.SearchType = "similarity"
	}
	if c.Retrieval.K <= 0 {
		c.Retrieval.K = 4
	}
	if c.Retrieval.FetchK <= 0 {
		c.Retrieval.FetchK = 20
	}
	if c.Retrieval.Lambda == 0 {
		c.Retrieval.Lambda = 0.5
	}
	if c.Query.MaxContextChars <= 0 {
		c.Query.MaxContextChars = 4500
	}
	if c.Index.Dir == "" {
		c.Index.Dir = "data/index"
	}
	if c.Index.Metric == "" {
		c.Index.Metric = "cosine"
	}
	if c.Index.Keep <= 0 {
		c.Index.Keep = 2
	}
	if c.Index.RebuildTimeout <= 0 {
		c.Index.RebuildTimeout = 1800
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 30 * 24 * 3600
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Watch.DebounceMs <= 0 {
		c.Watch.DebounceMs = 2000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.chunk_size (%d)",
			c.Chunking.Overlap, c.Chunking.ChunkSize)
	}
	if !validProvider(c.Embedding.Provider) {
		return fmt.Errorf("embedding.provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.Embedding.Provider)
	}
	if !validProvider(c.Generation.Provider) {
		return fmt.Errorf("generation.provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.Generation.Provider)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if t := *c.Generation.Temperature; t < 0 || t > 2 {
		return fmt.Errorf("generation.temperature must be between 0 and 2, got %g", t)
	}
	switch strings.ToLower(c.Retrieval.SearchType) {
	case "similarity", "mmr":
		// ok
	default:
		return fmt.Errorf("retrieval.search_type must be \"similarity\" or \"mmr\", got %q", c.Retrieval.SearchType)
	}
	if c.Retrieval.Lambda < 0 || c.Retrieval.Lambda > 1 {
		return fmt.Errorf("retrieval.lambda must be between 0 and 1, got %g", c.Retrieval.Lambda)
	}
	if c.Retrieval.ExpandQueries < 0 || c.Retrieval.ExpandQueries > MaxExpandQueries {
		return fmt.Errorf("retrieval.expand_queries must be between 0 and %d, got %d",
			MaxExpandQueries, c.Retrieval.ExpandQueries)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache is enabled")
	}
	return nil
}

// MaxExpandQueries caps retrieval.expand_queries.
const MaxExpandQueries = 10

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

func validProvider(p string) bool {
	return p == ProviderOpenAI || p == ProviderGemini
}

func defaultEmbeddingModel(provider string) string {
	if provider == ProviderGemini {
		return "gemini-embedding-001"
	}
	return "text-embedding-3-small"
}

func defaultGenerationModel(provider string) string {
	if provider == ProviderGemini {
		return "gemini-2.0-flash"
	}
	return "gpt-4o"
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
