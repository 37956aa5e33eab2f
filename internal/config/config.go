// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the kbrag service configuration: a
// YAML file for structure, environment variables for secrets and
// deployment-specific overrides (§6 of the spec: VECTOR_URL, KEYWORD_URL,
// CACHE_HOST, PREMIUM_BACKEND_URL, PREMIUM_API_KEY, QUERY_EMBEDDER_TYPE,
// CACHE_TTL, CACHE_SIMILARITY_THRESHOLD, WEB_KB_TTL_DAYS, WEB_KB_MAX_SIZE,
// WEB_SEARCH_TRUSTED_DOMAINS, WEB_SEARCH_MAX_QUERIES_PER_MINUTE,
// EMBEDDING_ALIGNMENT_MATRIX_PATH_<BACKEND>).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object.
type Config struct {
	Vector      VectorConfig      `yaml:"vector"`
	Keyword     KeywordConfig     `yaml:"keyword"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Cache       CacheConfig       `yaml:"cache"`
	WebSearch   WebSearchConfig   `yaml:"web_search"`
	WebKB       WebKBConfig       `yaml:"web_kb"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Logger      LoggerConfig      `yaml:"logger"`
	Server      ServerConfig      `yaml:"server"`
}

// ServerConfig backs the HTTP listen address for spec §6's external
// interfaces.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address for net/http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type VectorConfig struct {
	Provider string `yaml:"provider"` // "qdrant" | "chromem"
	URL      string `yaml:"url"`
	APIKey   string `yaml:"api_key,omitempty"`
}

type KeywordConfig struct {
	IndexPath string `yaml:"index_path"`
	URL       string `yaml:"url,omitempty"`
}

type EmbedderConfig struct {
	LocalProvider   string `yaml:"local_provider"`   // "ollama"
	LocalModel      string `yaml:"local_model"`
	LocalBaseURL    string `yaml:"local_base_url"`
	PremiumProvider string `yaml:"premium_provider"` // default QueryEmbedderType
	PremiumModel    string `yaml:"premium_model"`
	PremiumBaseURL  string `yaml:"premium_base_url"`
	PremiumAPIKey   string `yaml:"premium_api_key,omitempty"`
	QueryEmbedderType string `yaml:"query_embedder_type"`
	AlignmentMatrixDir string `yaml:"alignment_matrix_dir"`
}

type CacheConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	TTL                time.Duration `yaml:"ttl"`
	SimilarityThreshold float64      `yaml:"similarity_threshold"`
	TenantPrefix       string        `yaml:"tenant_prefix"`
	ScanLimit          int           `yaml:"scan_limit"`
}

type WebSearchConfig struct {
	Enabled              bool     `yaml:"enabled"`
	TrustedDomains       []string `yaml:"trusted_domains"`
	MaxQueriesPerMinute  int      `yaml:"max_queries_per_minute"`
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
	SnippetProviderURL   string   `yaml:"snippet_provider_url"`
}

type WebKBConfig struct {
	TTLDays int `yaml:"ttl_days"`
	MaxSize int `yaml:"max_size"`
}

type GeneratorConfig struct {
	Model           string `yaml:"model"`
	MaxContextTokens int   `yaml:"max_context_tokens"`
}

type OrchestratorConfig struct {
	SourcePath            string `yaml:"source_path"`
	IncrementalIndexing   bool   `yaml:"incremental_indexing"`
	MaxConcurrentIndexing int    `yaml:"max_concurrent_indexing"`
	Watch                 bool   `yaml:"watch"`
	EnableCheckpoints      bool   `yaml:"enable_checkpoints"`
	CheckpointDir          string `yaml:"checkpoint_dir"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file (if path is non-empty and exists), then
// applies environment variable overrides, defaults, and validation.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VECTOR_URL"); v != "" {
		c.Vector.URL = v
	}
	if v := os.Getenv("KEYWORD_URL"); v != "" {
		c.Keyword.URL = v
	}
	if v := os.Getenv("CACHE_HOST"); v != "" {
		c.Cache.Host = v
	}
	if v := os.Getenv("PREMIUM_BACKEND_URL"); v != "" {
		c.Embedder.PremiumBaseURL = v
	}
	if v := os.Getenv("PREMIUM_API_KEY"); v != "" {
		c.Embedder.PremiumAPIKey = v
	}
	if v := os.Getenv("QUERY_EMBEDDER_TYPE"); v != "" {
		c.Embedder.QueryEmbedderType = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Cache.TTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("CACHE_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Cache.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("WEB_KB_TTL_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.WebKB.TTLDays = days
		}
	}
	if v := os.Getenv("WEB_KB_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WebKB.MaxSize = n
		}
	}
	if v := os.Getenv("WEB_SEARCH_TRUSTED_DOMAINS"); v != "" {
		c.WebSearch.TrustedDomains = strings.Split(v, ",")
	}
	if v := os.Getenv("WEB_SEARCH_MAX_QUERIES_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WebSearch.MaxQueriesPerMinute = n
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
}

// AlignmentMatrixPath resolves EMBEDDING_ALIGNMENT_MATRIX_PATH_<BACKEND>,
// falling back to <AlignmentMatrixDir>/<backend>.bin.
func (c *Config) AlignmentMatrixPath(backend string) string {
	envName := "EMBEDDING_ALIGNMENT_MATRIX_PATH_" + strings.ToUpper(backend)
	if v := os.Getenv(envName); v != "" {
		return v
	}
	dir := c.Embedder.AlignmentMatrixDir
	if dir == "" {
		dir = "."
	}
	return dir + "/" + strings.ToLower(backend) + ".bin"
}

// SetDefaults fills in zero-valued fields with the service's defaults.
func (c *Config) SetDefaults() {
	if c.Vector.Provider == "" {
		c.Vector.Provider = "chromem"
	}
	if c.Keyword.IndexPath == "" {
		c.Keyword.IndexPath = "./data/keyword.bleve"
	}
	if c.Embedder.LocalProvider == "" {
		c.Embedder.LocalProvider = "ollama"
	}
	if c.Embedder.LocalModel == "" {
		c.Embedder.LocalModel = "nomic-embed-text"
	}
	if c.Embedder.LocalBaseURL == "" {
		c.Embedder.LocalBaseURL = "http://localhost:11434"
	}
	if c.Embedder.QueryEmbedderType == "" {
		c.Embedder.QueryEmbedderType = "ollama"
	}
	if c.Cache.Port == 0 {
		c.Cache.Port = 6379
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}
	if c.Cache.SimilarityThreshold == 0 {
		c.Cache.SimilarityThreshold = 0.92
	}
	if c.Cache.TenantPrefix == "" {
		c.Cache.TenantPrefix = "kbrag:cache:"
	}
	if c.Cache.ScanLimit == 0 {
		c.Cache.ScanLimit = 500
	}
	if c.WebSearch.MaxQueriesPerMinute == 0 {
		c.WebSearch.MaxQueriesPerMinute = 10
	}
	if c.WebSearch.FetchTimeout == 0 {
		c.WebSearch.FetchTimeout = 10 * time.Second
	}
	if c.WebKB.TTLDays == 0 {
		c.WebKB.TTLDays = 30
	}
	if c.WebKB.MaxSize == 0 {
		c.WebKB.MaxSize = 10000
	}
	if c.Generator.MaxContextTokens == 0 {
		c.Generator.MaxContextTokens = 4000
	}
	if c.Orchestrator.MaxConcurrentIndexing == 0 {
		c.Orchestrator.MaxConcurrentIndexing = 4
	}
	if c.Orchestrator.CheckpointDir == "" {
		c.Orchestrator.CheckpointDir = "./.kbrag/checkpoints"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Vector.Provider {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("unsupported vector provider %q", c.Vector.Provider)
	}
	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache similarity threshold must be in (0, 1], got %f", c.Cache.SimilarityThreshold)
	}
	if c.Orchestrator.MaxConcurrentIndexing <= 0 {
		return fmt.Errorf("max_concurrent_indexing must be positive")
	}
	return nil
}
