// Copyright 2025 Poiesic Systems
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


// Package config loads groundwork settings from a YAML file, a .env file
// and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poiesic/groundwork/ai"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/ingestion"
	"github.com/poiesic/groundwork/prompt"
	"github.com/poiesic/groundwork/rag"
	"github.com/poiesic/groundwork/search"
	"github.com/poiesic/groundwork/storage/badger"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is loaded by Load when present.
const DefaultEnvFile = ".env"

// AIConfig selects the OpenAI-compatible embedding and generation services.
type AIConfig struct {
	EmbeddingHost   string  `yaml:"embedding_host"`
	GenerationHost  string  `yaml:"generation_host"`
	EmbeddingModel  string  `yaml:"embedding_model"`
	GenerationModel string  `yaml:"generation_model"`
	APIKey          string  `yaml:"api_key"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
}

// RetrievalConfig holds the defaults applied to every question.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	UseHybrid      bool    `yaml:"use_hybrid"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	Budget         int     `yaml:"budget"`
	HistoryLimit   int     `yaml:"history_limit"`
	CacheSize      int     `yaml:"cache_size"`
}

// IngestionConfig controls chunking and embedding of documents.
type IngestionConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	BatchSize    int      `yaml:"batch_size"`
	PoolSize     int      `yaml:"pool_size"` // 0 picks a size from the CPU count
	Extensions   []string `yaml:"extensions"`
}

// Config is the complete groundwork configuration.
type Config struct {
	DatabasePath      string          `yaml:"database_path"`
	KnowledgeBasePath string          `yaml:"knowledge_base_path"`
	MaxTurns          int             `yaml:"max_turns"` // Turns kept per session
	AI                AIConfig        `yaml:"ai"`
	Retrieval         RetrievalConfig `yaml:"retrieval"`
	Ingestion         IngestionConfig `yaml:"ingestion"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	weights := core.DefaultWeights()
	return &Config{
		DatabasePath:      "./groundwork_db",
		KnowledgeBasePath: "./knowledge_base",
		MaxTurns:          badger.DefaultMaxTurns,
		AI: AIConfig{
			EmbeddingHost:   aiDefaults.EmbeddingHost,
			GenerationHost:  aiDefaults.GenerationHost,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			GenerationModel: aiDefaults.GenerationModel,
			Temperature:     aiDefaults.Temperature,
		},
		Retrieval: RetrievalConfig{
			TopK:           rag.DefaultTopK,
			UseHybrid:      true,
			SemanticWeight: weights.Semantic,
			LexicalWeight:  weights.Lexical,
			Budget:         rag.DefaultBudget,
			HistoryLimit:   prompt.DefaultHistoryLimit,
			CacheSize:      search.DefaultPassageCacheSize,
		},
		Ingestion: IngestionConfig{
			ChunkSize:    ingestion.DefaultChunkSize,
			ChunkOverlap: ingestion.DefaultChunkOverlap,
			BatchSize:    ingestion.DefaultBatchSize,
			Extensions:   slices.Clone(ingestion.DefaultExtensions),
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), DefaultEnvFile if it exists, and the process environment.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", DefaultEnvFile, err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse %s: %w", core.ErrConfig, path, err)
	}
	return nil
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides settings from environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %w", core.ErrConfig, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(name); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %w", core.ErrConfig, name, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %w", core.ErrConfig, name, err))
				return
			}
			*dst = b
		}
	}

	str("VECTOR_DB_PATH", &c.DatabasePath)
	str("KNOWLEDGE_BASE_PATH", &c.KnowledgeBasePath)
	str("OPENAI_API_KEY", &c.AI.APIKey)
	str("EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	str("LLM_MODEL", &c.AI.GenerationModel)
	str("EMBEDDING_HOST", &c.AI.EmbeddingHost)
	str("LLM_HOST", &c.AI.GenerationHost)
	float("LLM_TEMPERATURE", &c.AI.Temperature)
	integer("TOP_K_RESULTS", &c.Retrieval.TopK)
	boolean("USE_HYBRID", &c.Retrieval.UseHybrid)
	float("SEMANTIC_WEIGHT", &c.Retrieval.SemanticWeight)
	float("LEXICAL_WEIGHT", &c.Retrieval.LexicalWeight)
	integer("CONTEXT_BUDGET", &c.Retrieval.Budget)
	integer("CHUNK_SIZE", &c.Ingestion.ChunkSize)
	integer("CHUNK_OVERLAP", &c.Ingestion.ChunkOverlap)
	integer("MAX_TURNS", &c.MaxTurns)
	return errors.Join(errs...)
}

// Validate checks every setting. Errors wrap core.ErrConfig.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{core.ErrConfig}, args...)...))
		}
	}

	check(c.DatabasePath != "", "database_path is required")
	check(c.MaxTurns > 0, "max_turns must be positive, got %d", c.MaxTurns)
	check(c.Retrieval.TopK > 0, "top_k must be positive, got %d", c.Retrieval.TopK)
	check(c.Retrieval.Budget > 0, "budget must be positive, got %d", c.Retrieval.Budget)
	check(c.Retrieval.HistoryLimit >= 0, "history_limit cannot be negative, got %d", c.Retrieval.HistoryLimit)
	check(c.Retrieval.CacheSize > 0, "cache_size must be positive, got %d", c.Retrieval.CacheSize)
	check(c.Ingestion.ChunkSize > 0, "chunk_size must be positive, got %d", c.Ingestion.ChunkSize)
	check(c.Ingestion.ChunkOverlap >= 0 && c.Ingestion.ChunkOverlap < c.Ingestion.ChunkSize,
		"chunk_overlap must be in [0, chunk_size), got %d", c.Ingestion.ChunkOverlap)
	check(c.Ingestion.BatchSize > 0, "batch_size must be positive, got %d", c.Ingestion.BatchSize)
	check(c.Ingestion.PoolSize >= 0, "pool_size cannot be negative, got %d", c.Ingestion.PoolSize)

	if err := core.ValidateWeights(c.Weights()); err != nil {
		errs = append(errs, err)
	}
	if err := c.AIConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", core.ErrConfig, err))
	}
	return errors.Join(errs...)
}

// Weights returns the configured fusion weights.
func (c *Config) Weights() core.Weights {
	return core.Weights{Semantic: c.Retrieval.SemanticWeight, Lexical: c.Retrieval.LexicalWeight}
}

// AIConfig converts the AI section to an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGenerationHost(c.AI.GenerationHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGenerationModel(c.AI.GenerationModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithTemperature(c.AI.Temperature),
		ai.WithMaxTokens(c.AI.MaxTokens),
	)
}
