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


// Package groundwork assembles a hybrid retrieval-augmented knowledge base:
// passage storage, a shared retriever, and factories for the context engine,
// chatbot, ingestion pipeline and re-embedder built on top of them.
package groundwork

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/groundwork/ai"
	"github.com/poiesic/groundwork/ai/openai"
	"github.com/poiesic/groundwork/chat"
	"github.com/poiesic/groundwork/config"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/ingestion"
	"github.com/poiesic/groundwork/prompt"
	"github.com/poiesic/groundwork/rag"
	"github.com/poiesic/groundwork/reembed"
	"github.com/poiesic/groundwork/search"
	"github.com/poiesic/groundwork/storage"
	"github.com/poiesic/groundwork/storage/badger"
)

// KnowledgeBase owns the storage backend, the AI provider and the retriever
// shared by every component built from it.
type KnowledgeBase struct {
	repos        *badger.Repositories
	provider     ai.AIProvider
	retriever    *search.Retriever
	historyLimit int
	logger       *slog.Logger
}

// Option configures a KnowledgeBase.
type Option func(*options) error

type options struct {
	aiConfig      *ai.Config
	provider      ai.AIProvider
	inMemory      bool
	maxTurns      int
	historyLimit  int
	retrieverOpts []search.Option
	logger        *slog.Logger
}

// WithAIConfig sets the OpenAI-compatible service configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) error {
		o.aiConfig = cfg
		return nil
	}
}

// WithProvider uses provider instead of building one from the AI config.
// The knowledge base closes it on Close.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) error {
		o.provider = provider
		return nil
	}
}

// InMemory keeps all data in memory; the path given to Open is ignored.
func InMemory() Option {
	return func(o *options) error {
		o.inMemory = true
		return nil
	}
}

// WithMaxTurns caps the turns stored per session.
func WithMaxTurns(n int) Option {
	return func(o *options) error {
		o.maxTurns = n
		return nil
	}
}

// WithRetrieverOptions configures the shared retriever.
func WithRetrieverOptions(opts ...search.Option) Option {
	return func(o *options) error {
		o.retrieverOpts = append(o.retrieverOpts, opts...)
		return nil
	}
}

// WithConfig applies the AI, conversation and retrieval sections of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.aiConfig = cfg.AIConfig()
		o.maxTurns = cfg.MaxTurns
		o.historyLimit = cfg.Retrieval.HistoryLimit
		o.retrieverOpts = append(o.retrieverOpts, search.WithPassageCacheSize(cfg.Retrieval.CacheSize))
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// Open opens or creates the knowledge base stored at path.
func Open(path string, opts ...Option) (*KnowledgeBase, error) {
	o := &options{
		maxTurns:     badger.DefaultMaxTurns,
		historyLimit: prompt.DefaultHistoryLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	provider := o.provider
	if provider == nil {
		if o.aiConfig == nil {
			o.aiConfig = ai.DefaultConfig()
		}
		var err error
		if provider, err = openai.NewProvider(o.aiConfig); err != nil {
			return nil, err
		}
	}

	backend, err := badger.OpenBackend(path, o.inMemory)
	if err != nil {
		provider.Close()
		return nil, err
	}
	repos, err := badger.NewRepositories(backend, badger.WithMaxTurns(o.maxTurns))
	if err != nil {
		backend.Close()
		provider.Close()
		return nil, err
	}

	retrieverOpts := append([]search.Option{search.WithLogger(o.logger)}, o.retrieverOpts...)
	retriever, err := search.NewRetriever(repos.Passages, provider.Embedder(), retrieverOpts...)
	if err != nil {
		repos.Close()
		provider.Close()
		return nil, err
	}

	return &KnowledgeBase{
		repos:        repos,
		provider:     provider,
		retriever:    retriever,
		historyLimit: o.historyLimit,
		logger:       o.logger,
	}, nil
}

// Close releases the provider, the repositories and the backend.
func (kb *KnowledgeBase) Close() error {
	var errs []error
	if err := kb.provider.Close(); err != nil {
		kb.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := kb.repos.Close(); err != nil {
		kb.logger.Error("error closing storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (kb *KnowledgeBase) Passages() storage.PassageRepository {
	return kb.repos.Passages
}

func (kb *KnowledgeBase) Conversations() storage.ConversationRepository {
	return kb.repos.Conversations
}

func (kb *KnowledgeBase) Analytics() storage.AnalyticsRepository {
	return kb.repos.Analytics
}

func (kb *KnowledgeBase) Checkpoints() storage.CheckpointRepository {
	return kb.repos.Checkpoints
}

func (kb *KnowledgeBase) Provider() ai.AIProvider {
	return kb.provider
}

// Retriever returns the retriever shared by every engine of this knowledge base.
func (kb *KnowledgeBase) Retriever() *search.Retriever {
	return kb.retriever
}

// NewEngine creates a context engine over the shared retriever and the
// conversation store.
func (kb *KnowledgeBase) NewEngine(opts ...rag.Option) (*rag.Engine, error) {
	assembler, err := prompt.NewAssembler(prompt.WithHistoryLimit(kb.historyLimit), prompt.WithLogger(kb.logger))
	if err != nil {
		return nil, err
	}
	defaults := []rag.Option{rag.WithLogger(kb.logger), rag.WithAssembler(assembler)}
	return rag.NewEngine(kb.retriever, kb.repos.Conversations, append(defaults, opts...)...)
}

// NewChatbot creates a chatbot that records turns and analytics in this
// knowledge base.
func (kb *KnowledgeBase) NewChatbot(opts ...chat.Option) (*chat.Bot, error) {
	engine, err := kb.NewEngine()
	if err != nil {
		return nil, err
	}
	defaults := []chat.Option{chat.WithLogger(kb.logger), chat.WithAnalytics(kb.repos.Analytics)}
	return chat.NewBot(engine, kb.provider.Generator(), kb.repos.Conversations, append(defaults, opts...)...)
}

// NewIngestionPipeline creates a pipeline whose corpus updates invalidate
// the shared retriever's cache.
func (kb *KnowledgeBase) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	defaults := []ingestion.Option{
		ingestion.WithLogger(kb.logger),
		ingestion.WithOnCorpusUpdate(kb.retriever.Invalidate),
	}
	return ingestion.NewPipeline(kb.repos.Passages, kb.provider.Embedder(), append(defaults, opts...)...)
}

// NewReembedder creates a checkpointed re-embedder whose batches invalidate
// the shared retriever's cache.
func (kb *KnowledgeBase) NewReembedder(opts ...reembed.Option) (*reembed.Reembedder, error) {
	defaults := []reembed.Option{
		reembed.WithLogger(kb.logger),
		reembed.WithCheckpoints(kb.repos.Checkpoints),
		reembed.WithOnCorpusUpdate(kb.retriever.Invalidate),
	}
	return reembed.NewReembedder(kb.repos.Passages, kb.provider.Embedder(), append(defaults, opts...)...)
}

// Stats describes the contents of a knowledge base.
type Stats struct {
	Passages         int
	EmbeddedPassages int
	Sources          []string
	Sessions         int
}

// Stats counts passages, sources and sessions.
func (kb *KnowledgeBase) Stats(ctx context.Context) (*Stats, error) {
	total, embedded, err := kb.repos.Passages.CountPassages(ctx)
	if err != nil {
		return nil, err
	}
	sources, err := kb.repos.Passages.Sources(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := kb.repos.Conversations.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Passages:         total,
		EmbeddedPassages: embedded,
		Sources:          sources,
		Sessions:         len(sessions),
	}, nil
}

// AnswerContext is a convenience wrapper for a one-off engine call.
func (kb *KnowledgeBase) AnswerContext(ctx context.Context, req rag.Request) (*core.PromptContext, error) {
	engine, err := kb.NewEngine()
	if err != nil {
		return nil, err
	}
	return engine.AnswerContext(ctx, req)
}
