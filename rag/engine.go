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

package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/prompt"
	"github.com/poiesic/groundwork/search"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTopK is the number of passages retrieved when a caller has no preference.
	DefaultTopK = 5

	// DefaultBudget is the context budget, in runes, used when a request leaves it unset.
	DefaultBudget = 8000
)

// Retriever ranks passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query core.Query, topK int, useHybrid bool, fusion search.Fusion) (*core.RetrievalResult, error)
}

// HistoryReader reads the most recent turns of a session, oldest first.
type HistoryReader interface {
	LastTurns(ctx context.Context, sessionID string, n int) ([]*core.ConversationTurn, error)
}

// Request is one AnswerContext call.
type Request struct {
	// Query is the user's question as typed.
	Query string

	// SessionID selects the conversation history. Empty means no history.
	SessionID string

	// TopK caps the number of passages. Zero yields a context built from history alone.
	TopK int

	// UseHybrid fuses lexical with semantic similarity. When false the final
	// score is the semantic score.
	UseHybrid bool

	// Weights overrides the default 0.7/0.3 split. Validated before any
	// external call.
	Weights *core.Weights

	// Budget is the maximum context size in runes. Zero means the engine default.
	Budget int

	// IncludeHistory renders recent turns and lets the rewriter use them.
	IncludeHistory bool
}

// Engine assembles prompt contexts for questions.
// It is safe for concurrent use.
type Engine struct {
	retriever Retriever
	history   HistoryReader
	assembler *prompt.Assembler
	rewriter  prompt.Rewriter
	budget    int
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithAssembler replaces the default context assembler.
func WithAssembler(assembler *prompt.Assembler) Option {
	return func(e *Engine) error {
		if assembler != nil {
			e.assembler = assembler
		}
		return nil
	}
}

// WithRewriter sets the query rewriter.
// Default is prompt.HistoryRewriter.
func WithRewriter(rewriter prompt.Rewriter) Option {
	return func(e *Engine) error {
		if rewriter == nil {
			rewriter = prompt.PassthroughRewriter{}
		}
		e.rewriter = rewriter
		return nil
	}
}

// WithDefaultBudget sets the budget used when a request leaves it unset.
// Default is DefaultBudget.
func WithDefaultBudget(budget int) Option {
	return func(e *Engine) error {
		if budget <= 0 {
			return fmt.Errorf("%w: default budget must be positive, got %d", core.ErrConfig, budget)
		}
		e.budget = budget
		return nil
	}
}

// NewEngine creates an engine.
func NewEngine(retriever Retriever, history HistoryReader, opts ...Option) (*Engine, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if history == nil {
		return nil, ErrHistoryRequired
	}

	e := &Engine{
		retriever: retriever,
		history:   history,
		rewriter:  prompt.HistoryRewriter{},
		budget:    DefaultBudget,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.assembler == nil {
		assembler, err := prompt.NewAssembler(prompt.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.assembler = assembler
	}
	e.logger = e.logger.With("component", "rag-engine")

	return e, nil
}

// validate checks the request and resolves its fusion and budget.
// Nothing external is called before it succeeds.
func (e *Engine) validate(req Request) (search.Fusion, int, error) {
	if strings.TrimSpace(req.Query) == "" {
		return search.Fusion{}, 0, fmt.Errorf("%w: query is empty", core.ErrConfig)
	}
	if req.TopK < 0 {
		return search.Fusion{}, 0, fmt.Errorf("%w: topK cannot be negative, got %d", core.ErrConfig, req.TopK)
	}
	budget := req.Budget
	if budget == 0 {
		budget = e.budget
	}
	if budget < 0 {
		return search.Fusion{}, 0, fmt.Errorf("%w: budget cannot be negative, got %d", core.ErrConfig, budget)
	}

	fusion := search.DefaultFusion()
	if req.Weights != nil {
		var err error
		fusion, err = search.NewFusion(*req.Weights)
		if err != nil {
			return search.Fusion{}, 0, err
		}
	}
	return fusion, budget, nil
}

// AnswerContext retrieves passages for req.Query and assembles them, with
// the session's recent turns, into a context no larger than the budget.
//
// An empty corpus yields a context built from history alone. Errors carry
// the core error taxonomy: core.ErrConfig, core.ErrInvalidVector,
// core.ErrRetrievalUnavailable, core.ErrRetrievalTimeout, core.ErrEmbedding,
// plus ErrHistoryUnavailable.
func (e *Engine) AnswerContext(ctx context.Context, req Request) (*core.PromptContext, error) {
	fusion, budget, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	withHistory := req.IncludeHistory && req.SessionID != "" && e.assembler.HistoryLimit() > 0
	_, passthrough := e.rewriter.(prompt.PassthroughRewriter)

	var (
		history []*core.ConversationTurn
		result  *core.RetrievalResult
	)
	query := core.Query{Text: req.Query}

	if withHistory && !passthrough {
		// The rewritten query depends on history, so the read comes first.
		history, err = e.readHistory(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if rewritten := e.rewriter.Rewrite(req.Query, history); rewritten != req.Query {
			query.Rewritten = rewritten
		}
		result, err = e.retriever.Retrieve(ctx, query, req.TopK, req.UseHybrid, fusion)
		if err != nil {
			return nil, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		if withHistory {
			g.Go(func() error {
				var err error
				history, err = e.readHistory(gctx, req.SessionID)
				return err
			})
		}
		g.Go(func() error {
			var err error
			result, err = e.retriever.Retrieve(gctx, query, req.TopK, req.UseHybrid, fusion)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	promptContext, err := e.assembler.Assemble(result, history, budget)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("context assembled",
		"session", req.SessionID,
		"rewritten", query.Rewritten != "",
		"passages", len(promptContext.Passages),
		"turns", len(promptContext.Turns),
		"runes", len([]rune(promptContext.Text)))
	return promptContext, nil
}

func (e *Engine) readHistory(ctx context.Context, sessionID string) ([]*core.ConversationTurn, error) {
	turns, err := e.history.LastTurns(ctx, sessionID, e.assembler.HistoryLimit())
	if err != nil {
		e.logger.Error("failed to read conversation history", "session", sessionID, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}
	return turns, nil
}
