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

package chat

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/groundwork/ai"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/rag"
	"github.com/poiesic/groundwork/storage"
)

// ExcerptRunes is the length of the passage excerpt reported per source.
const ExcerptRunes = 200

// ContextEngine builds prompt contexts.
type ContextEngine interface {
	AnswerContext(ctx context.Context, req rag.Request) (*core.PromptContext, error)
}

// TurnRecorder stores answered turns.
type TurnRecorder interface {
	AppendTurn(ctx context.Context, turn *core.ConversationTurn) (*core.ConversationTurn, error)
}

// Options controls a single question.
type Options struct {
	SessionID      string
	TopK           int
	UseHybrid      bool
	Weights        *core.Weights
	Budget         int
	IncludeHistory bool
}

// DefaultOptions returns options for a hybrid, history-aware question in session.
func DefaultOptions(sessionID string) Options {
	return Options{
		SessionID:      sessionID,
		TopK:           rag.DefaultTopK,
		UseHybrid:      true,
		IncludeHistory: true,
	}
}

func (o Options) request(question string) rag.Request {
	return rag.Request{
		Query:          question,
		SessionID:      o.SessionID,
		TopK:           o.TopK,
		UseHybrid:      o.UseHybrid,
		Weights:        o.Weights,
		Budget:         o.Budget,
		IncludeHistory: o.IncludeHistory,
	}
}

// Source is a passage the answer was grounded on.
type Source struct {
	Source  string
	Excerpt string
	Score   float64
}

// Response is a complete answer.
type Response struct {
	Answer       string
	Sources      []Source
	SessionID    string
	ResponseTime time.Duration
	Context      *core.PromptContext
}

// Stream is an answer being generated. Fragments is lazy, finite and can
// be ranged over once. The turn is recorded when Fragments is drained.
type Stream struct {
	Sources   []Source
	SessionID string
	Context   *core.PromptContext
	Fragments iter.Seq2[string, error]
}

// Bot answers questions grounded on the knowledge base.
// It is safe for concurrent use.
type Bot struct {
	engine        ContextEngine
	generator     ai.Generator
	conversations TurnRecorder
	analytics     storage.AnalyticsRepository
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Bot.
type Option func(*Bot) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bot) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// WithAnalytics records queries, sessions, feedback and errors.
func WithAnalytics(analytics storage.AnalyticsRepository) Option {
	return func(b *Bot) error {
		b.analytics = analytics
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) error {
		if now != nil {
			b.now = now
		}
		return nil
	}
}

// NewBot creates a bot.
func NewBot(engine ContextEngine, generator ai.Generator, conversations TurnRecorder, opts ...Option) (*Bot, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if conversations == nil {
		return nil, ErrConversationsRequired
	}

	b := &Bot{
		engine:        engine,
		generator:     generator,
		conversations: conversations,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "chatbot")
	return b, nil
}

// NewSessionID returns a fresh random session ID.
func NewSessionID() string {
	return uuid.NewString()
}

// StartSession returns a new session ID and counts the session.
func (b *Bot) StartSession(ctx context.Context) string {
	sessionID := NewSessionID()
	if b.analytics != nil {
		if err := b.analytics.RecordSession(ctx, b.now()); err != nil {
			b.logger.Warn("failed to record session", "err", err)
		}
	}
	return sessionID
}

// Feedback counts positive or negative feedback on an answer.
func (b *Bot) Feedback(ctx context.Context, positive bool) error {
	if b.analytics == nil {
		return nil
	}
	return b.analytics.RecordFeedback(ctx, b.now(), positive)
}

// prepare validates the question and builds its prompt context.
func (b *Bot) prepare(ctx context.Context, question string, opts Options) (*core.PromptContext, string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, "", ErrEmptyQuestion
	}
	pc, err := b.engine.AnswerContext(ctx, opts.request(question))
	if err != nil {
		b.recordError(ctx)
		return nil, "", err
	}
	return pc, RenderPrompt(question, pc), nil
}

// Chat answers question and records the turn when history is enabled.
func (b *Bot) Chat(ctx context.Context, question string, opts Options) (*Response, error) {
	start := b.now()

	pc, rendered, err := b.prepare(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	answer, err := b.generator.Generate(ctx, rendered)
	if err != nil {
		b.logger.Error("failed to generate answer", "session", opts.SessionID, "err", err)
		b.recordError(ctx)
		return nil, err
	}

	response := &Response{
		Answer:       answer,
		Sources:      sourcesOf(pc),
		SessionID:    opts.SessionID,
		ResponseTime: b.now().Sub(start),
		Context:      pc,
	}
	b.finish(ctx, question, answer, opts, response.Sources, response.ResponseTime)
	return response, nil
}

// Stream builds the context, then returns the answer as a fragment stream.
// Retrieval errors are returned here; generation errors arrive through the
// stream. The turn is recorded only if the stream is consumed to the end.
func (b *Bot) Stream(ctx context.Context, question string, opts Options) (*Stream, error) {
	start := b.now()

	pc, rendered, err := b.prepare(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	sources := sourcesOf(pc)
	fragments := b.generator.Stream(ctx, rendered)

	return &Stream{
		Sources:   sources,
		SessionID: opts.SessionID,
		Context:   pc,
		Fragments: ai.OnceStream(func(yield func(string, error) bool) {
			var answer strings.Builder
			for fragment, err := range fragments {
				if err != nil {
					b.logger.Error("answer stream failed", "session", opts.SessionID, "err", err)
					b.recordError(ctx)
					yield("", err)
					return
				}
				answer.WriteString(fragment)
				if !yield(fragment, nil) {
					b.logger.Debug("answer stream abandoned", "session", opts.SessionID)
					return
				}
			}
			b.finish(ctx, question, answer.String(), opts, sources, b.now().Sub(start))
		}),
	}, nil
}

// finish records the turn and the query.
func (b *Bot) finish(ctx context.Context, question, answer string, opts Options, sources []Source, elapsed time.Duration) {
	if opts.IncludeHistory && opts.SessionID != "" {
		turn := &core.ConversationTurn{
			SessionID: opts.SessionID,
			Question:  strings.TrimSpace(question),
			Answer:    answer,
			Sources:   sourceNames(sources),
			Timestamp: b.now(),
		}
		if _, err := b.conversations.AppendTurn(ctx, turn); err != nil {
			b.logger.Error("failed to record conversation turn", "session", opts.SessionID, "err", err)
		}
	}
	if b.analytics != nil {
		if err := b.analytics.RecordQuery(ctx, b.now(), elapsed, len(sources)); err != nil {
			b.logger.Warn("failed to record query", "err", err)
		}
	}
}

func (b *Bot) recordError(ctx context.Context) {
	if b.analytics == nil {
		return
	}
	if err := b.analytics.RecordError(ctx, b.now()); err != nil {
		b.logger.Warn("failed to record error", "err", err)
	}
}

func sourcesOf(pc *core.PromptContext) []Source {
	sources := make([]Source, 0, len(pc.Passages))
	for _, sp := range pc.Passages {
		sources = append(sources, Source{
			Source:  sp.Passage.Source,
			Excerpt: excerpt(sp.Passage.Text, ExcerptRunes),
			Score:   sp.FinalScore,
		})
	}
	return sources
}

func sourceNames(sources []Source) []string {
	names := make([]string, 0, len(sources))
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		if !seen[s.Source] {
			seen[s.Source] = true
			names = append(names, s.Source)
		}
	}
	return names
}

func excerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

// String formats a source the way it is cited to users.
func (s Source) String() string {
	return fmt.Sprintf("%s (%.3f)", s.Source, s.Score)
}
