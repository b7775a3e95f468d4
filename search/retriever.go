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

package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/groundwork/ai"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCandidateMultiplier sizes the semantic candidate set as a multiple of topK.
	DefaultCandidateMultiplier = 3

	// DefaultLexicalMultiplier sizes the lexical candidate set as a multiple of topK.
	DefaultLexicalMultiplier = 2

	// DefaultEmbedTimeout bounds the query embedding call.
	DefaultEmbedTimeout = 30 * time.Second

	// DefaultIndexTimeout bounds each vector index or corpus read.
	DefaultIndexTimeout = 10 * time.Second
)

// PassageIndex is the read side of the passage store used by the Retriever.
type PassageIndex interface {
	storage.VectorIndex
	storage.Corpus
}

// Retriever ranks passages for a query by fusing semantic and lexical scores.
// It is safe for concurrent use.
type Retriever struct {
	index               PassageIndex
	embedder            ai.Embedder
	lexical             *LexicalScorer
	cache               *PassageCache
	cacheSize           int
	candidateMultiplier int
	lexicalMultiplier   int
	embedTimeout        time.Duration
	indexTimeout        time.Duration
	logger              *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithCandidateMultiplier sets N_sem = topK * n. Values below 1 are rejected.
// Default is DefaultCandidateMultiplier.
func WithCandidateMultiplier(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("%w: candidate multiplier must be at least 1, got %d", ErrInvalidOption, n)
		}
		r.candidateMultiplier = n
		return nil
	}
}

// WithLexicalMultiplier sets N_lex = topK * n. Zero disables the lexical
// corpus scan; semantic candidates are still scored lexically.
// Default is DefaultLexicalMultiplier.
func WithLexicalMultiplier(n int) Option {
	return func(r *Retriever) error {
		if n < 0 {
			return fmt.Errorf("%w: lexical multiplier cannot be negative, got %d", ErrInvalidOption, n)
		}
		r.lexicalMultiplier = n
		return nil
	}
}

// WithEmbedTimeout bounds the query embedding call. Zero means no timeout.
func WithEmbedTimeout(d time.Duration) Option {
	return func(r *Retriever) error {
		if d < 0 {
			return fmt.Errorf("%w: embed timeout cannot be negative", ErrInvalidOption)
		}
		r.embedTimeout = d
		return nil
	}
}

// WithIndexTimeout bounds each index and corpus read. Zero means no timeout.
func WithIndexTimeout(d time.Duration) Option {
	return func(r *Retriever) error {
		if d < 0 {
			return fmt.Errorf("%w: index timeout cannot be negative", ErrInvalidOption)
		}
		r.indexTimeout = d
		return nil
	}
}

// WithPassageCacheSize sets how many passages are cached.
// Default is DefaultPassageCacheSize.
func WithPassageCacheSize(size int) Option {
	return func(r *Retriever) error {
		if size < 1 {
			return fmt.Errorf("%w: passage cache size must be positive, got %d", ErrInvalidOption, size)
		}
		r.cacheSize = size
		return nil
	}
}

// WithLexicalScorer replaces the default lexical scorer.
func WithLexicalScorer(scorer *LexicalScorer) Option {
	return func(r *Retriever) error {
		if scorer != nil {
			r.lexical = scorer
		}
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(index PassageIndex, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	lexical, _ := NewLexicalScorer()
	r := &Retriever{
		index:               index,
		embedder:            embedder,
		lexical:             lexical,
		cacheSize:           DefaultPassageCacheSize,
		candidateMultiplier: DefaultCandidateMultiplier,
		lexicalMultiplier:   DefaultLexicalMultiplier,
		embedTimeout:        DefaultEmbedTimeout,
		indexTimeout:        DefaultIndexTimeout,
		logger:              slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	cache, err := NewPassageCache(r.cacheSize)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	r.logger = r.logger.With("component", "retriever")

	return r, nil
}

// Invalidate drops all cached passages. Call it whenever the corpus changes.
func (r *Retriever) Invalidate() {
	r.cache.Invalidate()
	r.logger.Debug("passage cache invalidated")
}

// Retrieve returns up to topK passages for query, ranked by fused score.
// When useHybrid is false the lexical score is 0 and the final score equals
// the semantic score. A zero Fusion falls back to DefaultFusion.
func (r *Retriever) Retrieve(ctx context.Context, query core.Query, topK int, useHybrid bool, fusion Fusion) (*core.RetrievalResult, error) {
	return r.RetrieveWithMonitor(ctx, query, topK, useHybrid, fusion, nil)
}

// lexicalHit is a passage found by the corpus scan with its lexical score.
type lexicalHit struct {
	passage *core.Passage
	score   float64
}

// RetrieveWithMonitor is Retrieve with a monitor receiving a callback at each stage.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, query core.Query, topK int, useHybrid bool, fusion Fusion, monitor RetrievalMonitor) (*core.RetrievalResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if topK < 0 {
		return nil, fmt.Errorf("%w: topK cannot be negative, got %d", core.ErrConfig, topK)
	}
	if fusion.IsZero() {
		fusion = DefaultFusion()
	}
	if !useHybrid {
		fusion = SemanticOnly()
	}

	text := query.RetrievalText()
	monitor.Start(text)

	if topK == 0 {
		result := &core.RetrievalResult{Passages: []*core.ScoredPassage{}}
		monitor.Finish(result)
		return result, nil
	}

	nSem := max(topK*r.candidateMultiplier, topK)
	nLex := 0
	if useHybrid {
		nLex = topK * r.lexicalMultiplier
	}

	var (
		queryVector []float32
		semantic    []*core.Passage
		lexical     []lexicalHit
	)

	// Semantic and lexical candidate fetches are independent.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vector, err := r.embedQuery(gctx, text)
		if err != nil {
			return err
		}
		queryVector = vector
		semantic, err = r.semanticCandidates(gctx, vector, nSem)
		return err
	})
	if nLex > 0 {
		g.Go(func() error {
			var err error
			lexical, err = r.lexicalCandidates(gctx, text, nLex)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Error("retrieval failed", "topK", topK, "hybrid", useHybrid, "err", err)
		return nil, err
	}

	monitor.AfterEmbedding(len(queryVector))
	monitor.AfterSemanticSearch(passageIDs(semantic))
	lexicalIDs := make([]core.ID, len(lexical))
	for i, hit := range lexical {
		lexicalIDs[i] = hit.passage.Id
	}
	monitor.AfterLexicalSearch(lexicalIDs)

	// Semantic candidates keep their index rank; lexical-only candidates
	// rank after all of them, in lexical order.
	candidates := make([]*core.Passage, 0, len(semantic)+len(lexical))
	candidates = append(candidates, semantic...)
	for _, hit := range lexical {
		candidates = append(candidates, hit.passage)
	}

	queryTokens := r.lexical.Tokens(text)
	best := make(map[core.ID]*core.ScoredPassage, len(candidates))
	order := make([]core.ID, 0, len(candidates))
	for rank, passage := range candidates {
		semanticScore, err := SemanticScore(queryVector, passage.Vector)
		if err != nil {
			r.logger.Error("passage vector unusable", "passageID", passage.Id, "source", passage.Source, "err", err)
			return nil, fmt.Errorf("passage %d: %w", passage.Id, err)
		}
		var lexicalScore float64
		if useHybrid {
			lexicalScore = r.lexical.scoreSets(queryTokens, passage.Text)
		}
		scored := &core.ScoredPassage{
			Passage:       passage,
			SemanticScore: semanticScore,
			LexicalScore:  lexicalScore,
			FinalScore:    fusion.Score(semanticScore, lexicalScore),
			SemanticRank:  rank,
		}
		monitor.Scored(scored)

		existing, seen := best[passage.Id]
		if !seen {
			order = append(order, passage.Id)
			best[passage.Id] = scored
		} else if scored.FinalScore > existing.FinalScore {
			best[passage.Id] = scored
		}
	}

	ranked := make([]*core.ScoredPassage, 0, len(order))
	for _, id := range order {
		ranked = append(ranked, best[id])
	}
	slices.SortStableFunc(ranked, func(a, b *core.ScoredPassage) int {
		if c := cmp.Compare(b.FinalScore, a.FinalScore); c != 0 {
			return c
		}
		return cmp.Compare(a.SemanticRank, b.SemanticRank)
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	result := &core.RetrievalResult{Passages: ranked}
	r.logger.Debug("retrieved passages",
		"semanticCandidates", len(semantic),
		"lexicalCandidates", len(lexical),
		"returned", len(ranked))
	monitor.Finish(result)
	return result, nil
}

func (r *Retriever) embedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, r.embedTimeout)
	defer cancel()

	vector, err := r.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, classifyEmbedError(ctx, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: embedder returned an empty query vector", core.ErrInvalidVector)
	}
	return vector, nil
}

// semanticCandidates returns the n nearest embedded passages in index order.
func (r *Retriever) semanticCandidates(ctx context.Context, vector []float32, n int) ([]*core.Passage, error) {
	gen := r.cache.Generation()

	indexCtx, cancel := withTimeout(ctx, r.indexTimeout)
	defer cancel()

	neighbors, err := r.index.Nearest(indexCtx, vector, n)
	if err != nil {
		return nil, classifyIndexError(indexCtx, err)
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]core.ID, len(neighbors))
	for i, neighbor := range neighbors {
		ids[i] = neighbor.PassageId
	}
	return r.resolve(indexCtx, gen, ids)
}

// resolve loads passages by ID through the cache, preserving the order of ids.
// IDs that no longer exist are skipped.
func (r *Retriever) resolve(ctx context.Context, gen uint64, ids []core.ID) ([]*core.Passage, error) {
	found := make(map[core.ID]*core.Passage, len(ids))
	var missing []core.ID
	for _, id := range ids {
		if p, ok := r.cache.Get(id); ok {
			found[id] = p
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		loaded, err := r.index.GetPassages(ctx, missing...)
		if err != nil {
			return nil, classifyIndexError(ctx, err)
		}
		r.cache.Add(gen, loaded...)
		for _, p := range loaded {
			found[p.Id] = p
		}
	}

	passages := make([]*core.Passage, 0, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			passages = append(passages, p)
		}
	}
	return passages, nil
}

// lexicalCancelCheck is how many passages the lexical scan scores between
// cancellation checks.
const lexicalCancelCheck = 256

// lexicalCandidates scans the corpus for the n embedded passages with the
// highest positive lexical score. Ties keep corpus order.
func (r *Retriever) lexicalCandidates(ctx context.Context, text string, n int) ([]lexicalHit, error) {
	queryTokens := r.lexical.Tokens(text)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	corpus, err := r.corpus(ctx)
	if err != nil {
		return nil, err
	}

	var hits []lexicalHit
	for i, p := range corpus {
		if i%lexicalCancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !p.Embedded() {
			continue
		}
		if score := r.lexical.scoreSets(queryTokens, p.Text); score > 0 {
			hits = append(hits, lexicalHit{passage: p, score: score})
		}
	}
	slices.SortStableFunc(hits, func(a, b lexicalHit) int {
		return cmp.Compare(b.score, a.score)
	})
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

// corpus returns the cached corpus snapshot, loading it on a miss.
func (r *Retriever) corpus(ctx context.Context) ([]*core.Passage, error) {
	if snapshot, ok := r.cache.Snapshot(); ok {
		return snapshot, nil
	}

	gen := r.cache.Generation()
	indexCtx, cancel := withTimeout(ctx, r.indexTimeout)
	defer cancel()

	all, err := r.index.AllPassages(indexCtx)
	if err != nil {
		return nil, classifyIndexError(indexCtx, err)
	}
	r.cache.SetSnapshot(gen, all)
	r.logger.Debug("corpus snapshot loaded", "passages", len(all))
	return all, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func passageIDs(passages []*core.Passage) []core.ID {
	ids := make([]core.ID, len(passages))
	for i, p := range passages {
		ids[i] = p.Id
	}
	return ids
}

// classifyEmbedError maps an embedding failure to the retrieval error taxonomy.
func classifyEmbedError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: embedding query: %w", core.ErrRetrievalTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, core.ErrEmbedding), errors.Is(err, core.ErrInvalidVector):
		return err
	default:
		return fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
}

// classifyIndexError maps a vector index or corpus failure to the retrieval error taxonomy.
func classifyIndexError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: querying index: %w", core.ErrRetrievalTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, storage.ErrDimensionMismatch), errors.Is(err, core.ErrInvalidVector):
		return fmt.Errorf("%w: %w", core.ErrInvalidVector, err)
	default:
		return fmt.Errorf("%w: %w", core.ErrRetrievalUnavailable, err)
	}
}
