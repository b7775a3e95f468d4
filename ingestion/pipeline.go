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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/groundwork/ai"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage"
)

// DefaultBatchSize is the number of passages embedded per request.
const DefaultBatchSize = 32

// Pipeline chunks documents into passages and embeds them on a worker pool.
// It is safe for concurrent use.
type Pipeline struct {
	passages      storage.PassageRepository
	chunker       Chunker
	embeddingPool *ants.Pool
	embeddingProc processor
	batchSize     int
	extensions    []string
	onUpdate      func()
	logger        *slog.Logger

	pending sync.WaitGroup
	mu      sync.Mutex
	errs    []error
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.embeddingPool != nil {
			p.embeddingPool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embeddingPool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithChunker replaces the default recursive chunker.
func WithChunker(chunker Chunker) Option {
	return func(p *Pipeline) error {
		if chunker == nil {
			return fmt.Errorf("%w: chunker cannot be nil", core.ErrConfig)
		}
		p.chunker = chunker
		return nil
	}
}

// WithBatchSize sets how many passages are embedded per request.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("%w: batch size must be positive, got %d", core.ErrConfig, size)
		}
		p.batchSize = size
		return nil
	}
}

// WithExtensions sets the file extensions IngestDir loads.
// Default is DefaultExtensions.
func WithExtensions(extensions ...string) Option {
	return func(p *Pipeline) error {
		if len(extensions) > 0 {
			p.extensions = extensions
		}
		return nil
	}
}

// WithOnCorpusUpdate registers fn to run whenever the set of embedded
// passages changes. Typically wired to search.Retriever.Invalidate.
func WithOnCorpusUpdate(fn func()) Option {
	return func(p *Pipeline) error {
		p.onUpdate = fn
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(passages storage.PassageRepository, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if passages == nil {
		return nil, ErrPassageRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	chunker, err := NewRecursiveChunker(DefaultChunkSize, DefaultChunkOverlap)
	if err != nil {
		pool.Release()
		return nil, err
	}

	p := &Pipeline{
		passages:      passages,
		chunker:       chunker,
		embeddingPool: pool,
		batchSize:     DefaultBatchSize,
		extensions:    DefaultExtensions,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	embeddingProc, err := newEmbeddingProcessor(passages, embedder, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.embeddingProc = embeddingProc

	return p, nil
}

// Ingest stores the chunks of each document, replacing chunks previously
// ingested from the same source, and queues new chunks for embedding.
// Chunks whose text is unchanged keep their existing vectors.
// It returns the number of passages the documents now consist of.
// Embedding runs asynchronously; call Wait for its outcome.
func (p *Pipeline) Ingest(ctx context.Context, docs ...Document) (int, error) {
	stored := 0
	for _, doc := range docs {
		n, err := p.ingestDocument(ctx, doc)
		if err != nil {
			return stored, fmt.Errorf("ingest %s: %w", doc.Source, err)
		}
		stored += n
	}
	return stored, nil
}

func (p *Pipeline) ingestDocument(ctx context.Context, doc Document) (int, error) {
	if strings.TrimSpace(doc.Source) == "" {
		return 0, core.ErrEmptySource
	}

	chunks, err := p.chunker.Split(doc.Text)
	if err != nil {
		return 0, err
	}

	seen := make(map[core.ID]bool, len(chunks))
	ids := make([]core.ID, 0, len(chunks))
	passages := make([]*core.Passage, 0, len(chunks))
	for _, chunk := range chunks {
		id := core.PassageID(doc.Source, chunk)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		passages = append(passages, &core.Passage{Id: id, Source: doc.Source, Text: chunk})
	}

	previous, err := p.passages.PassageIDsBySource(ctx, doc.Source)
	if err != nil {
		return 0, err
	}
	var stale []core.ID
	for _, id := range previous {
		if !seen[id] {
			stale = append(stale, id)
		}
	}

	existing, err := p.passages.GetPassages(ctx, ids...)
	if err != nil {
		return 0, err
	}
	embedded := make(map[core.ID]bool, len(existing))
	for _, passage := range existing {
		if passage.Embedded() {
			embedded[passage.Id] = true
		}
	}
	fresh := slices.DeleteFunc(passages, func(passage *core.Passage) bool {
		return embedded[passage.Id]
	})

	if len(stale) > 0 {
		if err := p.passages.DeletePassages(ctx, stale...); err != nil {
			return 0, err
		}
		p.notify()
	}
	if len(fresh) == 0 {
		p.logger.Debug("document unchanged", "source", doc.Source, "passages", len(ids), "removed", len(stale))
		return len(ids), nil
	}

	added, err := p.passages.AddPassages(ctx, fresh...)
	if err != nil {
		return 0, err
	}
	queued := make([]core.ID, len(added))
	for i, passage := range added {
		queued[i] = passage.Id
	}

	p.logger.Info("ingested document", "source", doc.Source, "passages", len(ids), "new", len(queued), "removed", len(stale))
	return len(ids), p.submit(context.WithoutCancel(ctx), queued)
}

// submit queues ids for embedding in batches. The batch context outlives
// the caller's cancellation so queued work completes.
func (p *Pipeline) submit(ctx context.Context, ids []core.ID) error {
	for batch := range slices.Chunk(ids, p.batchSize) {
		batch = slices.Clone(batch)
		p.pending.Add(1)
		err := p.embeddingPool.Submit(func() {
			defer p.pending.Done()
			if err := p.embeddingProc.process(ctx, batch...); err != nil {
				p.logger.Error("error processing embeddings", "passages", len(batch), "err", err)
				p.fail(err)
				return
			}
			p.notify()
		})
		if err != nil {
			p.pending.Done()
			return err
		}
	}
	return nil
}

// IngestDir loads every matching document under dir and ingests it.
// Unreadable files are reported in the returned error after the rest are ingested.
func (p *Pipeline) IngestDir(ctx context.Context, dir string) (int, error) {
	docs, loadErr := LoadDocuments(dir, p.extensions...)
	if len(docs) == 0 && loadErr != nil {
		return 0, loadErr
	}
	stored, err := p.Ingest(ctx, docs...)
	return stored, errors.Join(err, loadErr)
}

// RemoveSource deletes every passage of source and returns how many were removed.
func (p *Pipeline) RemoveSource(ctx context.Context, source string) (int, error) {
	removed, err := p.passages.DeleteSource(ctx, source)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		p.logger.Info("removed source", "source", source, "passages", removed)
		p.notify()
	}
	return removed, nil
}

// Wait blocks until every queued embedding batch has finished and returns
// the errors of the batches that failed since the previous Wait.
func (p *Pipeline) Wait() error {
	p.pending.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	err := errors.Join(p.errs...)
	p.errs = nil
	return err
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
}

func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
}

func (p *Pipeline) notify() {
	if p.onUpdate != nil {
		p.onUpdate()
	}
}
