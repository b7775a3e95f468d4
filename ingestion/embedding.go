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
	"slices"

	"github.com/poiesic/groundwork/ai"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage"
)

// embeddingProcessor attaches embedding vectors to passages.
type embeddingProcessor struct {
	passages storage.PassageRepository
	embedder ai.Embedder
	logger   *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

func newEmbeddingProcessor(passages storage.PassageRepository, embedder ai.Embedder, logger *slog.Logger) (*embeddingProcessor, error) {
	if passages == nil {
		return nil, ErrPassageRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		passages: passages,
		embedder: embedder,
		logger:   logger.With("processor", "embeddings"),
	}, nil
}

// process embeds the passages identified by ids. Passages removed since
// they were queued are skipped.
func (ep *embeddingProcessor) process(ctx context.Context, ids ...core.ID) error {
	slices.Sort(ids)

	passages, err := ep.passages.GetPassages(ctx, ids...)
	if err != nil {
		return err
	}
	if len(passages) == 0 {
		return nil
	}

	texts := make([]string, len(passages))
	for i, passage := range passages {
		texts[i] = passage.Text
	}

	ep.logger.Debug("generating embeddings", "passages", len(texts))
	vectors, err := ep.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(passages) {
		return fmt.Errorf("%w: expected %d vectors, received %d", core.ErrEmbedding, len(passages), len(vectors))
	}

	for i := range vectors {
		if len(vectors[i]) == 0 {
			return fmt.Errorf("%w: empty vector for passage %d", core.ErrInvalidVector, passages[i].Id)
		}
		passages[i].Vector = vectors[i]
	}

	_, err = ep.passages.UpdatePassages(ctx, passages...)
	if errors.Is(err, storage.ErrNotFound) {
		return ep.updateRemaining(ctx, passages)
	}
	return err
}

// updateRemaining stores the vectors of the passages that still exist after
// some were removed by a concurrent re-ingest.
func (ep *embeddingProcessor) updateRemaining(ctx context.Context, passages []*core.Passage) error {
	ids := make([]core.ID, len(passages))
	for i, passage := range passages {
		ids[i] = passage.Id
	}
	current, err := ep.passages.GetPassages(ctx, ids...)
	if err != nil {
		return err
	}
	exists := make(map[core.ID]bool, len(current))
	for _, passage := range current {
		exists[passage.Id] = true
	}
	remaining := slices.DeleteFunc(passages, func(passage *core.Passage) bool {
		return !exists[passage.Id]
	})
	ep.logger.Debug("passages removed while embedding", "removed", len(ids)-len(remaining))
	if len(remaining) == 0 {
		return nil
	}
	_, err = ep.passages.UpdatePassages(ctx, remaining...)
	return err
}
