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


package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/groundwork/ai"
	"github.com/poiesic/groundwork/core"
)

// PassageUpdater stores re-embedded passages.
type PassageUpdater interface {
	UpdatePassages(ctx context.Context, passages ...*core.Passage) ([]*core.Passage, error)
}

// batchProcessor re-embeds one batch of passages.
type batchProcessor struct {
	updater    PassageUpdater
	embedder   ai.Embedder
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// process embeds passages with retry, normalizes the vectors and stores them.
func (bp *batchProcessor) process(ctx context.Context, passages []*core.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	texts := make([]string, len(passages))
	for i, passage := range passages {
		texts[i] = passage.Text
	}

	var vectors [][]float32
	err := retryWithBackoff(ctx, bp.logger, bp.maxRetries, bp.retryDelay, func() error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}
	if len(vectors) != len(passages) {
		return fmt.Errorf("%w: expected %d vectors, got %d", core.ErrEmbedding, len(passages), len(vectors))
	}

	for i, passage := range passages {
		if len(vectors[i]) == 0 {
			return fmt.Errorf("%w: empty vector for passage %d", core.ErrInvalidVector, passage.Id)
		}
		passage.Vector = core.NormalizeVector(vectors[i])
	}

	if _, err := bp.updater.UpdatePassages(ctx, passages...); err != nil {
		return fmt.Errorf("failed to update passages: %w", err)
	}
	return nil
}
