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
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/groundwork/ai"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage"
)

// CheckpointName identifies re-embedding progress in the checkpoint repository.
const CheckpointName = "reembed"

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of passages embedded per request
	BatchSize int

	// ReportInterval is how often to report progress (number of passages)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Resume continues after the last checkpointed passage instead of starting over
	Resume bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// Reembedder regenerates the vectors of every passage in ID order.
type Reembedder struct {
	passages    storage.PassageRepository
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	onUpdate    func()
	processor   *batchProcessor
	logger      *slog.Logger
}

// Option configures a Reembedder.
type Option func(*Reembedder) error

// WithConfig replaces DefaultConfig.
func WithConfig(config *Config) Option {
	return func(r *Reembedder) error {
		if config == nil {
			config = DefaultConfig()
		}
		if config.BatchSize < 0 || config.MaxRetries < 0 || config.RetryDelay < 0 {
			return fmt.Errorf("%w: reembed batch size, retries and delay cannot be negative", core.ErrConfig)
		}
		r.config = config
		return nil
	}
}

// WithCheckpoints persists progress after every batch.
func WithCheckpoints(checkpoints storage.CheckpointRepository) Option {
	return func(r *Reembedder) error {
		r.checkpoints = checkpoints
		return nil
	}
}

// WithProgress writes a progress line to w, typically os.Stderr.
func WithProgress(w io.Writer) Option {
	return func(r *Reembedder) error {
		r.progress = w
		return nil
	}
}

// WithOnCorpusUpdate registers fn to run after every stored batch.
func WithOnCorpusUpdate(fn func()) Option {
	return func(r *Reembedder) error {
		r.onUpdate = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewReembedder creates a new reembedder.
func NewReembedder(passages storage.PassageRepository, embedder ai.Embedder, opts ...Option) (*Reembedder, error) {
	if passages == nil {
		return nil, ErrPassageRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Reembedder{
		passages: passages,
		config:   DefaultConfig(),
		progress: io.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.config.Resume && r.checkpoints == nil {
		return nil, ErrCheckpointRepositoryRequired
	}
	if r.progress == nil {
		r.progress = io.Discard
	}
	if r.config.BatchSize == 0 {
		r.config.BatchSize = DefaultBatchSize
	}
	r.logger = r.logger.With("component", "reembed")

	maxRetries := r.config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 1
	}
	r.processor = &batchProcessor{
		updater:    passages,
		embedder:   embedder,
		maxRetries: maxRetries,
		retryDelay: r.config.RetryDelay,
		logger:     r.logger,
	}
	return r, nil
}

// Run re-embeds every passage. A failed run leaves its checkpoint behind
// so a later run with Resume continues after the last stored batch.
// The checkpoint is removed once every passage has been processed.
func (r *Reembedder) Run(ctx context.Context) error {
	total, _, err := r.passages.CountPassages(ctx)
	if err != nil {
		return fmt.Errorf("failed to count passages: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No passages found (0 passages)\n")
		return nil
	}

	var after core.ID
	if r.config.Resume {
		checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, CheckpointName)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if checkpoint != nil {
			after = checkpoint.LastID
			fmt.Fprintf(r.progress, "Resuming after passage %d (checkpointed %s)\n",
				after, checkpoint.UpdatedAt.Format(time.RFC3339))
		}
	}

	fmt.Fprintf(r.progress, "Re-embedding %d passages (batch size: %d)\n", total, r.config.BatchSize)
	tracker := newProgressTracker(r.progress, total, 0, r.config.ReportInterval)

	processed := 0
	for batch, err := range batches(ctx, r.passages, after, r.config.BatchSize) {
		if err != nil {
			return err
		}
		if err := r.processor.process(ctx, batch); err != nil {
			return fmt.Errorf("failed to process batch after passage %d: %w", after, err)
		}
		after = batch[len(batch)-1].Id
		if err := r.saveCheckpoint(ctx, after); err != nil {
			return err
		}
		if r.onUpdate != nil {
			r.onUpdate()
		}
		processed += len(batch)
		tracker.add(len(batch))
	}
	tracker.finish()

	if r.checkpoints != nil {
		if err := r.checkpoints.DeleteCheckpoint(ctx, CheckpointName); err != nil {
			return fmt.Errorf("failed to clear checkpoint: %w", err)
		}
	}

	elapsed := tracker.elapsed()
	r.logger.Info("re-embedding complete", "passages", processed, "elapsed", elapsed)
	fmt.Fprintf(r.progress, "Re-embedding complete. Processed %d passages in %v (%.1f passages/sec)\n",
		processed, elapsed.Round(time.Millisecond), float64(processed)/max(elapsed.Seconds(), 1e-9))
	return nil
}

func (r *Reembedder) saveCheckpoint(ctx context.Context, lastID core.ID) error {
	if r.checkpoints == nil {
		return nil
	}
	err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		ProcessorType: CheckpointName,
		LastID:        lastID,
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
