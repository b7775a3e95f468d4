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

package ai

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrStreamConsumed is yielded when a generation stream is ranged over a second time.
	ErrStreamConsumed = errors.New("stream already consumed")

	// ErrGeneration wraps failures reported by the generation service.
	ErrGeneration = errors.New("generation failed")
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces answers from a fully rendered prompt.
type Generator interface {
	// Generate returns the complete answer for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Stream returns the answer as a lazy sequence of text fragments.
	// Generation starts when the sequence is first ranged over and stops
	// when the consumer breaks out or ctx is canceled. The sequence is
	// finite and cannot be restarted: ranging over it again yields
	// ErrStreamConsumed. A generation failure is yielded as the final
	// element with a non-nil error.
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// AIProvider aggregates the AI services used by groundwork.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the answer generation service.
	// The returned Generator is safe for concurrent use.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
