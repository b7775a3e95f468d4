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

package openai

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/poiesic/groundwork/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// newGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.Token()),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client:      client,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		logger:      slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a new generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

func (g *Generator) callOptions(extra ...llms.CallOption) []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}
	return append(opts, extra...)
}

// Generate returns the complete answer for prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.logger.Debug("generating answer", "promptLength", len(prompt))

	response, err := g.client.GenerateContent(ctx, buildMessages(prompt), g.callOptions()...)
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", fmt.Errorf("%w: %w", ai.ErrGeneration, err)
	}
	if len(response.Choices) < 1 {
		g.logger.Warn("no choices returned from model")
		return "", fmt.Errorf("%w: no choices returned", ai.ErrGeneration)
	}

	return scrubAnswer(response.Choices[0].Content), nil
}

// Stream returns the answer as a lazy sequence of fragments.
//
// The request is issued on the first range. Fragments are handed from the
// streaming callback to the consumer through an unbuffered channel, so the
// server is never read faster than the consumer iterates. Breaking out of
// the loop cancels the request.
func (g *Generator) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return ai.OnceStream(func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		fragments := make(chan string)
		done := make(chan error, 1)

		go func() {
			defer close(fragments)
			streamFunc := func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				select {
				case fragments <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			_, err := g.client.GenerateContent(ctx, buildMessages(prompt),
				g.callOptions(llms.WithStreamingFunc(streamFunc))...)
			done <- err
		}()

		for fragment := range fragments {
			if !yield(fragment, nil) {
				cancel()
				for range fragments {
				}
				<-done
				g.logger.Debug("stream abandoned by consumer")
				return
			}
		}

		if err := <-done; err != nil {
			g.logger.Error("failed to stream content", "err", err)
			yield("", fmt.Errorf("%w: %w", ai.ErrGeneration, err))
		}
	})
}
