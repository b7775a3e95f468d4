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
	"fmt"
	"strings"

	"github.com/poiesic/groundwork/core"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of characters shared by adjacent chunks.
	DefaultChunkOverlap = 200
)

// Chunker splits document text into passage-sized chunks.
type Chunker interface {
	Split(text string) ([]string, error)
}

type recursiveChunker struct {
	splitter textsplitter.RecursiveCharacter
}

var _ Chunker = (*recursiveChunker)(nil)

// NewRecursiveChunker splits on paragraphs, then lines, then words, keeping
// chunks under size characters with overlap characters carried between them.
func NewRecursiveChunker(size, overlap int) (Chunker, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", core.ErrConfig, size, overlap)
	}
	return &recursiveChunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

// Split returns the non-blank chunks of text.
func (c *recursiveChunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	chunks, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := chunks[:0]
	for _, chunk := range chunks {
		if chunk = strings.TrimSpace(chunk); chunk != "" {
			out = append(out, chunk)
		}
	}
	return out, nil
}
