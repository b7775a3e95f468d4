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

package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// PassageID derives the ID of a passage from its source and text.
// Re-ingesting an unchanged chunk of the same source yields the same ID.
func PassageID(source, text string) ID {
	return IDFromContent(source + "\x00" + text)
}

// Passage is a unit of retrievable text with its embedding.
// Passages are read-only to the retrieval pipeline.
type Passage struct {
	Id         ID
	Source     string    // Document the passage was chunked from
	Text       string    // Chunk text
	Vector     []float32 // Embedding vector (empty until the embedding processor runs)
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// Embedded reports whether the passage has an embedding vector.
func (p *Passage) Embedded() bool {
	return len(p.Vector) > 0
}

// ScoredPassage is a passage annotated with its retrieval scores.
// FinalScore is the weighted fusion of SemanticScore and LexicalScore.
type ScoredPassage struct {
	Passage       *Passage
	SemanticScore float64 // Rescaled cosine similarity in [0,1]
	LexicalScore  float64 // Jaccard overlap in [0,1]
	FinalScore    float64
	SemanticRank  int // Position in the semantic candidate list, used to break ties
}

// Weights holds the fusion weights for semantic and lexical scores.
// A valid pair has both weights in [0,1] summing to 1.
type Weights struct {
	Semantic float64
	Lexical  float64
}

// DefaultWeights returns the default fusion weights (0.7 semantic, 0.3 lexical).
func DefaultWeights() Weights {
	return Weights{Semantic: 0.7, Lexical: 0.3}
}

// Query is a user question and its optional retrieval-only reformulation.
type Query struct {
	Text      string
	Rewritten string
}

// RetrievalText returns the text used for retrieval: the rewritten form when
// present, otherwise the original question.
func (q Query) RetrievalText() string {
	if q.Rewritten != "" {
		return q.Rewritten
	}
	return q.Text
}

// ConversationTurn is one question/answer exchange within a session.
type ConversationTurn struct {
	Id        ID
	SessionID string
	Question  string
	Answer    string
	Sources   []string // Sources of the passages the answer was grounded on
	Timestamp time.Time
}

// RetrievalResult is the ranked, deduplicated output of the retriever.
// Passages are sorted by FinalScore descending.
type RetrievalResult struct {
	Passages []*ScoredPassage
}

// Len returns the number of passages in the result.
func (r *RetrievalResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Passages)
}

// IDs returns the passage IDs in rank order.
func (r *RetrievalResult) IDs() []ID {
	if r == nil {
		return nil
	}
	ids := make([]ID, 0, len(r.Passages))
	for _, sp := range r.Passages {
		ids = append(ids, sp.Passage.Id)
	}
	return ids
}

// Sources returns the distinct passage sources in rank order.
func (r *RetrievalResult) Sources() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool, len(r.Passages))
	sources := make([]string, 0, len(r.Passages))
	for _, sp := range r.Passages {
		if seen[sp.Passage.Source] {
			continue
		}
		seen[sp.Passage.Source] = true
		sources = append(sources, sp.Passage.Source)
	}
	return sources
}

// PromptContext is the rendered, budget-bounded context handed to generation.
type PromptContext struct {
	Text              string
	Passages          []*ScoredPassage    // Passages rendered into Text, in rank order
	Turns             []*ConversationTurn // Turns rendered into Text, oldest first
	DroppedPassages   int                 // Passages removed to satisfy the budget
	DroppedTurns      int                 // Turns removed to satisfy the budget
	DuplicatePassages int                 // Passages skipped as duplicates of a higher-ranked one
}

// Neighbor is a vector index hit. Lower distance means more similar.
type Neighbor struct {
	PassageId ID
	Distance  float32
}

// Checkpoint records the progress of a resumable batch processor.
type Checkpoint struct {
	ProcessorType string
	LastID        ID
	UpdatedAt     time.Time
}

// DailyStats aggregates usage counters for a single UTC day.
type DailyStats struct {
	Day              time.Time // Midnight UTC
	Queries          int
	Sessions         int
	Errors           int
	PositiveFeedback int
	NegativeFeedback int
	Sources          int   // Total passages cited across queries
	ResponseMicros   int64 // Total response time across queries
}

// AnalyticsSummary summarizes DailyStats over a window of days.
type AnalyticsSummary struct {
	Days                int
	TotalQueries        int
	TotalSessions       int
	TotalErrors         int
	PositiveFeedback    int
	NegativeFeedback    int
	AverageResponseTime time.Duration
	AverageSources      float64
	SatisfactionRate    float64 // Positive share of all feedback, 0 when none recorded
	Daily               []*DailyStats
}
