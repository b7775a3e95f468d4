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

package storage

import (
	"context"
	"time"

	"github.com/poiesic/groundwork/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases repository resources. It does not close the backend.
	Close() error
}

// VectorIndex finds passages near a query vector.
type VectorIndex interface {
	// Nearest returns up to n embedded passages ordered by ascending distance
	// (1 - cosine similarity). Returns ErrDimensionMismatch when a stored
	// vector's dimension differs from the query's.
	Nearest(ctx context.Context, vector []float32, n int) ([]core.Neighbor, error)
}

// Corpus provides read access to passage text and vectors by ID.
type Corpus interface {
	// GetPassage retrieves a single passage by ID.
	// Returns ErrNotFound if the passage doesn't exist.
	GetPassage(ctx context.Context, id core.ID) (*core.Passage, error)

	// GetPassages retrieves multiple passages by their IDs, in the order given.
	// Returns only the passages that exist (no error for missing passages).
	GetPassages(ctx context.Context, ids ...core.ID) ([]*core.Passage, error)

	// AllPassages returns every passage in ID order.
	AllPassages(ctx context.Context) ([]*core.Passage, error)
}

// PassageRepository manages the passage corpus and its vector index.
type PassageRepository interface {
	Repository
	VectorIndex
	Corpus

	// AddPassages stores passages, replacing any with the same ID.
	// Passages with ID=0 get a content-derived ID (core.PassageID).
	// Sets InsertedAt if not already set and UpdatedAt always.
	AddPassages(ctx context.Context, passages ...*core.Passage) ([]*core.Passage, error)

	// UpdatePassages updates existing passages, typically to attach vectors.
	// Returns ErrNotFound if any passage doesn't exist.
	UpdatePassages(ctx context.Context, passages ...*core.Passage) ([]*core.Passage, error)

	// DeletePassages removes passages by ID.
	// Returns ErrNotFound if any passage doesn't exist.
	DeletePassages(ctx context.Context, ids ...core.ID) error

	// DeleteSource removes every passage chunked from source and returns how many were removed.
	DeleteSource(ctx context.Context, source string) (int, error)

	// PassageIDsBySource returns the IDs of passages chunked from source.
	PassageIDsBySource(ctx context.Context, source string) ([]core.ID, error)

	// PassagesAfter returns up to limit passages with IDs greater than after, in ID order.
	PassagesAfter(ctx context.Context, after core.ID, limit int) ([]*core.Passage, error)

	// Sources returns the distinct passage sources in lexical order.
	Sources(ctx context.Context) ([]string, error)

	// CountPassages returns the total and embedded passage counts.
	CountPassages(ctx context.Context) (total int, embedded int, err error)

	// DeleteAll removes every passage.
	DeleteAll(ctx context.Context) error
}

// ConversationRepository stores per-session conversation history.
type ConversationRepository interface {
	Repository

	// AppendTurn stores a turn, assigning its ID and defaulting its timestamp.
	// The oldest turns of the session are trimmed beyond the per-session cap.
	AppendTurn(ctx context.Context, turn *core.ConversationTurn) (*core.ConversationTurn, error)

	// LastTurns returns up to n of the most recent turns of a session, oldest first.
	LastTurns(ctx context.Context, sessionID string, n int) ([]*core.ConversationTurn, error)

	// Turns returns every stored turn of a session, oldest first.
	Turns(ctx context.Context, sessionID string) ([]*core.ConversationTurn, error)

	// ClearSession removes a session and all of its turns.
	ClearSession(ctx context.Context, sessionID string) error

	// Sessions returns the IDs of every session with stored turns.
	Sessions(ctx context.Context) ([]string, error)
}

// AnalyticsRepository records per-day usage counters.
type AnalyticsRepository interface {
	// RecordQuery counts an answered query with its response time and cited source count.
	RecordQuery(ctx context.Context, at time.Time, responseTime time.Duration, sources int) error

	// RecordSession counts a newly started session.
	RecordSession(ctx context.Context, at time.Time) error

	// RecordFeedback counts positive or negative user feedback.
	RecordFeedback(ctx context.Context, at time.Time, positive bool) error

	// RecordError counts a failed query.
	RecordError(ctx context.Context, at time.Time) error

	// Stats summarizes the given number of days ending at now (inclusive).
	Stats(ctx context.Context, days int, now time.Time) (*core.AnalyticsSummary, error)
}

// CheckpointRepository persists the progress of resumable processors.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for its processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint for a processor type.
	DeleteCheckpoint(ctx context.Context, processorType string) error
}
