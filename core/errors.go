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

import "errors"

// Retrieval errors
var (
	// ErrConfig indicates invalid request or component configuration,
	// such as fusion weights that do not sum to 1.
	ErrConfig = errors.New("invalid configuration")

	// ErrInvalidVector indicates an empty embedding or a dimension mismatch
	// between a query vector and a stored passage vector.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrRetrievalUnavailable indicates the vector index or corpus could not be reached.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrRetrievalTimeout indicates an embedding or index call exceeded its deadline.
	ErrRetrievalTimeout = errors.New("retrieval timed out")

	// ErrEmbedding indicates the embedding provider failed.
	ErrEmbedding = errors.New("embedding failed")
)

// Domain validation errors
var (
	// ErrInvalidPassage indicates a Passage failed validation.
	ErrInvalidPassage = errors.New("invalid passage")

	// ErrInvalidTurn indicates a ConversationTurn failed validation.
	ErrInvalidTurn = errors.New("invalid conversation turn")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")

	// ErrEmptyText indicates a required text field is empty.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrEmptySource indicates the passage Source field is empty.
	ErrEmptySource = errors.New("source cannot be empty")

	// ErrEmptySessionID indicates the SessionID field is empty.
	ErrEmptySessionID = errors.New("session id cannot be empty")
)
