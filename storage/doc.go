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

// Package storage provides the storage abstraction layer for groundwork.
//
// This package defines repository interfaces that decouple storage implementation
// from retrieval logic. The retriever only sees the narrow VectorIndex and Corpus
// views; ingestion, chat and analytics use the wider repositories.
//
// # Architecture
//
//   - PassageRepository: the passage corpus and its vector index
//   - ConversationRepository: per-session question/answer history
//   - AnalyticsRepository: per-day usage counters
//   - CheckpointRepository: progress of resumable batch processors
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	passages, err := badger.NewPassageRepository(backend)
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//	defer repos.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
