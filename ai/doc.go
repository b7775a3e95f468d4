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

// Package ai provides abstractions for the AI services used by groundwork.
//
// The package defines the interfaces the retrieval core and the chat layer
// depend on, so that neither is tied to a particular model server:
//
//   - Embedder: turns text into vectors for the semantic scorer and the index
//   - Generator: produces answers, either whole or as a lazy stream
//   - AIProvider: aggregates both for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: production implementation for OpenAI-compatible APIs
//   - ai/mock: test doubles for unit testing without a model server
//
// # Streams
//
// Generator.Stream returns an iter.Seq2[string, error]. Nothing is requested
// from the server until the sequence is ranged over. Breaking out of the loop
// cancels the request. A stream can be consumed once; OnceStream enforces
// that for implementations and Collect drains a stream into a string.
package ai
