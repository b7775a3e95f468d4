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

// Package search ranks passages for a query by combining semantic and
// lexical similarity.
//
// The Retriever runs a multi-stage algorithm:
//   - Semantic candidates: the query is embedded and the nearest passages
//     are fetched from the vector index
//   - Lexical candidates: when hybrid ranking is on, the corpus is scanned
//     for passages sharing keywords with the query
//   - Fusion: every candidate is scored with SemanticScore and the
//     LexicalScorer, and the two are combined by a validated Fusion
//
// Results are deduplicated, sorted by fused score with ties broken by
// semantic rank, and truncated to topK. Passages and the corpus snapshot
// are cached in a PassageCache that is invalidated wholesale whenever the
// corpus changes.
package search
