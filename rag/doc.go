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

// Package rag is the single entry point of the retrieval core.
//
// Engine.AnswerContext validates the request once, reads the session's
// recent turns, optionally rewrites the query for retrieval, retrieves and
// ranks passages and assembles them into a bounded PromptContext. It owns no
// persistence and has no side effects beyond the retriever's read-through
// passage cache.
package rag
