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

// Package chat answers questions with the retrieval core and a generator.
//
// A Bot builds a prompt context with rag.Engine, renders it into the answer
// prompt, generates the answer (whole or streamed), records the turn in the
// session's conversation history and counts the query in the analytics
// store. Retrieval always completes before generation starts.
package chat
