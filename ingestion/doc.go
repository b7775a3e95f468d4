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


// Package ingestion turns documents into embedded passages.
//
// A Pipeline chunks each document, stores the chunks as passages that
// replace the previous chunks of the same source, and embeds them
// asynchronously on a worker pool. Watcher keeps a knowledge-base
// directory in sync by re-ingesting files as they change.
package ingestion
