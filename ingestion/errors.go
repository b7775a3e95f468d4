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

import "errors"

var (
	// ErrPassageRepositoryRequired is returned when a passage repository is not provided.
	ErrPassageRepositoryRequired = errors.New("passage repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrPipelineRequired is returned when a watcher has no pipeline to feed.
	ErrPipelineRequired = errors.New("ingestion pipeline required")

	// ErrNotDirectory is returned when a knowledge-base path is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)
