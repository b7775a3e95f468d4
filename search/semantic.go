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

package search

import (
	"fmt"
	"math"

	"github.com/poiesic/groundwork/core"
)

// SemanticScore rescales the cosine similarity of two embeddings from
// [-1,1] to [0,1]. Empty vectors and vectors of different dimensions fail
// with core.ErrInvalidVector.
func SemanticScore(query, passage []float32) (float64, error) {
	if len(query) == 0 || len(passage) == 0 {
		return 0, fmt.Errorf("%w: empty vector", core.ErrInvalidVector)
	}
	if len(query) != len(passage) {
		return 0, fmt.Errorf("%w: dimension %d does not match %d", core.ErrInvalidVector, len(passage), len(query))
	}
	score := (core.CosineSimilarity(query, passage) + 1) / 2
	return math.Max(0, math.Min(1, score)), nil
}
