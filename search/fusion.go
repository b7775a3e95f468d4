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

import "github.com/poiesic/groundwork/core"

// Fusion combines semantic and lexical scores with validated weights.
// The zero value is not usable; create one with NewFusion.
type Fusion struct {
	weights core.Weights
	valid   bool
}

// NewFusion validates w once and returns a Fusion that applies it.
// Invalid weights fail with core.ErrConfig.
func NewFusion(w core.Weights) (Fusion, error) {
	if err := core.ValidateWeights(w); err != nil {
		return Fusion{}, err
	}
	return Fusion{weights: w, valid: true}, nil
}

// DefaultFusion applies core.DefaultWeights.
func DefaultFusion() Fusion {
	return Fusion{weights: core.DefaultWeights(), valid: true}
}

// SemanticOnly ignores the lexical score entirely.
func SemanticOnly() Fusion {
	return Fusion{weights: core.Weights{Semantic: 1, Lexical: 0}, valid: true}
}

// Weights returns the applied weights.
func (f Fusion) Weights() core.Weights {
	return f.weights
}

// IsZero reports whether f was created without NewFusion.
func (f Fusion) IsZero() bool {
	return !f.valid
}

// Score fuses a semantic and a lexical score.
func (f Fusion) Score(semantic, lexical float64) float64 {
	return Fuse(semantic, lexical, f.weights)
}

// Fuse returns the weighted sum of the two scores. It does not validate w.
func Fuse(semantic, lexical float64, w core.Weights) float64 {
	return w.Semantic*semantic + w.Lexical*lexical
}
