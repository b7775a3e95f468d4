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

import "math"

// CosineSimilarity returns the cosine of the angle between a and b in [-1,1].
// The vectors must have equal, non-zero length; callers check dimensions.
// A zero-magnitude vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push the value slightly outside the valid range.
	return math.Max(-1, math.Min(1, cos))
}

// NormalizeVector normalizes a vector to unit length.
// Returns the normalized vector. If the vector has zero magnitude, returns it unchanged.
func NormalizeVector(vec []float32) []float32 {
	if len(vec) == 0 {
		return vec
	}

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}

	return normalized
}
