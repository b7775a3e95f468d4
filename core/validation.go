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

import (
	"fmt"
	"math"
	"time"
)

// WeightEpsilon is the tolerance applied when checking that fusion weights sum to 1.
const WeightEpsilon = 1e-6

// ValidatePassage validates a Passage according to domain rules.
//
// Validation rules:
//   - Text must not be empty
//   - Source must not be empty
//
// NOT validated (populated by processors):
//   - Vector (can be empty until embedding processor runs)
//   - ID (derived from source and text when 0)
func ValidatePassage(passage *Passage) error {
	if passage == nil {
		return fmt.Errorf("%w: passage is nil", ErrInvalidPassage)
	}

	if passage.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPassage, ErrEmptyText)
	}

	if passage.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPassage, ErrEmptySource)
	}

	return nil
}

// ValidateTurn validates a ConversationTurn according to domain rules.
//
// Validation rules:
//   - SessionID must not be empty
//   - Question must not be empty
//   - Timestamp must not be in the future
//
// The answer may be empty: a failed generation still records the question.
func ValidateTurn(turn *ConversationTurn) error {
	if turn == nil {
		return fmt.Errorf("%w: turn is nil", ErrInvalidTurn)
	}

	if turn.SessionID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, ErrEmptySessionID)
	}

	if turn.Question == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, ErrEmptyText)
	}

	if !IsValidTimestamp(turn.Timestamp) {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateWeights checks that both weights lie in [0,1] and sum to 1 within WeightEpsilon.
func ValidateWeights(w Weights) error {
	if math.IsNaN(w.Semantic) || math.IsNaN(w.Lexical) {
		return fmt.Errorf("%w: weights must be numbers", ErrConfig)
	}
	if w.Semantic < 0 || w.Semantic > 1 {
		return fmt.Errorf("%w: semantic weight %g outside [0,1]", ErrConfig, w.Semantic)
	}
	if w.Lexical < 0 || w.Lexical > 1 {
		return fmt.Errorf("%w: lexical weight %g outside [0,1]", ErrConfig, w.Lexical)
	}
	if sum := w.Semantic + w.Lexical; math.Abs(sum-1) > WeightEpsilon {
		return fmt.Errorf("%w: weights sum to %g, want 1", ErrConfig, sum)
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
