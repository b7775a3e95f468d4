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

import "fmt"

// DefaultMinTokenLength drops one and two letter tokens.
const DefaultMinTokenLength = 3

// LexicalScorer scores keyword overlap between a query and a passage as the
// Jaccard similarity of their token sets. It is immutable and safe for
// concurrent use.
type LexicalScorer struct {
	filterStopWords bool
	minTokenLength  int
}

// LexicalOption configures a LexicalScorer.
type LexicalOption func(*LexicalScorer) error

// WithStopWords enables or disables stop word filtering.
// Default is enabled.
func WithStopWords(enabled bool) LexicalOption {
	return func(s *LexicalScorer) error {
		s.filterStopWords = enabled
		return nil
	}
}

// WithMinTokenLength sets the shortest token, in runes, that takes part in scoring.
// Default is DefaultMinTokenLength.
func WithMinTokenLength(n int) LexicalOption {
	return func(s *LexicalScorer) error {
		if n < 1 {
			return fmt.Errorf("%w: minimum token length must be positive, got %d", ErrInvalidOption, n)
		}
		s.minTokenLength = n
		return nil
	}
}

// NewLexicalScorer creates a lexical scorer.
func NewLexicalScorer(opts ...LexicalOption) (*LexicalScorer, error) {
	s := &LexicalScorer{
		filterStopWords: true,
		minTokenLength:  DefaultMinTokenLength,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Score returns the Jaccard similarity of the token sets of query and passage,
// in [0,1]. A query without any token, or an empty union, scores 0.
func (s *LexicalScorer) Score(query, passage string) float64 {
	return s.scoreSets(s.Tokens(query), passage)
}

// Tokens returns the token set used for scoring text.
func (s *LexicalScorer) Tokens(text string) map[string]struct{} {
	return tokenSet(text, s.minTokenLength, s.filterStopWords)
}

func (s *LexicalScorer) scoreSets(query map[string]struct{}, passage string) float64 {
	if len(query) == 0 {
		return 0
	}
	doc := s.Tokens(passage)
	return jaccard(query, doc)
}

func jaccard(a, b map[string]struct{}) float64 {
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
