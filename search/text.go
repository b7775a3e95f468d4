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
	"strings"
	"unicode"
)

// stopWords are dropped before lexical comparison when stop word
// filtering is enabled.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "must": true,
	"can": true, "it": true, "that": true, "this": true, "not": true, "you": true,
	"what": true, "which": true, "who": true, "how": true, "when": true,
	"where": true, "why": true,
}

// IsStopWord reports whether word is filtered by the default stop word list.
func IsStopWord(word string) bool {
	return stopWords[strings.ToLower(word)]
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// tokenize splits text into lowercase words made of letters, digits and
// underscores. Everything else separates words.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

// tokenSet returns the distinct tokens of text that are at least minLength
// runes long and, when filterStopWords is set, not stop words.
func tokenSet(text string, minLength int, filterStopWords bool) map[string]struct{} {
	words := tokenize(text)
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		if len([]rune(word)) < minLength {
			continue
		}
		if filterStopWords && stopWords[word] {
			continue
		}
		set[word] = struct{}{}
	}
	return set
}
