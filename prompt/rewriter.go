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

package prompt

import (
	"strings"

	"github.com/poiesic/groundwork/core"
)

// DefaultMaxAnswerRunes bounds the previous answer excerpt used by HistoryRewriter.
const DefaultMaxAnswerRunes = 200

// Rewriter folds conversation history into the text used for retrieval.
// The rewritten text is never shown to the user or the generator.
type Rewriter interface {
	Rewrite(query string, history []*core.ConversationTurn) string
}

// HistoryRewriter prefixes the query with the previous question and the
// start of the previous answer, so that follow-ups such as "what about
// that?" retrieve passages about the earlier topic.
type HistoryRewriter struct {
	// MaxAnswerRunes bounds the answer excerpt. Zero means DefaultMaxAnswerRunes.
	MaxAnswerRunes int
}

var _ Rewriter = HistoryRewriter{}

// Rewrite returns query unchanged when history is empty.
func (r HistoryRewriter) Rewrite(query string, history []*core.ConversationTurn) string {
	if len(history) == 0 {
		return query
	}
	previous := history[len(history)-1]
	if previous == nil {
		return query
	}

	limit := r.MaxAnswerRunes
	if limit <= 0 {
		limit = DefaultMaxAnswerRunes
	}

	parts := make([]string, 0, 3)
	for _, part := range []string{
		singleLine(previous.Question),
		truncateRunes(singleLine(previous.Answer), limit),
		singleLine(query),
	} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n")
}

// PassthroughRewriter never rewrites.
type PassthroughRewriter struct{}

var _ Rewriter = PassthroughRewriter{}

// Rewrite returns query.
func (PassthroughRewriter) Rewrite(query string, _ []*core.ConversationTurn) string {
	return query
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
