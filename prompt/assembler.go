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
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/groundwork/core"
)

// DefaultHistoryLimit is the number of most recent turns rendered.
const DefaultHistoryLimit = 5

const (
	historyHeader = "Previous conversation:\n"
	contextHeader = "Context information:\n"
)

// Assembler renders a RetrievalResult and recent turns into a PromptContext.
// It is immutable and safe for concurrent use.
type Assembler struct {
	historyLimit int
	logger       *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler) error

// WithHistoryLimit sets how many of the most recent turns are rendered.
// Zero renders no history. Default is DefaultHistoryLimit.
func WithHistoryLimit(n int) Option {
	return func(a *Assembler) error {
		if n < 0 {
			return fmt.Errorf("%w: history limit cannot be negative, got %d", core.ErrConfig, n)
		}
		a.historyLimit = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewAssembler creates an assembler.
func NewAssembler(opts ...Option) (*Assembler, error) {
	a := &Assembler{
		historyLimit: DefaultHistoryLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "assembler")
	return a, nil
}

// HistoryLimit returns the number of turns rendered at most.
func (a *Assembler) HistoryLimit() int {
	return a.historyLimit
}

// Assemble renders the last HistoryLimit turns of history as Q/A lines,
// followed by the passages of result in rank order as
// "<index>. <text> (source: <source>)".
//
// Passages whose text is already covered by a higher-ranked passage are
// skipped. maxBudget is measured in runes and must be positive. While the
// text is over budget, whole passages are dropped from the lowest-ranked
// end; once no passage is left, whole turns are dropped oldest first.
// The output depends only on the inputs.
func (a *Assembler) Assemble(result *core.RetrievalResult, history []*core.ConversationTurn, maxBudget int) (*core.PromptContext, error) {
	if maxBudget <= 0 {
		return nil, fmt.Errorf("%w: budget must be positive, got %d", core.ErrConfig, maxBudget)
	}

	var passages []*core.ScoredPassage
	duplicates := 0
	if result != nil {
		passages, duplicates = dedupe(result.Passages)
	}

	turns := slices.DeleteFunc(slices.Clone(history), func(turn *core.ConversationTurn) bool {
		return turn == nil
	})
	if len(turns) > a.historyLimit {
		turns = turns[len(turns)-a.historyLimit:]
	}

	text := render(passages, turns)
	droppedPassages, droppedTurns := 0, 0
	for utf8.RuneCountInString(text) > maxBudget && len(passages) > 0 {
		passages = passages[:len(passages)-1]
		droppedPassages++
		text = render(passages, turns)
	}
	for utf8.RuneCountInString(text) > maxBudget && len(turns) > 0 {
		turns = turns[1:]
		droppedTurns++
		text = render(passages, turns)
	}

	if droppedPassages > 0 || droppedTurns > 0 {
		a.logger.Debug("context trimmed to budget",
			"budget", maxBudget,
			"droppedPassages", droppedPassages,
			"droppedTurns", droppedTurns)
	}

	return &core.PromptContext{
		Text:              text,
		Passages:          passages,
		Turns:             turns,
		DroppedPassages:   droppedPassages,
		DroppedTurns:      droppedTurns,
		DuplicatePassages: duplicates,
	}, nil
}

// dedupe keeps the first occurrence of every passage ID and drops passages
// whose normalized text is contained in a passage kept before them.
func dedupe(ranked []*core.ScoredPassage) ([]*core.ScoredPassage, int) {
	kept := make([]*core.ScoredPassage, 0, len(ranked))
	keptText := make([]string, 0, len(ranked))
	seen := make(map[core.ID]bool, len(ranked))
	duplicates := 0

outer:
	for _, sp := range ranked {
		if sp == nil || sp.Passage == nil {
			continue
		}
		if seen[sp.Passage.Id] {
			duplicates++
			continue
		}
		normalized := normalize(sp.Passage.Text)
		for _, earlier := range keptText {
			if strings.Contains(earlier, normalized) {
				duplicates++
				continue outer
			}
		}
		seen[sp.Passage.Id] = true
		kept = append(kept, sp)
		keptText = append(keptText, normalized)
	}
	return kept, duplicates
}

// normalize lowercases text and collapses whitespace runs.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// singleLine collapses whitespace so a rendered entry stays on one line.
func singleLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func render(passages []*core.ScoredPassage, turns []*core.ConversationTurn) string {
	var b strings.Builder

	if len(turns) > 0 {
		b.WriteString(historyHeader)
		for _, turn := range turns {
			b.WriteString("Q: ")
			b.WriteString(singleLine(turn.Question))
			b.WriteString("\nA: ")
			b.WriteString(singleLine(turn.Answer))
			b.WriteByte('\n')
		}
	}

	if len(passages) > 0 {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(contextHeader)
		for i, sp := range passages {
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString(". ")
			b.WriteString(singleLine(sp.Passage.Text))
			b.WriteString(" (source: ")
			b.WriteString(sp.Passage.Source)
			b.WriteString(")\n")
		}
	}

	return b.String()
}
