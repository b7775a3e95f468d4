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


package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/groundwork"
	"github.com/poiesic/groundwork/config"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/search"
)

func init() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// printingMonitor traces each retrieval step.
type printingMonitor struct {
	out io.Writer
}

var _ search.RetrievalMonitor = (*printingMonitor)(nil)

func (m *printingMonitor) Start(query string) {
	fmt.Fprintf(m.out, "Query: %q\n", query)
}

func (m *printingMonitor) AfterEmbedding(dimension int) {
	fmt.Fprintf(m.out, "Embedded query (%d dimensions)\n", dimension)
}

func (m *printingMonitor) AfterSemanticSearch(ids []core.ID) {
	fmt.Fprintf(m.out, "Semantic candidates: %d\n", len(ids))
}

func (m *printingMonitor) AfterLexicalSearch(ids []core.ID) {
	fmt.Fprintf(m.out, "Lexical candidates: %d\n", len(ids))
}

func (m *printingMonitor) Scored(sp *core.ScoredPassage) {
	fmt.Fprintf(m.out, "  scored %d %s [semantic %.3f, lexical %.3f, final %.3f]\n",
		sp.Passage.Id, sp.Passage.Source, sp.SemanticScore, sp.LexicalScore, sp.FinalScore)
}

func (m *printingMonitor) Finish(result *core.RetrievalResult) {
	fmt.Fprintf(m.out, "Found %d hits\n", len(result.Passages))
}

func main() {
	cfg, err := config.Load(os.Getenv("GROUNDWORK_CONFIG"))
	if err != nil {
		panic(err)
	}
	kb, err := groundwork.Open(cfg.DatabasePath, groundwork.WithConfig(cfg))
	if err != nil {
		panic(err)
	}
	defer kb.Close()

	query := "What is retrieval-augmented generation?"
	if len(os.Args) > 1 {
		query = strings.Join(os.Args[1:], " ")
	}

	fusion, err := search.NewFusion(cfg.Weights())
	if err != nil {
		panic(err)
	}
	ctx := context.Background()
	result, err := kb.Retriever().RetrieveWithMonitor(ctx, core.Query{Text: query}, cfg.Retrieval.TopK, cfg.Retrieval.UseHybrid, fusion, &printingMonitor{out: os.Stdout})
	if err != nil {
		panic(err)
	}

	for i, hit := range result.Passages {
		fmt.Printf("%d: %s (%d)[final %0.3f, semantic %0.3f, lexical %0.3f]\n",
			i, hit.Passage.Source, hit.Passage.Id, hit.FinalScore, hit.SemanticScore, hit.LexicalScore)
		fmt.Printf("   %s\n", firstLine(hit.Passage.Text))
	}
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return line
}
