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
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/groundwork"
	"github.com/poiesic/groundwork/config"
	"github.com/poiesic/groundwork/ingestion"
)

// sampleDocuments seed an empty knowledge base directory.
var sampleDocuments = map[string]string{
	"rag_overview.md": `# Retrieval-Augmented Generation

RAG (Retrieval-Augmented Generation) is a technique that combines the power of
information retrieval with language generation. It works by first retrieving
relevant documents from a knowledge base, then using those documents as context
for generating accurate and informed responses.

The main components of a RAG system include:
1. A knowledge base containing documents
2. A vector database for efficient similarity search
3. An embedding model to convert text to vectors
4. A language model for generating responses
5. A retrieval mechanism to find relevant context
`,
	"vector_databases.md": `# Vector Databases

Vector databases are specialized databases designed to store and query high-dimensional
vectors efficiently. They use techniques like approximate nearest neighbor search to
quickly find similar vectors.

Popular vector databases include:
- ChromaDB: Lightweight and easy to use
- Pinecone: Managed vector database service
- Weaviate: Open-source vector search engine
- FAISS: Facebook's similarity search library

Vector databases are essential for RAG systems as they enable fast retrieval of
relevant context from large knowledge bases.
`,
	"embeddings.md": `# Embeddings

Embeddings are numerical representations of text that capture semantic meaning.
Similar texts have similar embeddings, which allows for semantic search.

OpenAI provides several embedding models:
- text-embedding-3-small: Fast and efficient
- text-embedding-3-large: More accurate but slower
- text-embedding-ada-002: Previous generation model

Embeddings are created by neural networks trained on large text corpora. They
convert text into dense vectors that can be compared using cosine similarity.
`,
	"langchain.md": `# LangChain

LangChain is a framework for building applications with large language models.
It provides abstractions for:
- Document loaders and text splitters
- Vector stores and retrievers
- Chains for combining LLM calls
- Agents for complex reasoning

LangChain makes it easy to build RAG applications by providing pre-built components
that work together seamlessly. It supports multiple LLM providers including OpenAI,
Anthropic, and open-source models.
`,
	"best_practices.md": `# Best Practices for RAG Systems

1. Chunk size: Use appropriate chunk sizes (typically 500-1000 tokens) to balance
   context and precision

2. Overlap: Include overlap between chunks to maintain context continuity

3. Retrieval: Retrieve multiple relevant chunks (typically 3-5) to provide sufficient
   context

4. Prompting: Design clear prompts that instruct the LLM to use the provided context

5. Evaluation: Regularly evaluate the system's performance and update the knowledge base

6. Metadata: Store metadata with documents to enable filtering and better retrieval
`,
}

var (
	configFile = flag.String("config", "", "YAML configuration file")
	dir        = flag.String("dir", "", "knowledge base directory (defaults to the configured path)")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// writeSamples fills dir with the sample documents unless it already holds documents.
func writeSamples(dir string, extensions []string) (bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	docs, err := ingestion.LoadDocuments(dir, extensions...)
	if err != nil {
		return false, err
	}
	if len(docs) > 0 {
		return false, nil
	}
	for name, text := range sampleDocuments {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(strings.TrimSpace(text)+"\n"), 0o644); err != nil {
			return false, err
		}
	}
	return true, nil
}

func main() {
	flag.Parse()
	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(err)
	}
	if *dir != "" {
		cfg.KnowledgeBasePath = *dir
	}

	created, err := writeSamples(cfg.KnowledgeBasePath, cfg.Ingestion.Extensions)
	if err != nil {
		panic(err)
	}
	if created {
		fmt.Printf("Knowledge base directory is empty. Created %d sample documents in %s\n", len(sampleDocuments), cfg.KnowledgeBasePath)
	}

	kb, err := groundwork.Open(cfg.DatabasePath, groundwork.WithConfig(cfg))
	if err != nil {
		panic(err)
	}
	defer kb.Close()

	chunker, err := ingestion.NewRecursiveChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	if err != nil {
		panic(err)
	}
	ingester, err := kb.NewIngestionPipeline(
		ingestion.WithChunker(chunker),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithExtensions(cfg.Ingestion.Extensions...),
	)
	if err != nil {
		panic(err)
	}
	defer ingester.Release()

	ctx := context.Background()
	if _, err := ingester.IngestDir(ctx, cfg.KnowledgeBasePath); err != nil {
		panic(err)
	}
	if err := ingester.Wait(); err != nil {
		panic(err)
	}

	stats, err := kb.Stats(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("\nKnowledge base contains %d passages from %d documents.\n", stats.Passages, len(stats.Sources))
}
