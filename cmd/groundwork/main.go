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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/groundwork"
	"github.com/poiesic/groundwork/chat"
	"github.com/poiesic/groundwork/config"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/ingestion"
	"github.com/poiesic/groundwork/mcpserver"
	"github.com/poiesic/groundwork/rag"
	"github.com/poiesic/groundwork/reembed"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "groundwork",
		Usage: "Hybrid retrieval-augmented question answering over a document knowledge base",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides the configuration)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Chunk, embed and store the documents of a directory",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Knowledge base directory (defaults to the configured path)",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Keep running and sync the store with changes to the directory",
					},
				},
			},
			{
				Name:      "context",
				Usage:     "Print the assembled answer context for a query",
				ArgsUsage: "QUERY",
				Action:    contextCommand,
				Flags:     retrievalFlags(),
			},
			{
				Name:      "ask",
				Usage:     "Answer a single question",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: append(retrievalFlags(), &cli.BoolFlag{
					Name:  "stream",
					Usage: "Print the answer as it is generated",
				}),
			},
			{
				Name:   "chat",
				Usage:  "Start an interactive chat session",
				Action: chatCommand,
				Flags:  retrievalFlags(),
			},
			{
				Name:   "sessions",
				Usage:  "List stored conversation sessions",
				Action: sessionsCommand,
			},
			{
				Name:   "history",
				Usage:  "Print the turns of a session",
				Action: historyCommand,
				Flags:  []cli.Flag{sessionFlag(true)},
			},
			{
				Name:   "clear",
				Usage:  "Delete the turns of a session",
				Action: clearCommand,
				Flags:  []cli.Flag{sessionFlag(true)},
			},
			{
				Name:   "export",
				Usage:  "Export the turns of a session as JSON",
				Action: exportCommand,
				Flags: []cli.Flag{
					sessionFlag(true),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (defaults to stdout)",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print knowledge base statistics and usage analytics",
				Action: statsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "days",
						Usage: "Number of days of analytics to summarize",
						Value: 7,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute the embeddings of every passage",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of passages to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N passages",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "resume",
						Usage: "Continue from the checkpoint of an interrupted run",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the knowledge base over MCP on stdio",
				Action: serveCommand,
				Flags: append(retrievalFlags(),
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Knowledge base directory to watch (defaults to the configured path)",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Ingest the directory and keep the store in sync while serving",
					},
				),
			},
		},
	}
}

func sessionFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "session",
		Aliases:  []string{"s"},
		Usage:    "Conversation session ID",
		Required: required,
	}
}

// retrievalFlags override the configured retrieval settings.
func retrievalFlags() []cli.Flag {
	return []cli.Flag{
		sessionFlag(false),
		&cli.IntFlag{
			Name:  "top-k",
			Usage: "Maximum number of passages to retrieve (defaults to the configuration)",
		},
		&cli.BoolFlag{
			Name:  "semantic-only",
			Usage: "Rank by semantic similarity only",
		},
		&cli.Float64Flag{
			Name:  "semantic-weight",
			Usage: "Weight of the semantic score; the lexical weight becomes 1 minus this",
		},
		&cli.IntFlag{
			Name:  "budget",
			Usage: "Maximum context size in characters (defaults to the configuration)",
		},
		&cli.BoolFlag{
			Name:  "no-history",
			Usage: "Ignore and do not record conversation history",
		},
	}
}

// loadConfig reads the configuration and applies the global overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if db := c.String("db"); db != "" {
		cfg.DatabasePath = db
	}
	return cfg, nil
}

func openKnowledgeBase(c *cli.Context) (*groundwork.KnowledgeBase, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	kb, err := groundwork.Open(cfg.DatabasePath, groundwork.WithConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	return kb, cfg, nil
}

// retrievalRequest merges the retrieval flags over the configuration.
func retrievalRequest(c *cli.Context, cfg *config.Config) rag.Request {
	req := rag.Request{
		SessionID:      c.String("session"),
		TopK:           cfg.Retrieval.TopK,
		UseHybrid:      cfg.Retrieval.UseHybrid && !c.Bool("semantic-only"),
		Budget:         cfg.Retrieval.Budget,
		IncludeHistory: !c.Bool("no-history"),
	}
	weights := cfg.Weights()
	req.Weights = &weights
	if c.IsSet("top-k") {
		req.TopK = c.Int("top-k")
	}
	if c.IsSet("budget") {
		req.Budget = c.Int("budget")
	}
	if c.IsSet("semantic-weight") {
		w := c.Float64("semantic-weight")
		req.Weights = &core.Weights{Semantic: w, Lexical: 1 - w}
	}
	return req
}

func chatOptions(req rag.Request) chat.Options {
	return chat.Options{
		SessionID:      req.SessionID,
		TopK:           req.TopK,
		UseHybrid:      req.UseHybrid,
		Weights:        req.Weights,
		Budget:         req.Budget,
		IncludeHistory: req.IncludeHistory,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func ingestCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	kb, cfg, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	dir := c.String("dir")
	if dir == "" {
		dir = cfg.KnowledgeBasePath
	}

	opts, err := ingestionOptions(cfg)
	if err != nil {
		return err
	}
	pipeline, err := kb.NewIngestionPipeline(opts...)
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	defer pipeline.Release()

	fmt.Fprintf(os.Stderr, "Database: %s\n", cfg.DatabasePath)
	fmt.Fprintf(os.Stderr, "Knowledge base: %s\n", dir)

	if err := ingestDir(ctx, pipeline, dir); err != nil {
		return err
	}
	if !c.Bool("watch") {
		return nil
	}

	watcher, err := ingestion.NewWatcher(pipeline, dir, ingestion.WithWatcherLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	defer watcher.Close()

	fmt.Fprintf(os.Stderr, "Watching %s for changes (Ctrl-C to stop)\n", dir)
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return pipeline.Wait()
}

// ingestionOptions builds the pipeline options shared by ingest and serve.
func ingestionOptions(cfg *config.Config) ([]ingestion.Option, error) {
	chunker, err := ingestion.NewRecursiveChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	opts := []ingestion.Option{
		ingestion.WithChunker(chunker),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithExtensions(cfg.Ingestion.Extensions...),
		ingestion.WithLogger(slog.Default()),
	}
	if cfg.Ingestion.PoolSize > 0 {
		opts = append(opts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	return opts, nil
}

// ingestDir loads dir and blocks until every passage is embedded.
func ingestDir(ctx context.Context, pipeline *ingestion.Pipeline, dir string) error {
	stored, err := pipeline.IngestDir(ctx, dir)
	switch {
	case err != nil && stored == 0:
		return fmt.Errorf("ingestion failed: %w", err)
	case err != nil:
		// Unreadable files do not stop the rest of the directory.
		slog.Warn("some documents were not ingested", "err", err)
	}
	if err := pipeline.Wait(); err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Stored %d passages\n", stored)
	return nil
}

func queryArg(c *cli.Context) (string, error) {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return "", fmt.Errorf("a query is required")
	}
	return query, nil
}

func contextCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}
	kb, cfg, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	req := retrievalRequest(c, cfg)
	req.Query = query
	pc, err := kb.AnswerContext(c.Context, req)
	if err != nil {
		return err
	}

	fmt.Println(pc.Text)
	fmt.Fprintln(os.Stderr)
	for i, sp := range pc.Passages {
		fmt.Fprintf(os.Stderr, "%d: %s [final %.3f, semantic %.3f, lexical %.3f]\n",
			i+1, sp.Passage.Source, sp.FinalScore, sp.SemanticScore, sp.LexicalScore)
	}
	if pc.DroppedPassages > 0 || pc.DroppedTurns > 0 {
		fmt.Fprintf(os.Stderr, "Dropped %d passages and %d turns to fit the budget\n", pc.DroppedPassages, pc.DroppedTurns)
	}
	return nil
}

func printSources(w io.Writer, sources []chat.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for _, source := range sources {
		fmt.Fprintf(w, "  - %s\n", source)
	}
}

func askCommand(c *cli.Context) error {
	question, err := queryArg(c)
	if err != nil {
		return err
	}
	kb, cfg, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	bot, err := kb.NewChatbot()
	if err != nil {
		return err
	}
	opts := chatOptions(retrievalRequest(c, cfg))

	if !c.Bool("stream") {
		resp, err := bot.Chat(c.Context, question, opts)
		if err != nil {
			return err
		}
		fmt.Println(resp.Answer)
		printSources(os.Stdout, resp.Sources)
		return nil
	}

	stream, err := bot.Stream(c.Context, question, opts)
	if err != nil {
		return err
	}
	for fragment, err := range stream.Fragments {
		if err != nil {
			return err
		}
		fmt.Print(fragment)
	}
	fmt.Println()
	printSources(os.Stdout, stream.Sources)
	return nil
}

func sessionsCommand(c *cli.Context) error {
	kb, _, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	sessions, err := kb.Conversations().Sessions(c.Context)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		fmt.Println(session)
	}
	return nil
}

func historyCommand(c *cli.Context) error {
	kb, _, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	turns, err := kb.Conversations().Turns(c.Context, c.String("session"))
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Fprintln(os.Stderr, "No turns recorded for this session")
		return nil
	}
	for _, turn := range turns {
		fmt.Printf("[%s]\nUser: %s\nAssistant: %s\n", turn.Timestamp.Format(time.RFC3339), turn.Question, turn.Answer)
		if len(turn.Sources) > 0 {
			fmt.Printf("Sources: %s\n", strings.Join(turn.Sources, ", "))
		}
		fmt.Println()
	}
	return nil
}

func clearCommand(c *cli.Context) error {
	kb, _, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	session := c.String("session")
	if err := kb.Conversations().ClearSession(c.Context, session); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Cleared session %s\n", session)
	return nil
}

type exportedTurn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

type exportedSession struct {
	SessionID string         `json:"session_id"`
	Turns     []exportedTurn `json:"turns"`
}

func exportCommand(c *cli.Context) error {
	kb, _, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	session := c.String("session")
	turns, err := kb.Conversations().Turns(c.Context, session)
	if err != nil {
		return err
	}
	export := exportedSession{SessionID: session, Turns: make([]exportedTurn, 0, len(turns))}
	for _, turn := range turns {
		export.Turns = append(export.Turns, exportedTurn{
			Question:  turn.Question,
			Answer:    turn.Answer,
			Sources:   turn.Sources,
			Timestamp: turn.Timestamp,
		})
	}

	var out io.Writer = os.Stdout
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func statsCommand(c *cli.Context) error {
	kb, cfg, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	stats, err := kb.Stats(c.Context)
	if err != nil {
		return err
	}
	summary, err := kb.Analytics().Stats(c.Context, c.Int("days"), time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("Database: %s\n", cfg.DatabasePath)
	fmt.Printf("Passages: %d (%d embedded)\n", stats.Passages, stats.EmbeddedPassages)
	fmt.Printf("Sources: %d\n", len(stats.Sources))
	fmt.Printf("Sessions: %d\n", stats.Sessions)
	fmt.Println()
	fmt.Printf("Last %d days:\n", summary.Days)
	fmt.Printf("  Queries: %d\n", summary.TotalQueries)
	fmt.Printf("  Sessions started: %d\n", summary.TotalSessions)
	fmt.Printf("  Errors: %d\n", summary.TotalErrors)
	fmt.Printf("  Average response time: %s\n", summary.AverageResponseTime.Round(time.Millisecond))
	fmt.Printf("  Average sources per answer: %.1f\n", summary.AverageSources)
	fmt.Printf("  Feedback: %d positive, %d negative (%.0f%% satisfied)\n",
		summary.PositiveFeedback, summary.NegativeFeedback, summary.SatisfactionRate*100)
	return nil
}

func reembedCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	// Create reembedding config
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Resume:         c.Bool("resume"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	kb, cfg, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	reembedder, err := kb.NewReembedder(
		reembed.WithConfig(reembedConfig),
		reembed.WithProgress(os.Stderr),
		reembed.WithLogger(slog.Default()),
	)
	if err != nil {
		return fmt.Errorf("failed to create reembedder: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", cfg.DatabasePath)
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	if err := reembedder.Run(ctx); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	kb, cfg, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	opts, err := ingestionOptions(cfg)
	if err != nil {
		return err
	}
	srv, err := mcpserver.New(kb,
		mcpserver.WithDefaults(retrievalRequest(c, cfg)),
		mcpserver.WithIngestionOptions(opts...),
		mcpserver.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}
	defer srv.Close()

	if !c.Bool("watch") {
		if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	dir := c.String("dir")
	if dir == "" {
		dir = cfg.KnowledgeBasePath
	}
	// The watcher gets its own pipeline so its batches never share a Wait
	// with the ingest_document tool.
	pipeline, err := kb.NewIngestionPipeline(opts...)
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	defer pipeline.Release()
	if err := ingestDir(ctx, pipeline, dir); err != nil {
		return err
	}
	watcher, err := ingestion.NewWatcher(pipeline, dir, ingestion.WithWatcherLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	defer watcher.Close()

	// Closing stdin ends Serve, which stops the watcher too.
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		if err := watcher.Run(gctx); err != nil {
			return err
		}
		return pipeline.Wait()
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Logs go to stderr so stdout stays clean for answers and MCP traffic
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
