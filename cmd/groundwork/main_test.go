package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/groundwork"
	"github.com/poiesic/groundwork/ai/mock"
	"github.com/poiesic/groundwork/chat"
	"github.com/poiesic/groundwork/config"
	"github.com/poiesic/groundwork/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	for _, name := range []string{
		"ingest", "context", "ask", "chat", "sessions", "history",
		"clear", "export", "stats", "reembed", "serve",
	} {
		t.Run(name, func(t *testing.T) {
			cmd := findCommand(t, app, name)
			assert.NotNil(t, cmd.Action)
			assert.NotEmpty(t, cmd.Usage)
		})
	}
}

func TestReembedCommandFlags(t *testing.T) {
	cmd := findCommand(t, newApp(), "reembed")

	intDefaults := map[string]int{"batch-size": 100, "report-interval": 100, "max-retries": 3}
	for _, flag := range cmd.Flags {
		switch f := flag.(type) {
		case *cli.IntFlag:
			want, ok := intDefaults[f.Name]
			require.True(t, ok, "unexpected flag %s", f.Name)
			assert.Equal(t, want, f.Value, f.Name)
			delete(intDefaults, f.Name)
		case *cli.BoolFlag:
			assert.Equal(t, "resume", f.Name)
			assert.False(t, f.Value)
		}
	}
	assert.Empty(t, intDefaults, "every int flag is declared")
}

func TestReembedCommandValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "zero batch size", args: []string{"--batch-size", "0"}, want: "batch-size"},
		{name: "zero report interval", args: []string{"--report-interval", "0"}, want: "report-interval"},
		{name: "zero retries", args: []string{"--max-retries", "0"}, want: "max-retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"groundwork", "reembed"}, tt.args...)
			err := newApp().Run(args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestQueryRequired(t *testing.T) {
	for _, name := range []string{"context", "ask"} {
		t.Run(name, func(t *testing.T) {
			err := newApp().Run([]string{"groundwork", name, "  "})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "query is required")
		})
	}
}

func TestSessionRequired(t *testing.T) {
	for _, name := range []string{"history", "clear", "export"} {
		t.Run(name, func(t *testing.T) {
			err := newApp().Run([]string{"groundwork", name})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "session")
		})
	}
}

func TestRetrievalRequest(t *testing.T) {
	run := func(t *testing.T, args ...string) rag.Request {
		t.Helper()
		var req rag.Request
		app := &cli.App{
			Name:  "test",
			Flags: retrievalFlags(),
			Action: func(c *cli.Context) error {
				req = retrievalRequest(c, config.Default())
				return nil
			},
		}
		require.NoError(t, app.Run(append([]string{"test"}, args...)))
		return req
	}

	t.Run("configuration defaults", func(t *testing.T) {
		cfg := config.Default()
		req := run(t)
		assert.Equal(t, cfg.Retrieval.TopK, req.TopK)
		assert.Equal(t, cfg.Retrieval.Budget, req.Budget)
		assert.True(t, req.UseHybrid)
		assert.True(t, req.IncludeHistory)
		require.NotNil(t, req.Weights)
		assert.Equal(t, cfg.Weights(), *req.Weights)
	})

	t.Run("flags override", func(t *testing.T) {
		req := run(t, "--session", "s1", "--top-k", "3", "--budget", "500",
			"--semantic-only", "--no-history", "--semantic-weight", "0.25")
		assert.Equal(t, "s1", req.SessionID)
		assert.Equal(t, 3, req.TopK)
		assert.Equal(t, 500, req.Budget)
		assert.False(t, req.UseHybrid)
		assert.False(t, req.IncludeHistory)
		require.NotNil(t, req.Weights)
		assert.InDelta(t, 0.25, req.Weights.Semantic, 1e-9)
		assert.InDelta(t, 0.75, req.Weights.Lexical, 1e-9)
	})
}

func TestChatREPL(t *testing.T) {
	kb, err := groundwork.Open("", groundwork.InMemory(), groundwork.WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer kb.Close()

	bot, err := kb.NewChatbot()
	require.NoError(t, err)

	var out bytes.Buffer
	repl := &chatREPL{
		bot:     bot,
		opts:    chat.DefaultOptions("s1"),
		history: kb.Conversations(),
		in:      strings.NewReader("/help\n\nWhat about refunds?\n/good\n/history\n/clear\n/history\n/quit\nnever read\n"),
		out:     &out,
	}
	require.NoError(t, repl.run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Session s1")
	assert.Contains(t, text, "/quit")
	assert.Contains(t, text, mock.DefaultAnswer)
	assert.Contains(t, text, "Thanks for the feedback.")
	assert.Contains(t, text, "User: What about refunds?")
	assert.Contains(t, text, "Conversation cleared.")
	assert.Contains(t, text, "No turns yet.")

	turns, err := kb.Conversations().Turns(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	summary, err := kb.Analytics().Stats(context.Background(), 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalQueries)
	assert.Equal(t, 1, summary.PositiveFeedback)
}

func TestSetupLogger(t *testing.T) {
	newLoggerApp := func(action cli.ActionFunc) *cli.App {
		return &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "log-level",
					Aliases: []string{"l"},
					Value:   "info",
				},
			},
			Before: setupLogger,
			Action: action,
		}
	}
	noop := func(c *cli.Context) error { return nil }

	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				err := newLoggerApp(noop).Run([]string{"test", "--log-level", tc.input})
				require.NoError(t, err)
				assert.True(t, slog.Default().Enabled(context.Background(), tc.expected))
				if tc.expected > slog.LevelDebug {
					assert.False(t, slog.Default().Enabled(context.Background(), tc.expected-1))
				}
			})
		}
	})

	t.Run("case insensitive log levels", func(t *testing.T) {
		for _, tc := range []string{"DEBUG", "Info", "WaRn", "ERROR"} {
			t.Run(tc, func(t *testing.T) {
				require.NoError(t, newLoggerApp(noop).Run([]string{"test", "--log-level", tc}))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		err := newLoggerApp(noop).Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		app := newLoggerApp(func(c *cli.Context) error {
			assert.Equal(t, "debug", c.String("log-level"))
			return nil
		})
		require.NoError(t, app.Run([]string{"test", "-l", "debug"}))
	})
}

func TestServeCommandFlags(t *testing.T) {
	cmd := findCommand(t, newApp(), "serve")

	names := map[string]bool{}
	for _, flag := range cmd.Flags {
		names[flag.Names()[0]] = true
	}
	assert.True(t, names["watch"], "serve can watch the knowledge base directory")
	assert.True(t, names["dir"])
	assert.True(t, names["top-k"], "retrieval flags are kept")
}

func TestIngestionOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts, err := ingestionOptions(config.Default())
		require.NoError(t, err)
		assert.NotEmpty(t, opts)
	})

	t.Run("rejects overlap not below chunk size", func(t *testing.T) {
		cfg := config.Default()
		cfg.Ingestion.ChunkOverlap = cfg.Ingestion.ChunkSize
		_, err := ingestionOptions(cfg)
		assert.Error(t, err)
	})
}
