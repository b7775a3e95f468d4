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


package mcpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/poiesic/groundwork"
	"github.com/poiesic/groundwork/chat"
	"github.com/poiesic/groundwork/ingestion"
	"github.com/poiesic/groundwork/rag"
)

const (
	// ServerName is the MCP server name
	ServerName = "groundwork"
	// ServerVersion is the current server version
	ServerVersion = "0.1.0"
)

// ErrKnowledgeBaseRequired is returned when no knowledge base is provided.
var ErrKnowledgeBaseRequired = errors.New("knowledge base required")

// Server wraps the MCP server with the knowledge base it serves.
type Server struct {
	mcp      *server.MCPServer
	kb       *groundwork.KnowledgeBase
	engine   *rag.Engine
	bot      *chat.Bot
	defaults rag.Request
	now      func() time.Time
	logger   *slog.Logger

	ingestOpts []ingestion.Option
	ingestMu   sync.Mutex // one document at a time, so Wait reports only its batches
	pipeline   *ingestion.Pipeline
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithDefaults sets the retrieval settings used when a tool call omits them.
// Only TopK, UseHybrid, Weights, Budget and IncludeHistory are read.
func WithDefaults(defaults rag.Request) Option {
	return func(s *Server) error {
		s.defaults = defaults
		return nil
	}
}

// WithIngestionOptions configures the pipeline behind the ingest_document tool.
func WithIngestionOptions(opts ...ingestion.Option) Option {
	return func(s *Server) error {
		s.ingestOpts = append(s.ingestOpts, opts...)
		return nil
	}
}

// New creates a server over kb and registers every tool.
func New(kb *groundwork.KnowledgeBase, opts ...Option) (*Server, error) {
	if kb == nil {
		return nil, ErrKnowledgeBaseRequired
	}
	s := &Server{
		kb: kb,
		defaults: rag.Request{
			TopK:           rag.DefaultTopK,
			UseHybrid:      true,
			Budget:         rag.DefaultBudget,
			IncludeHistory: true,
		},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "mcpserver")

	var err error
	if s.engine, err = kb.NewEngine(rag.WithLogger(s.logger)); err != nil {
		return nil, err
	}
	if s.bot, err = kb.NewChatbot(chat.WithLogger(s.logger)); err != nil {
		return nil, err
	}
	ingestOpts := append([]ingestion.Option{ingestion.WithLogger(s.logger)}, s.ingestOpts...)
	if s.pipeline, err = kb.NewIngestionPipeline(ingestOpts...); err != nil {
		return nil, err
	}

	s.mcp = server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false))
	s.registerTools()
	return s, nil
}

// Serve speaks MCP on stdin and stdout until ctx is done or the client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Close releases the ingestion workers. The knowledge base stays open.
func (s *Server) Close() error {
	s.pipeline.Release()
	return nil
}

// Listen speaks MCP over in and out.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("serving MCP")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(answerContextTool(), s.handleAnswerContext)
	s.mcp.AddTool(chatTool(), s.handleChat)
	s.mcp.AddTool(getConversationTool(), s.handleGetConversation)
	s.mcp.AddTool(clearConversationTool(), s.handleClearConversation)
	s.mcp.AddTool(submitFeedbackTool(), s.handleSubmitFeedback)
	s.mcp.AddTool(knowledgeBaseStatsTool(), s.handleKnowledgeBaseStats)
	s.mcp.AddTool(analyticsTool(), s.handleAnalytics)
	s.mcp.AddTool(ingestDocumentTool(), s.handleIngestDocument)
	s.mcp.AddTool(removeDocumentTool(), s.handleRemoveDocument)
}
