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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/poiesic/groundwork/chat"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/ingestion"
	"github.com/poiesic/groundwork/rag"
)

const (
	maxTopK              = 50
	defaultAnalyticsDays = 7
	maxAnalyticsDays     = 365
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery    = -32004 // Query parameter is empty
)

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    any
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data any) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

// toolError maps a domain error to an MCP error.
func toolError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, core.ErrConfig), errors.Is(err, chat.ErrEmptyQuestion),
		errors.Is(err, core.ErrEmptySource), errors.Is(err, core.ErrEmptyText):
		code = ErrorCodeInvalidParams
	}
	return newMCPError(code, message, map[string]any{"error": err.Error()})
}

func arguments(request mcp.CallToolRequest) (map[string]any, error) {
	if request.Params.Arguments == nil {
		return map[string]any{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// retrievalRequest reads the shared retrieval arguments over the server defaults.
func (s *Server) retrievalRequest(args map[string]any) (rag.Request, error) {
	req := s.defaults
	req.SessionID = getStringDefault(args, "session_id", "")
	req.TopK = getIntDefault(args, "top_k", req.TopK)
	req.UseHybrid = getBoolDefault(args, "use_hybrid", req.UseHybrid)
	req.Budget = getIntDefault(args, "budget", req.Budget)
	req.IncludeHistory = getBoolDefault(args, "include_history", req.IncludeHistory)

	if req.TopK < 0 || req.TopK > maxTopK {
		return req, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("top_k must be between 0 and %d", maxTopK), map[string]any{
			"param": "top_k",
			"value": req.TopK,
		})
	}

	semantic, hasSemantic := getFloat(args, "semantic_weight")
	lexical, hasLexical := getFloat(args, "lexical_weight")
	switch {
	case hasSemantic && hasLexical:
		req.Weights = &core.Weights{Semantic: semantic, Lexical: lexical}
	case hasSemantic:
		req.Weights = &core.Weights{Semantic: semantic, Lexical: 1 - semantic}
	case hasLexical:
		req.Weights = &core.Weights{Semantic: 1 - lexical, Lexical: lexical}
	}
	return req, nil
}

type passageView struct {
	ID            uint64  `json:"id"`
	Source        string  `json:"source"`
	Text          string  `json:"text"`
	FinalScore    float64 `json:"final_score"`
	SemanticScore float64 `json:"semantic_score"`
	LexicalScore  float64 `json:"lexical_score"`
}

func (s *Server) handleAnswerContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]any{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	req, err := s.retrievalRequest(args)
	if err != nil {
		return nil, err
	}
	req.Query = query

	pc, err := s.engine.AnswerContext(ctx, req)
	if err != nil {
		s.logger.Warn("answer_context failed", "err", err)
		return nil, toolError("answer_context failed", err)
	}

	passages := make([]passageView, 0, len(pc.Passages))
	for _, sp := range pc.Passages {
		passages = append(passages, passageView{
			ID:            uint64(sp.Passage.Id),
			Source:        sp.Passage.Source,
			Text:          sp.Passage.Text,
			FinalScore:    sp.FinalScore,
			SemanticScore: sp.SemanticScore,
			LexicalScore:  sp.LexicalScore,
		})
	}
	return textResult(map[string]any{
		"context":            pc.Text,
		"passages":           passages,
		"turns":              len(pc.Turns),
		"dropped_passages":   pc.DroppedPassages,
		"dropped_turns":      pc.DroppedTurns,
		"duplicate_passages": pc.DuplicatePassages,
	}), nil
}

func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	question := strings.TrimSpace(getStringDefault(args, "question", ""))
	if question == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "question parameter is required and cannot be empty", map[string]any{
			"param":  "question",
			"reason": "missing or empty",
		})
	}
	req, err := s.retrievalRequest(args)
	if err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		req.SessionID = s.bot.StartSession(ctx)
	}

	resp, err := s.bot.Chat(ctx, question, chat.Options{
		SessionID:      req.SessionID,
		TopK:           req.TopK,
		UseHybrid:      req.UseHybrid,
		Weights:        req.Weights,
		Budget:         req.Budget,
		IncludeHistory: req.IncludeHistory,
	})
	if err != nil {
		s.logger.Warn("chat failed", "session", req.SessionID, "err", err)
		return nil, toolError("chat failed", err)
	}

	sources := make([]map[string]any, 0, len(resp.Sources))
	for _, source := range resp.Sources {
		sources = append(sources, map[string]any{
			"source":  source.Source,
			"excerpt": source.Excerpt,
			"score":   source.Score,
		})
	}
	return textResult(map[string]any{
		"answer":           resp.Answer,
		"session_id":       resp.SessionID,
		"sources":          sources,
		"response_time_ms": resp.ResponseTime.Milliseconds(),
	}), nil
}

func requireSession(args map[string]any) (string, error) {
	sessionID := strings.TrimSpace(getStringDefault(args, "session_id", ""))
	if sessionID == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "session_id parameter is required", map[string]any{
			"param":  "session_id",
			"reason": "missing or empty",
		})
	}
	return sessionID, nil
}

func (s *Server) handleGetConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	sessionID, err := requireSession(args)
	if err != nil {
		return nil, err
	}

	turns, err := s.kb.Conversations().Turns(ctx, sessionID)
	if err != nil {
		return nil, toolError("failed to read conversation", err)
	}
	views := make([]map[string]any, 0, len(turns))
	for _, turn := range turns {
		views = append(views, map[string]any{
			"question":  turn.Question,
			"answer":    turn.Answer,
			"sources":   turn.Sources,
			"timestamp": turn.Timestamp,
		})
	}
	return textResult(map[string]any{
		"session_id": sessionID,
		"turns":      views,
	}), nil
}

func (s *Server) handleClearConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	sessionID, err := requireSession(args)
	if err != nil {
		return nil, err
	}
	if err := s.kb.Conversations().ClearSession(ctx, sessionID); err != nil {
		return nil, toolError("failed to clear conversation", err)
	}
	return textResult(map[string]any{"session_id": sessionID, "cleared": true}), nil
}

func (s *Server) handleSubmitFeedback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	positive, ok := args["positive"].(bool)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "positive parameter is required", map[string]any{
			"param":  "positive",
			"reason": "missing or not a boolean",
		})
	}
	if err := s.bot.Feedback(ctx, positive); err != nil {
		return nil, toolError("failed to record feedback", err)
	}
	return textResult(map[string]any{"recorded": true, "positive": positive}), nil
}

func (s *Server) handleKnowledgeBaseStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.kb.Stats(ctx)
	if err != nil {
		return nil, toolError("failed to read statistics", err)
	}
	return textResult(map[string]any{
		"passages":          stats.Passages,
		"embedded_passages": stats.EmbeddedPassages,
		"sources":           stats.Sources,
		"sessions":          stats.Sessions,
	}), nil
}

func (s *Server) handleAnalytics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	days := getIntDefault(args, "days", defaultAnalyticsDays)
	if days < 1 || days > maxAnalyticsDays {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("days must be between 1 and %d", maxAnalyticsDays), map[string]any{
			"param": "days",
			"value": days,
		})
	}

	summary, err := s.kb.Analytics().Stats(ctx, days, s.now())
	if err != nil {
		return nil, toolError("failed to read analytics", err)
	}
	daily := make([]map[string]any, 0, len(summary.Daily))
	for _, d := range summary.Daily {
		daily = append(daily, map[string]any{
			"day":      d.Day.Format("2006-01-02"),
			"queries":  d.Queries,
			"sessions": d.Sessions,
			"errors":   d.Errors,
		})
	}
	return textResult(map[string]any{
		"days":                     summary.Days,
		"total_queries":            summary.TotalQueries,
		"total_sessions":           summary.TotalSessions,
		"total_errors":             summary.TotalErrors,
		"positive_feedback":        summary.PositiveFeedback,
		"negative_feedback":        summary.NegativeFeedback,
		"average_response_time_ms": summary.AverageResponseTime.Milliseconds(),
		"average_sources":          summary.AverageSources,
		"satisfaction_rate":        summary.SatisfactionRate,
		"daily":                    daily,
	}), nil
}

func requireString(args map[string]any, key string) (string, error) {
	val := getStringDefault(args, key, "")
	if strings.TrimSpace(val) == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required and cannot be empty", map[string]any{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

func (s *Server) handleIngestDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	source, err := requireString(args, "source")
	if err != nil {
		return nil, err
	}
	text, err := requireString(args, "text")
	if err != nil {
		return nil, err
	}

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	stored, err := s.pipeline.Ingest(ctx, ingestion.Document{Source: strings.TrimSpace(source), Text: text})
	if waitErr := s.pipeline.Wait(); err == nil {
		err = waitErr
	}
	if err != nil {
		s.logger.Warn("ingest_document failed", "source", source, "err", err)
		return nil, toolError("failed to ingest document", err)
	}
	return textResult(map[string]any{
		"source":   strings.TrimSpace(source),
		"passages": stored,
	}), nil
}

func (s *Server) handleRemoveDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	source, err := requireString(args, "source")
	if err != nil {
		return nil, err
	}

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	removed, err := s.pipeline.RemoveSource(ctx, strings.TrimSpace(source))
	if err != nil {
		return nil, toolError("failed to remove document", err)
	}
	return textResult(map[string]any{
		"source":  strings.TrimSpace(source),
		"removed": removed,
	}), nil
}

func textResult(data map[string]any) *mcp.CallToolResult {
	return mcp.NewToolResultText(formatJSON(data))
}

func formatJSON(data map[string]any) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]any, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]any, key string, defaultValue int) int {
	switch val := args[key].(type) {
	case float64:
		return int(val)
	case int:
		return val
	}
	return defaultValue
}

func getFloat(args map[string]any, key string) (float64, bool) {
	switch val := args[key].(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	}
	return 0, false
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]any, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
