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

import "github.com/mark3labs/mcp-go/mcp"

// retrievalProperties are the arguments shared by answer_context and chat.
func retrievalProperties() map[string]any {
	return map[string]any{
		"session_id": map[string]any{
			"type":        "string",
			"description": "Conversation session. History of this session is used and the turn is recorded",
		},
		"top_k": map[string]any{
			"type":        "integer",
			"description": "Maximum number of passages to retrieve",
			"default":     5,
			"minimum":     0,
			"maximum":     maxTopK,
		},
		"use_hybrid": map[string]any{
			"type":        "boolean",
			"description": "Combine semantic and lexical scores; false ranks by semantic similarity only",
			"default":     true,
		},
		"semantic_weight": map[string]any{
			"type":        "number",
			"description": "Weight of the semantic score; must sum to 1 with lexical_weight",
			"minimum":     0.0,
			"maximum":     1.0,
		},
		"lexical_weight": map[string]any{
			"type":        "number",
			"description": "Weight of the lexical score; must sum to 1 with semantic_weight",
			"minimum":     0.0,
			"maximum":     1.0,
		},
		"include_history": map[string]any{
			"type":        "boolean",
			"description": "Render recent turns of the session and use them to rewrite the query",
			"default":     true,
		},
	}
}

func answerContextTool() mcp.Tool {
	properties := retrievalProperties()
	properties["query"] = map[string]any{
		"type":        "string",
		"description": "The user's question",
	}
	properties["budget"] = map[string]any{
		"type":        "integer",
		"description": "Maximum context length in characters",
		"default":     8000,
		"minimum":     1,
	}
	return mcp.Tool{
		Name:        "answer_context",
		Description: "Retrieve and rank knowledge-base passages for a question and assemble them, with recent conversation turns, into a prompt context",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   []string{"query"},
		},
	}
}

func chatTool() mcp.Tool {
	properties := retrievalProperties()
	properties["question"] = map[string]any{
		"type":        "string",
		"description": "The user's question",
	}
	return mcp.Tool{
		Name:        "chat",
		Description: "Answer a question from the knowledge base. A new session is started when session_id is omitted",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   []string{"question"},
		},
	}
}

func sessionTool(name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Conversation session",
				},
			},
			Required: []string{"session_id"},
		},
	}
}

func getConversationTool() mcp.Tool {
	return sessionTool("get_conversation", "List the stored turns of a conversation, oldest first")
}

func clearConversationTool() mcp.Tool {
	return sessionTool("clear_conversation", "Delete every stored turn of a conversation")
}

func submitFeedbackTool() mcp.Tool {
	return mcp.Tool{
		Name:        "submit_feedback",
		Description: "Record whether an answer was helpful",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"positive": map[string]any{
					"type":        "boolean",
					"description": "True if the answer was helpful",
				},
			},
			Required: []string{"positive"},
		},
	}
}

func knowledgeBaseStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "knowledge_base_stats",
		Description: "Count passages, embedded passages, sources and sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}
}

func analyticsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analytics",
		Description: "Summarize queries, sessions, errors and feedback over recent days",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"days": map[string]any{
					"type":        "integer",
					"description": "Number of days ending today",
					"default":     defaultAnalyticsDays,
					"minimum":     1,
					"maximum":     maxAnalyticsDays,
				},
			},
		},
	}
}

func ingestDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_document",
		Description: "Add a document to the knowledge base, replacing any earlier document with the same source. The document is searchable when the call returns",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"source": map[string]any{
					"type":        "string",
					"description": "Document name, such as a relative file path",
				},
				"text": map[string]any{
					"type":        "string",
					"description": "Full document text",
				},
			},
			Required: []string{"source", "text"},
		},
	}
}

func removeDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_document",
		Description: "Remove every passage of a document from the knowledge base",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"source": map[string]any{
					"type":        "string",
					"description": "Document name used when it was ingested",
				},
			},
			Required: []string{"source"},
		},
	}
}
