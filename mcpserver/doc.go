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


// Package mcpserver exposes a knowledge base over the Model Context Protocol.
//
// The server speaks MCP on stdio and offers tools to build answer contexts,
// chat with history, inspect and clear conversations, record feedback and
// read knowledge-base and usage statistics. Documents can be added or removed
// while the server runs. Tool results are JSON text.
package mcpserver
