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

package chat

import (
	"strings"

	"github.com/poiesic/groundwork/core"
)

const (
	answerPreamble = "You are a helpful AI assistant that answers questions based on the provided context and conversation history.\n\n"

	noHistory = "Previous conversation:\nNo previous conversation.\n"

	noContext = "Context information:\nNo relevant information was found in the knowledge base.\n"

	answerInstructions = "Please provide a detailed and accurate answer based on the context above. " +
		"If the context doesn't contain enough information to answer the question, say so and provide a general answer if possible. " +
		"Use the conversation history to maintain context and provide coherent responses."
)

// RenderPrompt renders the answer prompt for question from an assembled context.
// The question is always the user's own text, never a rewritten query.
func RenderPrompt(question string, pc *core.PromptContext) string {
	var b strings.Builder
	b.WriteString(answerPreamble)

	if pc == nil {
		pc = &core.PromptContext{}
	}
	if len(pc.Turns) == 0 {
		b.WriteString(noHistory)
		b.WriteByte('\n')
	}
	b.WriteString(pc.Text)
	if len(pc.Passages) == 0 {
		if len(pc.Turns) > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(noContext)
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\n")
	b.WriteString(answerInstructions)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
