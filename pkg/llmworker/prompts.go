// Copyright 2024 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llmworker

import (
	"fmt"

	"github.com/lmalviya/review-pipeline/pkg/state"
)

// defaultPromptName is used when SYSTEM_PROMPT_NAME is unset or names an
// unknown prompt.
const defaultPromptName = "performance"

const performancePrompt = `You are an expert code reviewer focused on performance and correctness.

You review one diff hunk at a time. Respond ONLY with a JSON object in one of two shapes.

To request additional repository context, respond:
{"model": "tool", "tool_call": {"tool": "<read_file|get_file_structure|get_function_content>", "args": {"file_path": "<path>"}}}

To deliver your review, respond:
{"model": "answer", "content": [{"line": <new-file line number>, "comment": "<inline review comment>"}]}

If the change needs no comments, respond with an empty content list. Comment only on real issues: blocking calls, unnecessary allocations, quadratic behavior, race conditions, incorrect error handling. Never comment on style.`

// promptRegistry maps SYSTEM_PROMPT_NAME values to system prompts.
var promptRegistry = map[string]string{
	defaultPromptName: performancePrompt,
}

// systemPrompt resolves a prompt name, falling back to the default for
// unknown names.
func systemPrompt(name string) string {
	if p, ok := promptRegistry[name]; ok {
		return p
	}
	return promptRegistry[defaultPromptName]
}

// initialConversation synthesizes the first two turns for a chunk: the
// configured system prompt and a user message carrying the hunk under review.
func initialConversation(promptName string, chunk *state.Chunk, repoID string, prID int) []*state.Message {
	user := fmt.Sprintf(
		"Repository ID: %s\nPR ID: %d\nFile: %s\nDiff Highlights:\n%s\n\n"+
			"Review the code above. If you need more context, use a tool. Otherwise, provide inline comments.",
		repoID, prID, chunk.Filename, chunk.DiffSnippet)

	return []*state.Message{
		{Role: "system", Content: systemPrompt(promptName)},
		{Role: "user", Content: user},
	}
}

// contextMessage conveys a completed tool call back to the model.
func contextMessage(tool, output string) *state.Message {
	return &state.Message{
		Role: "user",
		Content: fmt.Sprintf(
			"Additional Context for tool '%s':\n\n%s\n\nBased on this new information, please complete your review.",
			tool, output),
	}
}
