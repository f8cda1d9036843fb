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

// Package llmworker runs one conversational turn per chunk against the
// configured LLM backend and classifies the response as a tool call or an
// answer.
package llmworker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abcxyz/pkg/logging"
	"github.com/lmalviya/review-pipeline/pkg/events"
	"github.com/lmalviya/review-pipeline/pkg/llm"
	"github.com/lmalviya/review-pipeline/pkg/queue"
	"github.com/lmalviya/review-pipeline/pkg/state"
)

// Response classifications emitted by the model.
const (
	modelTool   = "tool"
	modelAnswer = "answer"
)

// llmResult is the JSON shape the model is instructed to produce.
type llmResult struct {
	Model    string `json:"model"`
	ToolCall *struct {
		Tool string         `json:"tool"`
		Args map[string]any `json:"args"`
	} `json:"tool_call"`
	Content []struct {
		Line    int    `json:"line"`
		Comment string `json:"comment"`
	} `json:"content"`
}

// Worker consumes the llm queue.
type Worker struct {
	store     state.Store
	publisher queue.Publisher
	client    llm.Client

	gitQueue   string
	promptName string
}

// New creates a Worker.
func New(cfg *Config, store state.Store, publisher queue.Publisher, client llm.Client) *Worker {
	return &Worker{
		store:      store,
		publisher:  publisher,
		client:     client,
		gitQueue:   cfg.GitQueue,
		promptName: cfg.SystemPromptName,
	}
}

// Handle processes one llm queue message: load the chunk and its
// conversation, run a single model turn, and route the chunk by the
// response.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	logger := logging.FromContext(ctx)

	var task events.ChunkTask
	if err := json.Unmarshal(body, &task); err != nil {
		logger.ErrorContext(ctx, "dropping malformed llm message", "error", err)
		return nil
	}
	if task.ChunkID == "" {
		logger.ErrorContext(ctx, "dropping llm message without chunk_id")
		return nil
	}

	chunk, err := w.store.GetChunk(ctx, task.ChunkID)
	if err != nil {
		return fmt.Errorf("failed to load chunk: %w", err)
	}
	if chunk == nil {
		logger.ErrorContext(ctx, "chunk not found, dropping message", "chunk_id", task.ChunkID)
		return nil
	}
	if chunk.Status.Terminal() {
		logger.InfoContext(ctx, "chunk already terminal, skipping",
			"chunk_id", chunk.ChunkID,
			"status", chunk.Status)
		return nil
	}

	logger.InfoContext(ctx, "processing chunk",
		"chunk_id", chunk.ChunkID,
		"context_level", chunk.ContextLevel)

	conversation, err := w.store.GetConversation(ctx, chunk.ReviewRequestID, chunk.ChunkID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	switch {
	case len(conversation) == 0:
		repoID, prID := w.requestInfo(ctx, chunk.ReviewRequestID)
		conversation = initialConversation(w.promptName, chunk, repoID, prID)
	case chunk.Metadata.ToolOutput != "":
		// The chunk came back from a completed tool call; convey the output
		// exactly once.
		conversation = append(conversation, contextMessage(chunk.Metadata.LastTool, chunk.Metadata.ToolOutput))
		chunk.Metadata.ToolOutput = ""
	}

	responseText, err := w.client.GenerateResponse(ctx, toLLMMessages(conversation))
	if err != nil {
		logger.ErrorContext(ctx, "llm backend failed",
			"chunk_id", chunk.ChunkID,
			"error", err)
		return w.failChunk(ctx, chunk)
	}

	conversation = append(conversation, &state.Message{Role: "assistant", Content: responseText})
	if err := w.store.SaveConversation(ctx, chunk.ReviewRequestID, chunk.ChunkID, conversation); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	var result llmResult
	if err := json.Unmarshal([]byte(responseText), &result); err != nil {
		logger.ErrorContext(ctx, "llm response is not valid json",
			"chunk_id", chunk.ChunkID,
			"error", err)
		return w.failChunk(ctx, chunk)
	}

	switch result.Model {
	case modelTool:
		return w.routeToolCall(ctx, chunk, &result)
	case modelAnswer:
		return w.routeAnswer(ctx, chunk, &result)
	default:
		logger.ErrorContext(ctx, "llm response has unknown model kind",
			"chunk_id", chunk.ChunkID,
			"model", result.Model)
		return w.failChunk(ctx, chunk)
	}
}

func (w *Worker) routeToolCall(ctx context.Context, chunk *state.Chunk, result *llmResult) error {
	logger := logging.FromContext(ctx)

	if result.ToolCall == nil || result.ToolCall.Tool == "" {
		logger.ErrorContext(ctx, "tool response without tool_call", "chunk_id", chunk.ChunkID)
		return w.failChunk(ctx, chunk)
	}

	chunk.Status = state.ChunkToolRequired
	chunk.Metadata.LastTool = result.ToolCall.Tool
	chunk.Metadata.ToolArgs = result.ToolCall.Args
	if err := w.store.SaveChunk(ctx, chunk); err != nil {
		return fmt.Errorf("failed to save chunk: %w", err)
	}

	if err := w.publisher.Publish(ctx, w.gitQueue, &events.Task{
		Action:  events.ActionToolCall,
		ChunkID: chunk.ChunkID,
	}); err != nil {
		return fmt.Errorf("failed to enqueue tool call: %w", err)
	}

	logger.InfoContext(ctx, "chunk needs tool call",
		"chunk_id", chunk.ChunkID,
		"tool", chunk.Metadata.LastTool)
	return nil
}

func (w *Worker) routeAnswer(ctx context.Context, chunk *state.Chunk, result *llmResult) error {
	logger := logging.FromContext(ctx)

	if len(result.Content) == 0 {
		chunk.Status = state.ChunkCompleted
		if err := w.store.SaveChunk(ctx, chunk); err != nil {
			return fmt.Errorf("failed to save chunk: %w", err)
		}
		logger.InfoContext(ctx, "chunk completed with no issues", "chunk_id", chunk.ChunkID)
		return nil
	}

	// Only the first comment is posted; the rest stay in the conversation
	// record.
	first := result.Content[0]
	chunk.CommentBody = first.Comment
	chunk.LineNumber = first.Line
	chunk.Status = state.ChunkCommentReady
	if err := w.store.SaveChunk(ctx, chunk); err != nil {
		return fmt.Errorf("failed to save chunk: %w", err)
	}

	if err := w.publisher.Publish(ctx, w.gitQueue, &events.Task{
		Action:  events.ActionGitComment,
		ChunkID: chunk.ChunkID,
	}); err != nil {
		return fmt.Errorf("failed to enqueue comment: %w", err)
	}

	logger.InfoContext(ctx, "chunk generated comment",
		"chunk_id", chunk.ChunkID,
		"line", chunk.LineNumber)
	return nil
}

// requestInfo fetches the repo and PR identifiers for the initial prompt.
// Failures degrade to placeholders rather than failing the turn.
func (w *Worker) requestInfo(ctx context.Context, reviewRequestID string) (string, int) {
	req, err := w.store.GetReviewRequest(ctx, reviewRequestID)
	if err != nil || req == nil {
		logging.FromContext(ctx).WarnContext(ctx, "review request not found for prompt",
			"review_request_id", reviewRequestID,
			"error", err)
		return "unknown", 0
	}
	return req.RepoID, req.PRID
}

// failChunk marks the chunk FAILED and acknowledges the message; retrying an
// unparseable or refused model turn would loop forever.
func (w *Worker) failChunk(ctx context.Context, chunk *state.Chunk) error {
	chunk.Status = state.ChunkFailed
	if err := w.store.SaveChunk(ctx, chunk); err != nil {
		return fmt.Errorf("failed to mark chunk failed: %w", err)
	}
	return nil
}

func toLLMMessages(conversation []*state.Message) []*llm.Message {
	msgs := make([]*llm.Message, 0, len(conversation))
	for _, m := range conversation {
		msgs = append(msgs, &llm.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}
