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

// Package gitworker executes provider-side effects for the pipeline: it
// resolves tool calls into file content and posts inline review comments
// exactly once per (repo, pr, comment).
package gitworker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abcxyz/pkg/logging"
	"github.com/lmalviya/review-pipeline/pkg/events"
	"github.com/lmalviya/review-pipeline/pkg/queue"
	"github.com/lmalviya/review-pipeline/pkg/scm"
	"github.com/lmalviya/review-pipeline/pkg/state"
)

// Tools the model may request.
const (
	toolReadFile           = "read_file"
	toolGetFileStructure   = "get_file_structure"
	toolGetFunctionContent = "get_function_content"
)

// Worker consumes the git queue.
type Worker struct {
	store     state.Store
	publisher queue.Publisher
	scms      *scm.Registry

	orchestratorQueue string
}

// New creates a Worker.
func New(cfg *Config, store state.Store, publisher queue.Publisher, scms *scm.Registry) *Worker {
	return &Worker{
		store:             store,
		publisher:         publisher,
		scms:              scms,
		orchestratorQueue: cfg.OrchestratorQueue,
	}
}

// Handle processes one git queue message.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	logger := logging.FromContext(ctx)

	var task events.Task
	if err := json.Unmarshal(body, &task); err != nil {
		logger.ErrorContext(ctx, "dropping malformed git message", "error", err)
		return nil
	}

	switch task.Action {
	case events.ActionGitComment:
		return w.postComment(ctx, task.ChunkID)
	case events.ActionToolCall:
		return w.runToolCall(ctx, task.ChunkID)
	default:
		logger.WarnContext(ctx, "ignoring unknown git action", "action", task.Action)
		return nil
	}
}

// postComment posts the chunk's inline comment. A comment that already has an
// idempotency marker is treated as posted without touching the provider, so a
// redelivered message cannot duplicate it.
func (w *Worker) postComment(ctx context.Context, chunkID string) error {
	logger := logging.FromContext(ctx)

	chunk, req, s, err := w.load(ctx, chunkID)
	if err != nil || chunk == nil {
		return err
	}

	if chunk.Status != state.ChunkCommentReady {
		logger.InfoContext(ctx, "chunk not ready for posting, skipping",
			"chunk_id", chunk.ChunkID,
			"status", chunk.Status)
		return nil
	}

	if chunk.CommentBody == "" || chunk.Filename == "" || chunk.LineNumber <= 0 {
		logger.ErrorContext(ctx, "chunk missing comment fields",
			"chunk_id", chunk.ChunkID,
			"filename", chunk.Filename,
			"line", chunk.LineNumber)
		return w.failChunk(ctx, chunk)
	}

	if chunk.IdempotencyHash == "" {
		chunk.IdempotencyHash = state.IdempotencyHash(chunk.Filename, chunk.LineNumber, chunk.CommentBody)
	}

	posted, err := w.store.WasPosted(ctx, req.RepoID, req.PRID, chunk.IdempotencyHash)
	if err != nil {
		return fmt.Errorf("failed to check idempotency marker: %w", err)
	}
	if posted {
		logger.InfoContext(ctx, "comment already posted, skipping provider call",
			"chunk_id", chunk.ChunkID,
			"hash", chunk.IdempotencyHash)
		chunk.Status = state.ChunkPosted
		if err := w.store.SaveChunk(ctx, chunk); err != nil {
			return fmt.Errorf("failed to save chunk: %w", err)
		}
		return nil
	}

	headSHA := req.Metadata["head_sha"]
	if headSHA == "" {
		logger.ErrorContext(ctx, "request metadata missing head_sha",
			"chunk_id", chunk.ChunkID,
			"review_request_id", req.ReviewRequestID)
		return w.failChunk(ctx, chunk)
	}

	comment := &scm.Comment{
		CommitSHA: headSHA,
		BaseSHA:   req.Metadata["base_sha"],
		StartSHA:  req.Metadata["start_sha"],
		File:      chunk.Filename,
		Line:      chunk.LineNumber,
		Body:      chunk.CommentBody,
	}
	if err := s.PostPRComment(ctx, req.RepoID, req.PRID, comment); err != nil {
		logger.ErrorContext(ctx, "failed to post comment",
			"chunk_id", chunk.ChunkID,
			"repo_id", req.RepoID,
			"pr_id", req.PRID,
			"error", err)
		return w.failChunk(ctx, chunk)
	}

	if err := w.store.MarkPosted(ctx, req.RepoID, req.PRID, chunk.IdempotencyHash); err != nil {
		return fmt.Errorf("failed to write idempotency marker: %w", err)
	}

	chunk.Status = state.ChunkPosted
	if err := w.store.SaveChunk(ctx, chunk); err != nil {
		return fmt.Errorf("failed to save chunk: %w", err)
	}

	logger.InfoContext(ctx, "posted inline comment",
		"chunk_id", chunk.ChunkID,
		"repo_id", req.RepoID,
		"pr_id", req.PRID,
		"file", chunk.Filename,
		"line", chunk.LineNumber)
	return nil
}

// runToolCall resolves the chunk's pending tool call into tool output and
// loops the chunk back through the orchestrator. Unknown tools still loop
// back; the model decides how to recover.
func (w *Worker) runToolCall(ctx context.Context, chunkID string) error {
	logger := logging.FromContext(ctx)

	chunk, req, s, err := w.load(ctx, chunkID)
	if err != nil || chunk == nil {
		return err
	}

	if chunk.Status != state.ChunkToolRequired {
		logger.InfoContext(ctx, "chunk has no pending tool call, skipping",
			"chunk_id", chunk.ChunkID,
			"status", chunk.Status)
		return nil
	}

	filePath := chunk.Filename
	if v, ok := chunk.Metadata.ToolArgs["file_path"].(string); ok && v != "" {
		filePath = v
	}

	headSHA := req.Metadata["head_sha"]

	var output string
	switch chunk.Metadata.LastTool {
	case toolReadFile, toolGetFunctionContent:
		output, err = s.GetFileContent(ctx, req.RepoID, filePath, headSHA)
	case toolGetFileStructure:
		var content string
		content, err = s.GetFileContent(ctx, req.RepoID, filePath, headSHA)
		output = fmt.Sprintf("Structure of %s:\n\n%s", filePath, content)
	default:
		output = fmt.Sprintf("Unknown tool: %s", chunk.Metadata.LastTool)
	}
	if err != nil {
		logger.ErrorContext(ctx, "tool call failed",
			"chunk_id", chunk.ChunkID,
			"tool", chunk.Metadata.LastTool,
			"file_path", filePath,
			"error", err)
		return w.failChunk(ctx, chunk)
	}

	chunk.Metadata.ToolOutput = output
	chunk.ContextLevel++
	chunk.Status = state.ChunkContextReady
	if err := w.store.SaveChunk(ctx, chunk); err != nil {
		return fmt.Errorf("failed to save chunk: %w", err)
	}

	if err := w.publisher.Publish(ctx, w.orchestratorQueue, &events.Task{
		Action:  events.ActionEvaluateChunk,
		ChunkID: chunk.ChunkID,
	}); err != nil {
		return fmt.Errorf("failed to re-enqueue chunk: %w", err)
	}

	logger.InfoContext(ctx, "tool call completed",
		"chunk_id", chunk.ChunkID,
		"tool", chunk.Metadata.LastTool,
		"context_level", chunk.ContextLevel)
	return nil
}

// load fetches the chunk, its review request and the provider client. A
// missing chunk or request returns (nil, nil, nil, nil) and the caller drops
// the message.
func (w *Worker) load(ctx context.Context, chunkID string) (*state.Chunk, *state.ReviewRequest, scm.SCM, error) {
	logger := logging.FromContext(ctx)

	if chunkID == "" {
		logger.ErrorContext(ctx, "dropping git message without chunk_id")
		return nil, nil, nil, nil
	}

	chunk, err := w.store.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load chunk: %w", err)
	}
	if chunk == nil {
		logger.ErrorContext(ctx, "chunk not found, dropping message", "chunk_id", chunkID)
		return nil, nil, nil, nil
	}

	req, err := w.store.GetReviewRequest(ctx, chunk.ReviewRequestID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load review request: %w", err)
	}
	if req == nil {
		logger.ErrorContext(ctx, "review request not found, dropping message",
			"chunk_id", chunkID,
			"review_request_id", chunk.ReviewRequestID)
		return nil, nil, nil, nil
	}

	s, err := w.scms.Get(req.Provider)
	if err != nil {
		logger.ErrorContext(ctx, "no client for provider",
			"chunk_id", chunkID,
			"provider", req.Provider)
		if ferr := w.failChunk(ctx, chunk); ferr != nil {
			return nil, nil, nil, ferr
		}
		return nil, nil, nil, nil
	}

	return chunk, req, s, nil
}

func (w *Worker) failChunk(ctx context.Context, chunk *state.Chunk) error {
	chunk.Status = state.ChunkFailed
	if err := w.store.SaveChunk(ctx, chunk); err != nil {
		return fmt.Errorf("failed to mark chunk failed: %w", err)
	}
	return nil
}
