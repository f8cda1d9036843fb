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

// Package orchestrator decomposes a PR diff into reviewable chunks and drives
// each chunk through the review state machine.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/workerpool"
	"github.com/lmalviya/review-pipeline/pkg/events"
	"github.com/lmalviya/review-pipeline/pkg/queue"
	"github.com/lmalviya/review-pipeline/pkg/scm"
	"github.com/lmalviya/review-pipeline/pkg/state"
)

// completedNoChanges is recorded on requests that produced zero chunks.
const completedNoChanges = "No reviewable changes found"

// Orchestrator consumes the orchestrator queue and handles the
// START_PR_REVIEW and EVALUATE_CHUNK actions.
type Orchestrator struct {
	store     state.Store
	publisher queue.Publisher
	scms      *scm.Registry
	filter    *FileFilter

	maxHunkChanges    int
	orchestratorQueue string
	llmQueue          string
}

// New creates an Orchestrator.
func New(cfg *Config, store state.Store, publisher queue.Publisher, scms *scm.Registry) *Orchestrator {
	return &Orchestrator{
		store:             store,
		publisher:         publisher,
		scms:              scms,
		filter:            NewFileFilter(cfg.IgnoredExtensions, cfg.IgnoredFiles, cfg.IgnoredDirectories),
		maxHunkChanges:    cfg.MaxHunkChanges,
		orchestratorQueue: cfg.OrchestratorQueue,
		llmQueue:          cfg.LLMQueue,
	}
}

// Handle processes one orchestrator queue message.
func (o *Orchestrator) Handle(ctx context.Context, body []byte) error {
	logger := logging.FromContext(ctx)

	var task events.Task
	if err := json.Unmarshal(body, &task); err != nil {
		logger.ErrorContext(ctx, "dropping malformed orchestrator message", "error", err)
		return nil
	}

	switch task.Action {
	case events.ActionStartPRReview:
		return o.startPRReview(ctx, &task)
	case events.ActionEvaluateChunk:
		return o.evaluateChunk(ctx, task.ChunkID)
	default:
		logger.WarnContext(ctx, "unknown orchestrator action", "action", task.Action)
		return nil
	}
}

// startPRReview materializes a ReviewRequest and its chunks, then enqueues an
// EVALUATE_CHUNK per chunk. Files are processed in parallel; diff or metadata
// fetch failure fails the whole request.
func (o *Orchestrator) startPRReview(ctx context.Context, task *events.Task) error {
	logger := logging.FromContext(ctx)
	logger.InfoContext(ctx, "starting review",
		"review_request_id", task.ReviewRequestID,
		"provider", task.Provider,
		"repo", task.Repo,
		"pr_number", task.PRNumber)

	req := &state.ReviewRequest{
		ReviewRequestID: task.ReviewRequestID,
		RepoID:          task.Repo,
		PRID:            task.PRNumber,
		Provider:        task.Provider,
		Status:          state.RequestInProgress,
		CreatedAt:       time.Now().Unix(),
		Metadata:        map[string]string{},
	}
	if err := o.store.SaveReviewRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to save review request: %w", err)
	}

	client, err := o.scms.Get(task.Provider)
	if err != nil {
		return o.failRequest(ctx, req, err)
	}

	var diffs []*scm.FileDiff
	var pr *scm.PullRequest

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		diffs, err = client.GetPullRequestFileDiffs(egCtx, req.RepoID, req.PRID)
		return err
	})
	eg.Go(func() error {
		var err error
		pr, err = client.GetPullRequest(egCtx, req.RepoID, req.PRID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return o.failRequest(ctx, req, fmt.Errorf("failed to fetch PR data: %w", err))
	}

	req.Metadata["base_sha"] = pr.BaseSHA
	req.Metadata["head_sha"] = pr.HeadSHA
	req.Metadata["start_sha"] = pr.StartSHA
	if err := o.store.SaveReviewRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to save review request metadata: %w", err)
	}

	// Each file is filtered and chunked independently; a slow file must not
	// block the others.
	pool := workerpool.New[[]*state.Chunk](&workerpool.Config{
		Concurrency: int64(runtime.NumCPU()),
		StopOnError: false,
	})
	for _, fd := range diffs {
		fd := fd
		if err := pool.Do(ctx, func() ([]*state.Chunk, error) {
			return o.processFile(ctx, client, req, pr, fd), nil
		}); err != nil {
			return fmt.Errorf("failed to submit file to worker pool: %w", err)
		}
	}
	results, err := pool.Done(ctx)
	if err != nil {
		return o.failRequest(ctx, req, fmt.Errorf("failed to process files: %w", err))
	}

	totalChunks := 0
	for _, r := range results {
		for _, chunk := range r.Value {
			if err := o.store.SaveChunk(ctx, chunk); err != nil {
				return fmt.Errorf("failed to save chunk: %w", err)
			}
			if err := o.publisher.Publish(ctx, o.orchestratorQueue, &events.Task{
				Action:  events.ActionEvaluateChunk,
				ChunkID: chunk.ChunkID,
			}); err != nil {
				return fmt.Errorf("failed to enqueue chunk evaluation: %w", err)
			}
			totalChunks++
		}
	}

	logger.InfoContext(ctx, "initialized review",
		"review_request_id", req.ReviewRequestID,
		"chunks", totalChunks)

	if totalChunks == 0 {
		req.Status = state.RequestCompleted
		req.Metadata["reason"] = completedNoChanges
		if err := o.store.SaveReviewRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to complete empty review request: %w", err)
		}
	}
	return nil
}

// processFile runs the relevancy filter, the semantic filter and hunk
// chunking for one changed file.
func (o *Orchestrator) processFile(ctx context.Context, client scm.SCM, req *state.ReviewRequest, pr *scm.PullRequest, fd *scm.FileDiff) []*state.Chunk {
	logger := logging.FromContext(ctx)

	if fd.Patch == "" || !o.filter.ShouldReview(fd.Filename) {
		return nil
	}

	if pr.BaseSHA != "" && pr.HeadSHA != "" {
		oldContent, oldErr := client.GetFileContent(ctx, req.RepoID, fd.Filename, pr.BaseSHA)
		newContent, newErr := client.GetFileContent(ctx, req.RepoID, fd.Filename, pr.HeadSHA)
		switch {
		case oldErr != nil || newErr != nil:
			// Fail open: an unreadable version is no reason to skip review.
			logger.WarnContext(ctx, "semantic check fetch failed, proceeding",
				"filename", fd.Filename,
				"base_error", oldErr,
				"head_error", newErr)
		case !IsSemanticChange(oldContent, newContent, fd.Filename):
			logger.InfoContext(ctx, "skipping non-semantic change", "filename", fd.Filename)
			return nil
		}
	}

	hunks := SplitHunks(fd.Patch)
	if len(hunks) > o.maxHunkChanges {
		hunks = hunks[:o.maxHunkChanges]
	}

	chunks := make([]*state.Chunk, 0, len(hunks))
	for _, h := range hunks {
		chunks = append(chunks, &state.Chunk{
			ChunkID:         uuid.NewString(),
			ReviewRequestID: req.ReviewRequestID,
			DiffSnippet:     h.Content,
			Filename:        fd.Filename,
			StartLine:       h.StartLine,
			EndLine:         h.EndLine,
			Status:          state.ChunkPending,
		})
	}
	return chunks
}

// evaluateChunk is the central state-machine step: PENDING and CONTEXT_READY
// chunks advance to LLM_IN_PROGRESS and move to the llm queue; every other
// status is an idempotent skip, so duplicate deliveries are safe.
func (o *Orchestrator) evaluateChunk(ctx context.Context, chunkID string) error {
	logger := logging.FromContext(ctx)

	chunk, err := o.store.GetChunk(ctx, chunkID)
	if err != nil {
		return fmt.Errorf("failed to load chunk: %w", err)
	}
	if chunk == nil {
		logger.ErrorContext(ctx, "chunk not found, dropping message", "chunk_id", chunkID)
		return nil
	}

	if chunk.Status != state.ChunkPending && chunk.Status != state.ChunkContextReady {
		logger.InfoContext(ctx, "skipping chunk evaluation",
			"chunk_id", chunkID,
			"status", chunk.Status)
		return nil
	}

	chunk.Status = state.ChunkLLMInProgress
	if err := o.store.SaveChunk(ctx, chunk); err != nil {
		return fmt.Errorf("failed to save chunk: %w", err)
	}

	if err := o.publisher.Publish(ctx, o.llmQueue, &events.ChunkTask{ChunkID: chunkID}); err != nil {
		return fmt.Errorf("failed to enqueue chunk for llm: %w", err)
	}

	logger.InfoContext(ctx, "chunk enqueued for llm", "chunk_id", chunkID)
	return nil
}

// failRequest marks the request FAILED and swallows the cause into the log;
// the message is acknowledged because a retry cannot succeed.
func (o *Orchestrator) failRequest(ctx context.Context, req *state.ReviewRequest, cause error) error {
	logging.FromContext(ctx).ErrorContext(ctx, "review request failed",
		"review_request_id", req.ReviewRequestID,
		"error", cause)

	req.Status = state.RequestFailed
	if err := o.store.SaveReviewRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to mark request failed: %w", err)
	}
	return nil
}
