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

// Package state defines the shared entities of the review pipeline and the
// store that holds them. Every worker reads and writes through the Store
// interface; writes to a single chunk are serialized by the queue topology,
// so the store itself does no locking.
package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ReviewRequest statuses.
const (
	RequestPending    = "PENDING"
	RequestInProgress = "IN_PROGRESS"
	RequestCompleted  = "COMPLETED"
	RequestFailed     = "FAILED"
)

// ChunkStatus is the state-machine position of a single chunk.
type ChunkStatus string

// Chunk statuses. POSTED, FAILED and COMPLETED are terminal.
const (
	ChunkPending       ChunkStatus = "PENDING"
	ChunkLLMInProgress ChunkStatus = "LLM_IN_PROGRESS"
	ChunkToolRequired  ChunkStatus = "TOOL_REQUIRED"
	ChunkContextReady  ChunkStatus = "CONTEXT_READY"
	ChunkCommentReady  ChunkStatus = "COMMENT_READY"
	ChunkPosted        ChunkStatus = "POSTED"
	ChunkFailed        ChunkStatus = "FAILED"
	ChunkCompleted     ChunkStatus = "COMPLETED"
)

// Terminal reports whether the status permits no further transitions.
func (s ChunkStatus) Terminal() bool {
	return s == ChunkPosted || s == ChunkFailed || s == ChunkCompleted
}

// ReviewRequest is one incoming PR/MR review job.
type ReviewRequest struct {
	ReviewRequestID string            `json:"review_request_id"`
	RepoID          string            `json:"repo_id"`
	PRID            int               `json:"pr_id"`
	Provider        string            `json:"provider"`
	Status          string            `json:"status"`
	CreatedAt       int64             `json:"created_at"`
	Metadata        map[string]string `json:"metadata"`
}

// ChunkMetadata carries the tool-call round trip for a chunk.
type ChunkMetadata struct {
	LastTool   string         `json:"last_tool,omitempty"`
	ToolArgs   map[string]any `json:"tool_args,omitempty"`
	ToolOutput string         `json:"tool_output,omitempty"`
}

// Chunk is one reviewable unit, a contiguous hunk of one file's diff.
type Chunk struct {
	ChunkID         string        `json:"chunk_id"`
	ReviewRequestID string        `json:"review_request_id"`
	DiffSnippet     string        `json:"diff_snippet"`
	Filename        string        `json:"filename"`
	StartLine       int           `json:"start_line"`
	EndLine         int           `json:"end_line"`
	ContextLevel    int           `json:"context_level"`
	Status          ChunkStatus   `json:"status"`
	CommentBody     string        `json:"comment_body,omitempty"`
	LineNumber      int           `json:"line_number,omitempty"`
	IdempotencyHash string        `json:"idempotency_hash,omitempty"`
	Metadata        ChunkMetadata `json:"metadata"`
}

// Message is one turn of a per-chunk conversation with the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store is the shared state store. Lookups return (nil, nil) when the entity
// does not exist; callers treat that as a stale duplicate and drop the
// message.
type Store interface {
	SaveReviewRequest(ctx context.Context, req *ReviewRequest) error
	GetReviewRequest(ctx context.Context, id string) (*ReviewRequest, error)

	SaveChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	ChunkIDsForRequest(ctx context.Context, reviewRequestID string) ([]string, error)

	GetConversation(ctx context.Context, reviewRequestID, chunkID string) ([]*Message, error)
	SaveConversation(ctx context.Context, reviewRequestID, chunkID string, conversation []*Message) error

	WasPosted(ctx context.Context, repoID string, prID int, hash string) (bool, error)
	MarkPosted(ctx context.Context, repoID string, prID int, hash string) error
}

// IdempotencyHash derives the hash that identifies a posted comment across
// duplicate deliveries: SHA-256(filename ":" line ":" body), hex encoded.
func IdempotencyHash(filename string, line int, body string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", filename, line, body)))
	return hex.EncodeToString(sum[:])
}
