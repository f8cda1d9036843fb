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

// Package events defines the message envelopes exchanged over the queues.
package events

// Actions carried by queue messages.
const (
	ActionStartPRReview = "START_PR_REVIEW"
	ActionEvaluateChunk = "EVALUATE_CHUNK"
	ActionGitComment    = "GIT_COMMENT"
	ActionToolCall      = "TOOL_CALL"
)

// Task is the envelope published to the orchestrator and git queues. Fields
// not relevant to a given action are omitted from the wire form.
type Task struct {
	Action          string `json:"action"`
	ReviewRequestID string `json:"review_request_id,omitempty"`
	Provider        string `json:"provider,omitempty"`
	Repo            string `json:"repo,omitempty"`
	PRNumber        int    `json:"pr_number,omitempty"`
	DeliveryID      string `json:"delivery_id,omitempty"`
	ChunkID         string `json:"chunk_id,omitempty"`
}

// ChunkTask is the envelope published to the llm queue. All other chunk data
// is read from shared state.
type ChunkTask struct {
	ChunkID string `json:"chunk_id"`
}
