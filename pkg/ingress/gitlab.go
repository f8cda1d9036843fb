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

package ingress

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/abcxyz/pkg/logging"
	"github.com/lmalviya/review-pipeline/pkg/events"
	"github.com/lmalviya/review-pipeline/pkg/scm"
)

const (
	// GitLabTokenHeader is the GitLab header key carrying the shared secret.
	GitLabTokenHeader = "X-Gitlab-Token"

	// GitLabEventHeader is the GitLab header key used to pass the event type.
	GitLabEventHeader = "X-Gitlab-Event"

	// GitLabEventUUIDHeader is the GitLab header key used to pass the unique
	// ID for the webhook event.
	GitLabEventUUIDHeader = "X-Gitlab-Event-UUID"

	// gitlabMergeRequestEvent is the event type that starts a review.
	gitlabMergeRequestEvent = "Merge Request Hook"
)

// gitlabReviewActions are the merge request actions that start a review.
var gitlabReviewActions = map[string]struct{}{
	"open":   {},
	"update": {},
	"reopen": {},
}

// gitlabPayload is the subset of the merge request event the pipeline reads.
type gitlabPayload struct {
	ObjectAttributes struct {
		Action string `json:"action"`
		IID    int    `json:"iid"`
	} `json:"object_attributes"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
}

// handleGitLabWebhook handles the logic for receiving gitlab webhooks and
// publishing review tasks to the orchestrator queue.
func (s *Server) handleGitLabWebhook() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		deliveryID := r.Header.Get(GitLabEventUUIDHeader)
		eventType := r.Header.Get(GitLabEventHeader)
		token := r.Header.Get(GitLabTokenHeader)

		if s.gitlabSecret == "" {
			logger.ErrorContext(ctx, "gitlab webhook secret not configured",
				"code", http.StatusInternalServerError,
				"body", errMissingSecret)
			s.h.RenderJSON(w, http.StatusInternalServerError, errMissingSecret)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.gitlabSecret)) != 1 {
			logger.ErrorContext(ctx, "failed to validate webhook token",
				"code", http.StatusUnauthorized,
				"body", errInvalidSignature,
				"delivery_id", deliveryID)
			s.h.RenderJSON(w, http.StatusUnauthorized, errInvalidSignature)
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			logger.ErrorContext(ctx, "failed to read webhook request body",
				"code", http.StatusInternalServerError,
				"body", errReadingPayload,
				"error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, errReadingPayload)
			return
		}

		var event gitlabPayload
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.ErrorContext(ctx, "failed to parse webhook payload",
				"code", http.StatusBadRequest,
				"body", errInvalidPayload,
				"error", err)
			s.h.RenderJSON(w, http.StatusBadRequest, errInvalidPayload)
			return
		}

		if _, ok := gitlabReviewActions[event.ObjectAttributes.Action]; eventType != gitlabMergeRequestEvent || !ok {
			logger.InfoContext(ctx, "ignoring gitlab event",
				"event", eventType,
				"action", event.ObjectAttributes.Action,
				"delivery_id", deliveryID)
			s.h.RenderJSON(w, http.StatusOK, eventIgnored)
			return
		}

		task := &events.Task{
			Action:          events.ActionStartPRReview,
			ReviewRequestID: uuid.NewString(),
			Provider:        scm.ProviderGitLab,
			Repo:            event.Project.PathWithNamespace,
			PRNumber:        event.ObjectAttributes.IID,
			DeliveryID:      deliveryID,
		}
		if err := s.publisher.Publish(ctx, s.orchestratorQueue, task); err != nil {
			logger.ErrorContext(ctx, "failed to enqueue review request",
				"code", http.StatusInternalServerError,
				"body", errEnqueueFailed,
				"delivery_id", deliveryID,
				"error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, errEnqueueFailed)
			return
		}

		logger.InfoContext(ctx, "enqueued review request",
			"review_request_id", task.ReviewRequestID,
			"provider", task.Provider,
			"repo", task.Repo,
			"pr_number", task.PRNumber,
			"delivery_id", deliveryID)
		s.h.RenderJSON(w, http.StatusOK, eventReceived)
	})
}
