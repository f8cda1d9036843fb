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
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/abcxyz/pkg/logging"
	"github.com/lmalviya/review-pipeline/pkg/events"
	"github.com/lmalviya/review-pipeline/pkg/scm"
)

const (
	// SHA256SignatureHeader is the GitHub header key used to pass the
	// HMAC-SHA256 hexdigest.
	SHA256SignatureHeader = "X-Hub-Signature-256"

	// GitHubEventHeader is the GitHub header key used to pass the event type.
	GitHubEventHeader = "X-GitHub-Event"

	// GitHubDeliveryHeader is the GitHub header key used to pass the unique ID
	// for the webhook event.
	GitHubDeliveryHeader = "X-GitHub-Delivery"
)

// githubReviewActions are the pull_request actions that start a review.
var githubReviewActions = map[string]struct{}{
	"opened":      {},
	"synchronize": {},
	"reopened":    {},
}

// githubPayload is the subset of the pull_request event the pipeline reads.
type githubPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// handleGitHubWebhook handles the logic for receiving github webhooks and
// publishing review tasks to the orchestrator queue.
func (s *Server) handleGitHubWebhook() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		deliveryID := r.Header.Get(GitHubDeliveryHeader)
		eventType := r.Header.Get(GitHubEventHeader)
		signature := r.Header.Get(SHA256SignatureHeader)

		if s.githubSecret == "" {
			logger.ErrorContext(ctx, "github webhook secret not configured",
				"code", http.StatusInternalServerError,
				"body", errMissingSecret)
			s.h.RenderJSON(w, http.StatusInternalServerError, errMissingSecret)
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

		if !s.isValidGitHubSignature(signature, payload) {
			logger.ErrorContext(ctx, "failed to validate webhook signature",
				"code", http.StatusUnauthorized,
				"body", errInvalidSignature,
				"delivery_id", deliveryID)
			s.h.RenderJSON(w, http.StatusUnauthorized, errInvalidSignature)
			return
		}

		var event githubPayload
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.ErrorContext(ctx, "failed to parse webhook payload",
				"code", http.StatusBadRequest,
				"body", errInvalidPayload,
				"error", err)
			s.h.RenderJSON(w, http.StatusBadRequest, errInvalidPayload)
			return
		}

		if _, ok := githubReviewActions[event.Action]; eventType != "pull_request" || !ok {
			logger.InfoContext(ctx, "ignoring github event",
				"event", eventType,
				"action", event.Action,
				"delivery_id", deliveryID)
			s.h.RenderJSON(w, http.StatusOK, eventIgnored)
			return
		}

		task := &events.Task{
			Action:          events.ActionStartPRReview,
			ReviewRequestID: uuid.NewString(),
			Provider:        scm.ProviderGitHub,
			Repo:            event.Repository.FullName,
			PRNumber:        event.PullRequest.Number,
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

// isValidGitHubSignature validates the http request signature against the
// signature of the payload.
func (s *Server) isValidGitHubSignature(signature string, payload []byte) bool {
	mac := hmac.New(sha256.New, []byte(s.githubSecret))
	mac.Write(payload)
	got := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(signature), []byte(got)) == 1
}
