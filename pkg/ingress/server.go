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

// Package ingress is the webhook server for the review pipeline. It
// authenticates provider webhooks, filters for reviewable PR/MR events and
// enqueues START_PR_REVIEW tasks; all heavy work is deferred to the queue.
package ingress

import (
	"context"
	"fmt"
	"net/http"

	"github.com/abcxyz/pkg/healthcheck"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/renderer"
	"github.com/lmalviya/review-pipeline/pkg/queue"
	"github.com/lmalviya/review-pipeline/pkg/version"
)

// maxPayloadBytes bounds webhook request bodies.
const maxPayloadBytes = 25 * 1000000

var (
	eventReceived = map[string]string{"status": "success", "message": "Event received"}
	eventIgnored  = map[string]string{"status": "success", "message": "Event ignored"}

	errReadingPayload   = fmt.Errorf("failed to read webhook payload")
	errInvalidPayload   = fmt.Errorf("failed to parse webhook payload")
	errInvalidSignature = fmt.Errorf("failed to validate webhook signature")
	errMissingSecret    = fmt.Errorf("webhook secret is not configured")
	errEnqueueFailed    = fmt.Errorf("failed to enqueue review request")
)

// Server provides the webhook server implementation.
type Server struct {
	h         *renderer.Renderer
	publisher queue.Publisher

	orchestratorQueue string
	githubSecret      string
	gitlabSecret      string
}

// NewServer creates a new HTTP server implementation that will handle
// receiving webhook payloads.
func NewServer(ctx context.Context, h *renderer.Renderer, cfg *Config, publisher queue.Publisher) (*Server, error) {
	return &Server{
		h:                 h,
		publisher:         publisher,
		orchestratorQueue: cfg.OrchestratorQueue,
		githubSecret:      cfg.GitHubWebhookSecret,
		gitlabSecret:      cfg.GitLabWebhookSecret,
	}, nil
}

// Routes creates a ServeMux of all of the routes that this Router supports.
func (s *Server) Routes(ctx context.Context) http.Handler {
	logger := logging.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/health", healthcheck.HandleHTTPHealthCheck())
	mux.Handle("/healthz", healthcheck.HandleHTTPHealthCheck())
	mux.Handle("/webhook/github", s.handleGitHubWebhook())
	mux.Handle("/webhook/gitlab", s.handleGitLabWebhook())
	mux.Handle("/version", s.handleVersion())

	// Middleware
	root := logging.HTTPInterceptor(logger, "")(mux)

	return root
}

// handleVersion is a simple http.HandlerFunc that responds with version
// information for the server.
func (s *Server) handleVersion() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"version":%q}`+"\n", version.HumanVersion)
	})
}
