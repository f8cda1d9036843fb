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
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/abcxyz/pkg/renderer"
	"github.com/lmalviya/review-pipeline/pkg/events"
	"github.com/lmalviya/review-pipeline/pkg/queue"
	"github.com/lmalviya/review-pipeline/pkg/scm"
)

const (
	//nolint:gosec // This is a false positive for a variable name.
	testGitHubWebhookSecret = "test-github-webhook-secret"
	//nolint:gosec // This is a false positive for a variable name.
	testGitLabWebhookSecret = "test-gitlab-webhook-secret"
)

const githubPullRequestPayload = `{
  "action": "opened",
  "pull_request": {"number": 42},
  "repository": {"full_name": "octo/hello"}
}`

const gitlabMergeRequestPayload = `{
  "object_attributes": {"action": "open", "iid": 7},
  "project": {"path_with_namespace": "group/project"}
}`

func testServer(t *testing.T, cfg *Config, publisher queue.Publisher) http.Handler {
	t.Helper()

	ctx := context.Background()

	h, err := renderer.New(ctx, nil,
		renderer.WithOnError(func(err error) {
			t.Logf("failed to render: %v", err)
		}))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}

	srv, err := NewServer(ctx, h, cfg, publisher)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv.Routes(ctx)
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHandleGitHubWebhook(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		serverSecret  string
		payload       string
		signWith      string
		eventType     string
		expStatusCode int
		expRespBody   string
		expPublished  int
	}{
		{
			name:          "success",
			serverSecret:  testGitHubWebhookSecret,
			payload:       githubPullRequestPayload,
			signWith:      testGitHubWebhookSecret,
			eventType:     "pull_request",
			expStatusCode: http.StatusOK,
			expRespBody:   `"message":"Event received"`,
			expPublished:  1,
		},
		{
			name:          "invalid_signature",
			serverSecret:  testGitHubWebhookSecret,
			payload:       githubPullRequestPayload,
			signWith:      "not-the-secret",
			eventType:     "pull_request",
			expStatusCode: http.StatusUnauthorized,
			expRespBody:   `"errors"`,
		},
		{
			name:          "missing_signature",
			serverSecret:  testGitHubWebhookSecret,
			payload:       githubPullRequestPayload,
			eventType:     "pull_request",
			expStatusCode: http.StatusUnauthorized,
			expRespBody:   `"errors"`,
		},
		{
			name:          "secret_not_configured",
			payload:       githubPullRequestPayload,
			signWith:      testGitHubWebhookSecret,
			eventType:     "pull_request",
			expStatusCode: http.StatusInternalServerError,
			expRespBody:   `"errors"`,
		},
		{
			name:          "malformed_json",
			serverSecret:  testGitHubWebhookSecret,
			payload:       "{not json",
			signWith:      testGitHubWebhookSecret,
			eventType:     "pull_request",
			expStatusCode: http.StatusBadRequest,
			expRespBody:   `"errors"`,
		},
		{
			name:          "irrelevant_event_type",
			serverSecret:  testGitHubWebhookSecret,
			payload:       githubPullRequestPayload,
			signWith:      testGitHubWebhookSecret,
			eventType:     "issues",
			expStatusCode: http.StatusOK,
			expRespBody:   `"message":"Event ignored"`,
		},
		{
			name:          "irrelevant_action",
			serverSecret:  testGitHubWebhookSecret,
			payload:       `{"action":"closed","pull_request":{"number":42},"repository":{"full_name":"octo/hello"}}`,
			signWith:      testGitHubWebhookSecret,
			eventType:     "pull_request",
			expStatusCode: http.StatusOK,
			expRespBody:   `"message":"Event ignored"`,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			publisher := queue.NewMockPublisher()
			handler := testServer(t, &Config{
				OrchestratorQueue:   "orchestrator_queue",
				GitHubWebhookSecret: tc.serverSecret,
			}, publisher)

			req := httptest.NewRequest(http.MethodPost, "/webhook/github", strings.NewReader(tc.payload))
			req.Header.Set(GitHubEventHeader, tc.eventType)
			req.Header.Set(GitHubDeliveryHeader, "delivery-1")
			if tc.signWith != "" {
				req.Header.Set(SHA256SignatureHeader, signPayload(tc.signWith, []byte(tc.payload)))
			}

			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			if got, want := resp.Code, tc.expStatusCode; got != want {
				t.Errorf("status code = %d, want %d (body %q)", got, want, resp.Body.String())
			}
			if !strings.Contains(resp.Body.String(), tc.expRespBody) {
				t.Errorf("body %q does not contain %q", resp.Body.String(), tc.expRespBody)
			}
			if got, want := publisher.Count("orchestrator_queue"), tc.expPublished; got != want {
				t.Errorf("published %d tasks, want %d", got, want)
			}

			if tc.expPublished > 0 {
				var task events.Task
				if !publisher.Last("orchestrator_queue", &task) {
					t.Fatal("no task published")
				}
				if got, want := task.Action, events.ActionStartPRReview; got != want {
					t.Errorf("action = %q, want %q", got, want)
				}
				if got, want := task.Provider, scm.ProviderGitHub; got != want {
					t.Errorf("provider = %q, want %q", got, want)
				}
				if got, want := task.Repo, "octo/hello"; got != want {
					t.Errorf("repo = %q, want %q", got, want)
				}
				if got, want := task.PRNumber, 42; got != want {
					t.Errorf("pr_number = %d, want %d", got, want)
				}
				if got, want := task.DeliveryID, "delivery-1"; got != want {
					t.Errorf("delivery_id = %q, want %q", got, want)
				}
				if task.ReviewRequestID == "" {
					t.Error("review_request_id is empty")
				}
			}
		})
	}
}

func TestHandleGitHubWebhook_SignatureByteFlip(t *testing.T) {
	t.Parallel()

	publisher := queue.NewMockPublisher()
	handler := testServer(t, &Config{
		OrchestratorQueue:   "orchestrator_queue",
		GitHubWebhookSecret: testGitHubWebhookSecret,
	}, publisher)

	payload := []byte(githubPullRequestPayload)
	sig := []byte(signPayload(testGitHubWebhookSecret, payload))
	// Corrupt one hex digit of the digest.
	if sig[len(sig)-1] == '0' {
		sig[len(sig)-1] = '1'
	} else {
		sig[len(sig)-1] = '0'
	}

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", strings.NewReader(string(payload)))
	req.Header.Set(GitHubEventHeader, "pull_request")
	req.Header.Set(GitHubDeliveryHeader, "delivery-1")
	req.Header.Set(SHA256SignatureHeader, string(sig))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if got, want := resp.Code, http.StatusUnauthorized; got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
	if got := publisher.Count("orchestrator_queue"); got != 0 {
		t.Errorf("published %d tasks, want 0", got)
	}
}

func TestHandleGitHubWebhook_EnqueueFailure(t *testing.T) {
	t.Parallel()

	publisher := queue.NewMockPublisher()
	publisher.Err = fmt.Errorf("broker down")
	handler := testServer(t, &Config{
		OrchestratorQueue:   "orchestrator_queue",
		GitHubWebhookSecret: testGitHubWebhookSecret,
	}, publisher)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", strings.NewReader(githubPullRequestPayload))
	req.Header.Set(GitHubEventHeader, "pull_request")
	req.Header.Set(GitHubDeliveryHeader, "delivery-1")
	req.Header.Set(SHA256SignatureHeader, signPayload(testGitHubWebhookSecret, []byte(githubPullRequestPayload)))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if got, want := resp.Code, http.StatusInternalServerError; got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

func TestHandleGitLabWebhook(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		serverSecret  string
		payload       string
		token         string
		eventType     string
		expStatusCode int
		expRespBody   string
		expPublished  int
	}{
		{
			name:          "success",
			serverSecret:  testGitLabWebhookSecret,
			payload:       gitlabMergeRequestPayload,
			token:         testGitLabWebhookSecret,
			eventType:     gitlabMergeRequestEvent,
			expStatusCode: http.StatusOK,
			expRespBody:   `"message":"Event received"`,
			expPublished:  1,
		},
		{
			name:          "invalid_token",
			serverSecret:  testGitLabWebhookSecret,
			payload:       gitlabMergeRequestPayload,
			token:         "not-the-secret",
			eventType:     gitlabMergeRequestEvent,
			expStatusCode: http.StatusUnauthorized,
			expRespBody:   `"errors"`,
		},
		{
			name:          "missing_token",
			serverSecret:  testGitLabWebhookSecret,
			payload:       gitlabMergeRequestPayload,
			eventType:     gitlabMergeRequestEvent,
			expStatusCode: http.StatusUnauthorized,
			expRespBody:   `"errors"`,
		},
		{
			name:          "secret_not_configured",
			payload:       gitlabMergeRequestPayload,
			token:         testGitLabWebhookSecret,
			eventType:     gitlabMergeRequestEvent,
			expStatusCode: http.StatusInternalServerError,
			expRespBody:   `"errors"`,
		},
		{
			name:          "malformed_json",
			serverSecret:  testGitLabWebhookSecret,
			payload:       "{not json",
			token:         testGitLabWebhookSecret,
			eventType:     gitlabMergeRequestEvent,
			expStatusCode: http.StatusBadRequest,
			expRespBody:   `"errors"`,
		},
		{
			name:          "irrelevant_event_type",
			serverSecret:  testGitLabWebhookSecret,
			payload:       gitlabMergeRequestPayload,
			token:         testGitLabWebhookSecret,
			eventType:     "Push Hook",
			expStatusCode: http.StatusOK,
			expRespBody:   `"message":"Event ignored"`,
		},
		{
			name:          "irrelevant_action",
			serverSecret:  testGitLabWebhookSecret,
			payload:       `{"object_attributes":{"action":"close","iid":7},"project":{"path_with_namespace":"group/project"}}`,
			token:         testGitLabWebhookSecret,
			eventType:     gitlabMergeRequestEvent,
			expStatusCode: http.StatusOK,
			expRespBody:   `"message":"Event ignored"`,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			publisher := queue.NewMockPublisher()
			handler := testServer(t, &Config{
				OrchestratorQueue:   "orchestrator_queue",
				GitLabWebhookSecret: tc.serverSecret,
			}, publisher)

			req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", strings.NewReader(tc.payload))
			req.Header.Set(GitLabEventHeader, tc.eventType)
			req.Header.Set(GitLabEventUUIDHeader, "event-uuid-1")
			if tc.token != "" {
				req.Header.Set(GitLabTokenHeader, tc.token)
			}

			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			if got, want := resp.Code, tc.expStatusCode; got != want {
				t.Errorf("status code = %d, want %d (body %q)", got, want, resp.Body.String())
			}
			if !strings.Contains(resp.Body.String(), tc.expRespBody) {
				t.Errorf("body %q does not contain %q", resp.Body.String(), tc.expRespBody)
			}
			if got, want := publisher.Count("orchestrator_queue"), tc.expPublished; got != want {
				t.Errorf("published %d tasks, want %d", got, want)
			}

			if tc.expPublished > 0 {
				var task events.Task
				if !publisher.Last("orchestrator_queue", &task) {
					t.Fatal("no task published")
				}
				if got, want := task.Provider, scm.ProviderGitLab; got != want {
					t.Errorf("provider = %q, want %q", got, want)
				}
				if got, want := task.Repo, "group/project"; got != want {
					t.Errorf("repo = %q, want %q", got, want)
				}
				if got, want := task.PRNumber, 7; got != want {
					t.Errorf("pr_number = %d, want %d", got, want)
				}
			}
		})
	}
}

func TestRoutes_Health(t *testing.T) {
	t.Parallel()

	handler := testServer(t, &Config{
		OrchestratorQueue:   "orchestrator_queue",
		GitHubWebhookSecret: testGitHubWebhookSecret,
	}, queue.NewMockPublisher())

	for _, target := range []string{"/health", "/healthz", "/version"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		if got, want := resp.Code, http.StatusOK; got != want {
			t.Errorf("GET %s = %d, want %d", target, got, want)
		}
	}
}
