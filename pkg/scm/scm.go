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

// Package scm abstracts the hosted source-control providers. The pipeline
// needs four read/write capabilities per provider: PR metadata, the PR's file
// diffs, file content at a ref, and posting an inline review comment.
package scm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

// requestTimeout bounds every provider HTTP call.
const requestTimeout = 30 * time.Second

// PullRequest is the normalized PR/MR metadata the pipeline consumes.
type PullRequest struct {
	BaseSHA  string
	HeadSHA  string
	StartSHA string
}

// FileDiff is one changed file with its unified diff patch.
type FileDiff struct {
	Filename string
	Patch    string
}

// Comment is an inline review comment anchored to the new side of the diff.
// BaseSHA and StartSHA are only consulted by providers whose position objects
// require them.
type Comment struct {
	CommitSHA string
	BaseSHA   string
	StartSHA  string
	File      string
	Line      int
	Body      string
}

// SCM is the provider capability set.
type SCM interface {
	GetPullRequest(ctx context.Context, repoID string, prID int) (*PullRequest, error)
	GetPullRequestFileDiffs(ctx context.Context, repoID string, prID int) ([]*FileDiff, error)
	GetFileContent(ctx context.Context, repoID, filePath, ref string) (string, error)
	PostPRComment(ctx context.Context, repoID string, prID int, comment *Comment) error
}

// Config holds the provider credentials and base URLs from the environment.
type Config struct {
	GitHubBaseURL string `env:"GITHUB_BASE_URL"`
	GitHubToken   string `env:"GITHUB_TOKEN"`
	GitLabBaseURL string `env:"GITLAB_BASE_URL"`
	GitLabToken   string `env:"GITLAB_TOKEN"`
}

// Registry maps provider names to clients. Providers are constructed once at
// startup and reused for the lifetime of the worker.
type Registry struct {
	scms map[string]SCM
}

// NewRegistry builds clients for both providers from the config.
func NewRegistry(cfg *Config) (*Registry, error) {
	github, err := NewGitHub(strings.TrimSuffix(cfg.GitHubBaseURL, "/"), cfg.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create github client: %w", err)
	}
	gitlab, err := NewGitLab(strings.TrimSuffix(cfg.GitLabBaseURL, "/"), cfg.GitLabToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &Registry{scms: map[string]SCM{
		ProviderGitHub: github,
		ProviderGitLab: gitlab,
	}}, nil
}

// Get returns the client for the named provider.
func (r *Registry) Get(provider string) (SCM, error) {
	s, ok := r.scms[strings.ToLower(provider)]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %q", provider)
	}
	return s, nil
}

// WithSCM overrides a provider entry, for tests.
func (r *Registry) WithSCM(provider string, s SCM) *Registry {
	if r.scms == nil {
		r.scms = map[string]SCM{}
	}
	r.scms[provider] = s
	return r
}

// NewRegistryForTesting builds a registry containing only the given entries.
func NewRegistryForTesting(scms map[string]SCM) *Registry {
	return &Registry{scms: scms}
}
