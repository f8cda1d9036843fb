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

package scm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v61/github"
	"golang.org/x/oauth2"
)

// GitHub implements SCM against the GitHub REST API.
type GitHub struct {
	client *github.Client
}

// NewGitHub creates a GitHub client authenticated with a bearer token. A
// non-empty baseURL points the client at a GitHub Enterprise instance.
func NewGitHub(baseURL, token string) (*GitHub, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = requestTimeout

	client := github.NewClient(httpClient)
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set github base url: %w", err)
		}
	}
	return &GitHub{client: client}, nil
}

func (g *GitHub) GetPullRequest(ctx context.Context, repoID string, prID int) (*PullRequest, error) {
	owner, repo, err := splitRepo(repoID)
	if err != nil {
		return nil, err
	}

	pr, _, err := g.client.PullRequests.Get(ctx, owner, repo, prID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pull request %s#%d: %w", repoID, prID, err)
	}

	// GitHub has no start sha concept; the base sha anchors the range.
	return &PullRequest{
		BaseSHA:  pr.GetBase().GetSHA(),
		HeadSHA:  pr.GetHead().GetSHA(),
		StartSHA: pr.GetBase().GetSHA(),
	}, nil
}

func (g *GitHub) GetPullRequestFileDiffs(ctx context.Context, repoID string, prID int) ([]*FileDiff, error) {
	owner, repo, err := splitRepo(repoID)
	if err != nil {
		return nil, err
	}

	var diffs []*FileDiff
	opts := &github.ListOptions{PerPage: 100}
	for {
		files, resp, err := g.client.PullRequests.ListFiles(ctx, owner, repo, prID, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list files for %s#%d: %w", repoID, prID, err)
		}
		for _, f := range files {
			diffs = append(diffs, &FileDiff{
				Filename: f.GetFilename(),
				Patch:    f.GetPatch(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return diffs, nil
}

func (g *GitHub) GetFileContent(ctx context.Context, repoID, filePath, ref string) (string, error) {
	owner, repo, err := splitRepo(repoID)
	if err != nil {
		return "", err
	}

	fc, _, _, err := g.client.Repositories.GetContents(ctx, owner, repo, filePath,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", fmt.Errorf("failed to get contents of %s@%s: %w", filePath, ref, err)
	}
	if fc == nil {
		return "", fmt.Errorf("%s@%s is not a file", filePath, ref)
	}

	content, err := fc.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode contents of %s@%s: %w", filePath, ref, err)
	}
	return content, nil
}

func (g *GitHub) PostPRComment(ctx context.Context, repoID string, prID int, comment *Comment) error {
	owner, repo, err := splitRepo(repoID)
	if err != nil {
		return err
	}

	if _, _, err := g.client.PullRequests.CreateComment(ctx, owner, repo, prID, &github.PullRequestComment{
		Body:     github.String(comment.Body),
		CommitID: github.String(comment.CommitSHA),
		Path:     github.String(comment.File),
		Line:     github.Int(comment.Line),
		Side:     github.String("RIGHT"),
	}); err != nil {
		return fmt.Errorf("failed to post review comment on %s#%d: %w", repoID, prID, err)
	}
	return nil
}

// splitRepo splits an "owner/name" repository identifier.
func splitRepo(repoID string) (string, string, error) {
	owner, repo, ok := strings.Cut(repoID, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("invalid repository identifier: %q", repoID)
	}
	return owner, repo, nil
}
