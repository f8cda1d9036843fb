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
	"net/http"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLab implements SCM against the GitLab REST API. Repository identifiers
// are full namespace paths (group/project), which the client URL-encodes.
type GitLab struct {
	client *gitlab.Client
}

// NewGitLab creates a GitLab client authenticated with a private token.
func NewGitLab(baseURL, token string) (*GitLab, error) {
	opts := []gitlab.ClientOptionFunc{
		gitlab.WithHTTPClient(&http.Client{Timeout: requestTimeout}),
	}
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL))
	}

	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &GitLab{client: client}, nil
}

func (g *GitLab) GetPullRequest(ctx context.Context, repoID string, prID int) (*PullRequest, error) {
	mr, _, err := g.client.MergeRequests.GetMergeRequest(repoID, prID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get merge request %s!%d: %w", repoID, prID, err)
	}

	return &PullRequest{
		BaseSHA:  mr.DiffRefs.BaseSha,
		HeadSHA:  mr.DiffRefs.HeadSha,
		StartSHA: mr.DiffRefs.StartSha,
	}, nil
}

func (g *GitLab) GetPullRequestFileDiffs(ctx context.Context, repoID string, prID int) ([]*FileDiff, error) {
	var diffs []*FileDiff
	opts := &gitlab.ListMergeRequestDiffsOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}
	for {
		changes, resp, err := g.client.MergeRequests.ListMergeRequestDiffs(repoID, prID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list diffs for %s!%d: %w", repoID, prID, err)
		}
		for _, c := range changes {
			diffs = append(diffs, &FileDiff{
				Filename: c.NewPath,
				Patch:    c.Diff,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return diffs, nil
}

func (g *GitLab) GetFileContent(ctx context.Context, repoID, filePath, ref string) (string, error) {
	raw, _, err := g.client.RepositoryFiles.GetRawFile(repoID, filePath,
		&gitlab.GetRawFileOptions{Ref: gitlab.Ptr(ref)}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to get raw file %s@%s: %w", filePath, ref, err)
	}
	return string(raw), nil
}

func (g *GitLab) PostPRComment(ctx context.Context, repoID string, prID int, comment *Comment) error {
	// MR discussions demand the three distinct SHAs of the diff range; the
	// head sha alone does not anchor a text position.
	if _, _, err := g.client.Discussions.CreateMergeRequestDiscussion(repoID, prID,
		&gitlab.CreateMergeRequestDiscussionOptions{
			Body: gitlab.Ptr(comment.Body),
			Position: &gitlab.PositionOptions{
				BaseSHA:      gitlab.Ptr(comment.BaseSHA),
				HeadSHA:      gitlab.Ptr(comment.CommitSHA),
				StartSHA:     gitlab.Ptr(comment.StartSHA),
				NewPath:      gitlab.Ptr(comment.File),
				NewLine:      gitlab.Ptr(comment.Line),
				PositionType: gitlab.Ptr("text"),
			},
		}, gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to post discussion on %s!%d: %w", repoID, prID, err)
	}
	return nil
}
