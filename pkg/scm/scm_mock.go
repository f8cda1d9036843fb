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
	"sync"
)

// MockSCM is a scriptable SCM used by tests.
type MockSCM struct {
	mu sync.Mutex

	PR       *PullRequest
	PRErr    error
	Diffs    []*FileDiff
	DiffsErr error

	// Files maps "path@ref" to content; misses return FileErr or a default.
	Files   map[string]string
	FileErr error

	PostErr error

	// PostedComments records every successful PostPRComment call.
	PostedComments []*Comment
}

func (m *MockSCM) GetPullRequest(ctx context.Context, repoID string, prID int) (*PullRequest, error) {
	if m.PRErr != nil {
		return nil, m.PRErr
	}
	return m.PR, nil
}

func (m *MockSCM) GetPullRequestFileDiffs(ctx context.Context, repoID string, prID int) ([]*FileDiff, error) {
	if m.DiffsErr != nil {
		return nil, m.DiffsErr
	}
	return m.Diffs, nil
}

func (m *MockSCM) GetFileContent(ctx context.Context, repoID, filePath, ref string) (string, error) {
	if m.FileErr != nil {
		return "", m.FileErr
	}
	if content, ok := m.Files[filePath+"@"+ref]; ok {
		return content, nil
	}
	return "", fmt.Errorf("no content for %s@%s", filePath, ref)
}

func (m *MockSCM) PostPRComment(ctx context.Context, repoID string, prID int, comment *Comment) error {
	if m.PostErr != nil {
		return m.PostErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostedComments = append(m.PostedComments, comment)
	return nil
}
