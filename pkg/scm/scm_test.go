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
	"testing"

	"github.com/abcxyz/pkg/testutil"
)

func TestSplitRepo(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		repoID    string
		wantOwner string
		wantRepo  string
		wantErr   string
	}{
		{
			name:      "owner_and_name",
			repoID:    "octo/hello",
			wantOwner: "octo",
			wantRepo:  "hello",
		},
		{
			name:      "nested_path_keeps_remainder",
			repoID:    "group/sub/project",
			wantOwner: "group",
			wantRepo:  "sub/project",
		},
		{
			name:    "no_separator",
			repoID:  "hello",
			wantErr: "invalid repository identifier",
		},
		{
			name:    "empty_owner",
			repoID:  "/hello",
			wantErr: "invalid repository identifier",
		},
		{
			name:    "empty_name",
			repoID:  "octo/",
			wantErr: "invalid repository identifier",
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			owner, repo, err := splitRepo(tc.repoID)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}
			if tc.wantErr != "" {
				return
			}
			if owner != tc.wantOwner || repo != tc.wantRepo {
				t.Errorf("splitRepo(%q) = (%q, %q), want (%q, %q)",
					tc.repoID, owner, repo, tc.wantOwner, tc.wantRepo)
			}
		})
	}
}

func TestRegistry_Get(t *testing.T) {
	t.Parallel()

	mock := &MockSCM{}
	r := NewRegistryForTesting(map[string]SCM{ProviderGitHub: mock})

	got, err := r.Get("GitHub")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != mock {
		t.Error("Get returned a different client")
	}

	if _, err := r.Get("bitbucket"); err == nil {
		t.Error("Get did not fail for an unknown provider")
	}
}
