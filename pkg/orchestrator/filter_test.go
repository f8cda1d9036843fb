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

package orchestrator

import "testing"

func TestFileFilter_ShouldReview(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		extensions []string
		files      []string
		dirs       []string
		filename   string
		want       bool
	}{
		{
			name:     "source_file_passes",
			filename: "pkg/server/server.go",
			want:     true,
		},
		{
			name:     "python_file_passes",
			filename: "app/main.py",
			want:     true,
		},
		{
			name:     "ignored_extension",
			filename: "go.lock",
			want:     false,
		},
		{
			name:     "ignored_extension_case_insensitive",
			filename: "assets/logo.PNG",
			want:     false,
		},
		{
			name:     "ignored_extension_nested",
			filename: "docs/README.md",
			want:     false,
		},
		{
			name:     "ignored_exact_name",
			filename: "LICENSE",
			want:     false,
		},
		{
			name:     "ignored_exact_name_nested",
			filename: "pkg/server/.env",
			want:     false,
		},
		{
			name:     "ignored_directory_segment",
			filename: "app/tests/test_main.py",
			want:     false,
		},
		{
			name:     "ignored_directory_deep",
			filename: "web/node_modules/lib/index.js",
			want:     false,
		},
		{
			name:     "directory_name_as_filename_passes",
			filename: "pkg/tests.go",
			want:     true,
		},
		{
			name:     "empty_filename",
			filename: "",
			want:     false,
		},
		{
			name:       "custom_rules_override_defaults",
			extensions: []string{".txt"},
			files:      []string{"Makefile"},
			dirs:       []string{"vendor"},
			filename:   "docs/README.md",
			want:       true,
		},
		{
			name:       "custom_extension_matches",
			extensions: []string{".txt"},
			files:      []string{"Makefile"},
			dirs:       []string{"vendor"},
			filename:   "notes.txt",
			want:       false,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := NewFileFilter(tc.extensions, tc.files, tc.dirs)
			if got := f.ShouldReview(tc.filename); got != tc.want {
				t.Errorf("ShouldReview(%q) = %t, want %t", tc.filename, got, tc.want)
			}
		})
	}
}
