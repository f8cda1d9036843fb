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

import (
	"path"
	"strings"
)

// Default relevancy-filter rules. Files matching any rule never produce
// chunks.
var (
	defaultIgnoredExtensions = []string{
		".lock", ".json", ".map", ".svg", ".png", ".jpg", ".jpeg", ".pyc",
		".yml", ".toml", ".pyd", ".md", ".dockerignore",
	}

	defaultIgnoredFiles = []string{
		".gitignore", ".env", "LICENSE", "CONTRIBUTING.md",
	}

	defaultIgnoredDirectories = []string{
		"__pycache__", "node_modules", ".venv", "tests", "migrations",
	}
)

// FileFilter decides whether a changed file is worth reviewing.
type FileFilter struct {
	extensions map[string]struct{}
	files      map[string]struct{}
	dirs       map[string]struct{}
}

// NewFileFilter builds a filter from the given rule lists; empty lists fall
// back to the defaults.
func NewFileFilter(extensions, files, dirs []string) *FileFilter {
	if len(extensions) == 0 {
		extensions = defaultIgnoredExtensions
	}
	if len(files) == 0 {
		files = defaultIgnoredFiles
	}
	if len(dirs) == 0 {
		dirs = defaultIgnoredDirectories
	}

	f := &FileFilter{
		extensions: make(map[string]struct{}, len(extensions)),
		files:      make(map[string]struct{}, len(files)),
		dirs:       make(map[string]struct{}, len(dirs)),
	}
	for _, ext := range extensions {
		f.extensions[strings.ToLower(strings.TrimSpace(ext))] = struct{}{}
	}
	for _, name := range files {
		f.files[strings.TrimSpace(name)] = struct{}{}
	}
	for _, dir := range dirs {
		f.dirs[strings.TrimSpace(dir)] = struct{}{}
	}
	return f
}

// ShouldReview reports whether the filename passes every rule. Extension
// matching is case-insensitive on the last dot-segment; directory matching
// triggers when any path segment equals an ignored name.
func (f *FileFilter) ShouldReview(filename string) bool {
	if filename == "" {
		return false
	}

	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		if _, ok := f.extensions[ext]; ok {
			return false
		}
	}

	if _, ok := f.files[path.Base(filename)]; ok {
		return false
	}

	for _, segment := range strings.Split(path.Dir(filename), "/") {
		if _, ok := f.dirs[segment]; ok {
			return false
		}
	}

	return true
}
