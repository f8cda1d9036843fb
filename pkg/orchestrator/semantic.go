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
	"sort"
	"strings"
)

// hashCommentExtensions use '#' line comments; everything else is assumed to
// use '//'. This is a heuristic, not a parser: a false positive only costs an
// unnecessary review.
var hashCommentExtensions = map[string]struct{}{
	".py": {}, ".rb": {}, ".sh": {}, ".pl": {}, ".r": {}, ".yaml": {},
}

// IsSemanticChange reports whether the difference between the two file
// versions goes beyond whitespace, comment edits, or trivially reordered
// imports.
func IsSemanticChange(oldContent, newContent, filename string) bool {
	oldImports, oldCode := significantLines(oldContent, filename)
	newImports, newCode := significantLines(newContent, filename)

	if len(oldCode) != len(newCode) {
		return true
	}
	for i := range oldCode {
		if oldCode[i] != newCode[i] {
			return true
		}
	}

	// Imports compare as sorted multisets: reordering is not semantic,
	// adding or removing one is.
	if len(oldImports) != len(newImports) {
		return true
	}
	sort.Strings(oldImports)
	sort.Strings(newImports)
	for i := range oldImports {
		if oldImports[i] != newImports[i] {
			return true
		}
	}

	return false
}

// significantLines normalizes file content into import lines and code lines,
// dropping blanks and comments.
func significantLines(content, filename string) (imports, code []string) {
	marker := "//"
	if _, ok := hashCommentExtensions[strings.ToLower(path.Ext(filename))]; ok {
		marker = "#"
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, marker) {
			continue
		}
		if idx := strings.Index(line, marker); idx > 0 {
			line = strings.TrimSpace(line[:idx])
		}
		// Collapse internal runs of whitespace so indentation-only and
		// alignment-only edits compare equal.
		line = strings.Join(strings.Fields(line), " ")

		if isImportLine(line) {
			imports = append(imports, line)
			continue
		}
		code = append(code, line)
	}
	return imports, code
}

func isImportLine(line string) bool {
	return strings.HasPrefix(line, "import ") ||
		strings.HasPrefix(line, "from ") ||
		strings.HasPrefix(line, "require ") ||
		strings.HasPrefix(line, "use ")
}
