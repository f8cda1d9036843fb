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
	"regexp"
	"strconv"
	"strings"
)

// hunkHeaderRE matches a unified diff hunk header and captures the new-file
// start line and line count.
var hunkHeaderRE = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

// Hunk is one contiguous region of a unified diff, with its line range in the
// new file.
type Hunk struct {
	Content   string
	StartLine int
	EndLine   int
}

// SplitHunks splits a unified diff patch into hunks, in source order. The
// hunk text is carried verbatim, header line included. An empty patch yields
// no hunks.
func SplitHunks(patch string) []*Hunk {
	if patch == "" {
		return nil
	}

	var hunks []*Hunk
	var current *Hunk
	var lines []string

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.Join(lines, "\n")
		hunks = append(hunks, current)
		current = nil
		lines = nil
	}

	for _, line := range strings.Split(patch, "\n") {
		if m := hunkHeaderRE.FindStringSubmatch(line); m != nil {
			flush()

			start, _ := strconv.Atoi(m[1])
			count := 1
			if m[2] != "" {
				count, _ = strconv.Atoi(m[2])
			}
			if count < 1 {
				count = 1
			}
			current = &Hunk{
				StartLine: start,
				EndLine:   start + count - 1,
			}
		}
		if current != nil {
			lines = append(lines, line)
		}
	}
	flush()

	return hunks
}
