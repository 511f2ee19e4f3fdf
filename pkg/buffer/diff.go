// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package buffer

import (
	"fmt"

	"github.com/humanizer-ai/aui/pkg/auierr"
)

// DiffEntry describes one changed position between two versions.
type DiffEntry struct {
	Index int  `json:"index"`
	From  Item `json:"from,omitempty"`
	To    Item `json:"to,omitempty"`
}

// DiffStats counts the classes of change in a diff.
type DiffStats struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// Diff is an index-aligned comparison of two versions.
type Diff struct {
	From     string      `json:"from"`
	To       string      `json:"to"`
	Added    []DiffEntry `json:"added,omitempty"`
	Removed  []DiffEntry `json:"removed,omitempty"`
	Modified []DiffEntry `json:"modified,omitempty"`
	Stats    DiffStats   `json:"stats"`
	Summary  string      `json:"summary"`
}

// Diff compares two versions of the named buffer by id. The special ids
// "working" and "head" refer to the working content and the current branch
// head.
func (s *Set) Diff(name, from, to string) (*Diff, error) {
	buf, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	fromContent, err := buf.resolveContent(from)
	if err != nil {
		return nil, err
	}
	toContent, err := buf.resolveContent(to)
	if err != nil {
		return nil, err
	}

	diff := &Diff{From: from, To: to}

	maxLen := len(fromContent)
	if len(toContent) > maxLen {
		maxLen = len(toContent)
	}

	for i := 0; i < maxLen; i++ {
		inFrom := i < len(fromContent)
		inTo := i < len(toContent)
		switch {
		case inFrom && !inTo:
			diff.Removed = append(diff.Removed, DiffEntry{Index: i, From: fromContent[i]})
			diff.Stats.Removed++
		case !inFrom && inTo:
			diff.Added = append(diff.Added, DiffEntry{Index: i, To: toContent[i]})
			diff.Stats.Added++
		case itemEqual(fromContent[i], toContent[i]):
			diff.Stats.Unchanged++
		default:
			diff.Modified = append(diff.Modified, DiffEntry{Index: i, From: fromContent[i], To: toContent[i]})
			diff.Stats.Modified++
		}
	}

	diff.Summary = fmt.Sprintf("+%d -%d ~%d (%d unchanged)",
		diff.Stats.Added, diff.Stats.Removed, diff.Stats.Modified, diff.Stats.Unchanged)
	return diff, nil
}

// resolveContent maps a diff endpoint to content. Callers hold buf.mu.
func (b *Buffer) resolveContent(ref string) ([]Item, error) {
	switch ref {
	case "working", "":
		return b.WorkingContent, nil
	case "head":
		head := b.head()
		if head == nil {
			return nil, auierr.New(auierr.NotFound, "buffer %q has no head version", b.Name)
		}
		return head.Content, nil
	default:
		version, ok := b.Versions[ref]
		if !ok {
			return nil, auierr.New(auierr.NotFound, "version %q not found on buffer %q", ref, b.Name)
		}
		return version.Content, nil
	}
}
