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
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/humanizer-ai/aui/pkg/auierr"
)

// Strategy selects how Merge combines two branches.
type Strategy string

const (
	// StrategyAuto three-way merges with positions as identity.
	StrategyAuto Strategy = "auto"

	// StrategyOurs keeps the current branch content unconditionally.
	StrategyOurs Strategy = "ours"

	// StrategyTheirs takes the source branch content unconditionally.
	StrategyTheirs Strategy = "theirs"

	// StrategyUnion concatenates both sides, deduplicated by deep equality.
	StrategyUnion Strategy = "union"
)

// Conflict is one position the auto strategy could not resolve.
type Conflict struct {
	Index  int  `json:"index"`
	Ours   Item `json:"ours"`
	Theirs Item `json:"theirs"`
	Base   Item `json:"base,omitempty"`
}

// MergeResult reports the outcome of a merge.
type MergeResult struct {
	Success       bool       `json:"success"`
	NewVersionID  string     `json:"new_version_id,omitempty"`
	Conflicts     []Conflict `json:"conflicts,omitempty"`
	MergedContent []Item     `json:"merged_content,omitempty"`
}

func itemsEqual(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	return cmp.Equal(a, b)
}

func itemEqual(a, b Item) bool {
	return cmp.Equal(a, b)
}

// ancestors collects the id set reachable from a version via parent links,
// including merge parents. Callers hold buf.mu.
func (b *Buffer) ancestors(id string) map[string]struct{} {
	seen := make(map[string]struct{})
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[cur]; ok {
			continue
		}
		version, ok := b.Versions[cur]
		if !ok {
			continue
		}
		seen[cur] = struct{}{}
		if version.ParentID != "" {
			stack = append(stack, version.ParentID)
		}
		stack = append(stack, version.Parents...)
	}
	return seen
}

// commonAncestor finds the first ancestor of theirs that is also an ancestor
// of ours, walking theirs breadth-first. Returns nil when histories are
// unrelated. Callers hold buf.mu.
func (b *Buffer) commonAncestor(oursID, theirsID string) *Version {
	oursSeen := b.ancestors(oursID)
	queue := []string{theirsID}
	visited := make(map[string]struct{})
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		if _, ok := oursSeen[cur]; ok {
			return b.Versions[cur]
		}
		version, ok := b.Versions[cur]
		if !ok {
			continue
		}
		if version.ParentID != "" {
			queue = append(queue, version.ParentID)
		}
		queue = append(queue, version.Parents...)
	}
	return nil
}

// mergeAuto combines two sides positionally against their common ancestor.
// Items present on only one side merge in; shared positions where the sides
// disagree become conflicts carrying the ancestor's item as base.
func mergeAuto(ours, theirs, base []Item) ([]Item, []Conflict) {
	var merged []Item
	var conflicts []Conflict

	maxLen := len(ours)
	if len(theirs) > maxLen {
		maxLen = len(theirs)
	}

	for i := 0; i < maxLen; i++ {
		inOurs := i < len(ours)
		inTheirs := i < len(theirs)

		switch {
		case inOurs && !inTheirs:
			merged = append(merged, ours[i])
		case !inOurs && inTheirs:
			merged = append(merged, theirs[i])
		case itemEqual(ours[i], theirs[i]):
			merged = append(merged, ours[i])
		default:
			conflict := Conflict{Index: i, Ours: ours[i], Theirs: theirs[i]}
			if i < len(base) {
				conflict.Base = base[i]
			}
			conflicts = append(conflicts, conflict)
			merged = append(merged, ours[i])
		}
	}
	return merged, conflicts
}

func mergeUnion(ours, theirs []Item) []Item {
	merged := make([]Item, 0, len(ours)+len(theirs))
	merged = append(merged, ours...)
	for _, item := range theirs {
		duplicate := false
		for _, existing := range merged {
			if itemEqual(existing, item) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			merged = append(merged, item)
		}
	}
	return merged
}

// Merge combines sourceBranch into the current branch of the named buffer.
// On success a new version with both heads as parents advances the current
// branch. On conflicts the buffer is left untouched and the result carries
// the conflict list plus the partially merged content for inspection.
func (s *Set) Merge(name, sourceBranch, message string, strategy Strategy) (*MergeResult, error) {
	buf, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	source, ok := buf.Branches[sourceBranch]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "branch %q not found on buffer %q", sourceBranch, name)
	}
	current := buf.Branches[buf.CurrentBranch]
	if sourceBranch == buf.CurrentBranch {
		return nil, auierr.New(auierr.InvalidArgs, "cannot merge branch %q into itself", sourceBranch)
	}

	oursHead := buf.Versions[current.HeadVersion]
	theirsHead := buf.Versions[source.HeadVersion]

	var merged []Item
	var conflicts []Conflict

	switch strategy {
	case StrategyOurs:
		merged = cloneItems(oursHead.Content)
	case StrategyTheirs:
		merged = cloneItems(theirsHead.Content)
	case StrategyUnion:
		merged = mergeUnion(oursHead.Content, theirsHead.Content)
	case StrategyAuto, "":
		var base []Item
		if ancestor := buf.commonAncestor(current.HeadVersion, source.HeadVersion); ancestor != nil {
			base = ancestor.Content
		}
		merged, conflicts = mergeAuto(oursHead.Content, theirsHead.Content, base)
	default:
		return nil, auierr.New(auierr.InvalidArgs, "unknown merge strategy %q", strategy)
	}

	if len(conflicts) > 0 {
		return &MergeResult{
			Success:       false,
			Conflicts:     conflicts,
			MergedContent: merged,
		}, nil
	}

	if message == "" {
		message = "merge " + sourceBranch
	}

	now := time.Now()
	version := &Version{
		ID:        versionID(merged, current.HeadVersion, message, now),
		Content:   cloneItems(merged),
		Message:   message,
		Timestamp: now,
		ParentID:  current.HeadVersion,
		Parents:   []string{source.HeadVersion},
	}

	buf.Versions[version.ID] = version
	current.HeadVersion = version.ID
	buf.WorkingContent = cloneItems(merged)
	buf.Dirty = false
	buf.UpdatedAt = now

	return &MergeResult{Success: true, NewVersionID: version.ID}, nil
}
