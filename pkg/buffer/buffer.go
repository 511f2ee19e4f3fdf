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

// Package buffer implements versioned content buffers.
//
// A buffer is a named, ordered sequence of opaque items with git-like
// history: commits, branches, merges and diffs. Each session owns a Set of
// buffers; all mutation goes through the Set so per-buffer locking is
// centralized here.
//
// Items are canonical JSON values (null, bool, float64, string, []any,
// map[string]any). SetWorkingContent and Append canonicalize their input, so
// equality checks across versions are stable.
package buffer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/humanizer-ai/aui/pkg/auierr"
)

// DefaultBranch is the branch every buffer starts on.
const DefaultBranch = "main"

// Item is one element of a buffer's content. Always a canonical JSON value.
type Item = any

// Version is an immutable snapshot of buffer content.
type Version struct {
	ID        string         `json:"id"`
	Content   []Item         `json:"content"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	ParentID  string         `json:"parent_id,omitempty"`
	Parents   []string       `json:"parents,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Branch points at a head version.
type Branch struct {
	Name         string    `json:"name"`
	HeadVersion  string    `json:"head_version_id"`
	CreatedAt    time.Time `json:"created_at"`
	Description  string    `json:"description,omitempty"`
	ParentBranch string    `json:"parent_branch,omitempty"`
}

// Buffer is a named versioned sequence of items.
type Buffer struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Branches       map[string]*Branch  `json:"branches"`
	Versions       map[string]*Version `json:"versions"`
	CurrentBranch  string              `json:"current_branch"`
	WorkingContent []Item              `json:"working_content"`
	Dirty          bool                `json:"is_dirty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`

	mu sync.Mutex
}

// head returns the current branch head version. Callers hold b.mu.
func (b *Buffer) head() *Version {
	br := b.Branches[b.CurrentBranch]
	if br == nil {
		return nil
	}
	return b.Versions[br.HeadVersion]
}

// refreshDirty recomputes the dirty flag from the working content.
// Callers hold b.mu.
func (b *Buffer) refreshDirty() {
	head := b.head()
	if head == nil {
		b.Dirty = len(b.WorkingContent) > 0
		return
	}
	b.Dirty = !itemsEqual(b.WorkingContent, head.Content)
}

// Set manages the buffers owned by one session.
type Set struct {
	mu      sync.RWMutex
	buffers map[string]*Buffer
}

// NewSet creates an empty buffer set.
func NewSet() *Set {
	return &Set{buffers: make(map[string]*Buffer)}
}

// canonicalize round-trips items through JSON so stored content only ever
// holds the closed JSON value set. Fails on values JSON cannot express.
func canonicalize(items []Item) ([]Item, error) {
	if items == nil {
		return []Item{}, nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, auierr.Wrap(auierr.InvalidArgs, err, "buffer content is not JSON-encodable")
	}
	out := []Item{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, auierr.Wrap(auierr.Internal, err, "buffer content round-trip failed")
	}
	return out, nil
}

func cloneItems(items []Item) []Item {
	cloned, err := canonicalize(items)
	if err != nil {
		// Stored content was canonicalized on the way in, re-encoding it
		// cannot fail.
		panic(err)
	}
	return cloned
}

// versionID derives a short stable id from content, lineage and message.
func versionID(content []Item, parentID, message string, ts time.Time) string {
	raw, _ := json.Marshal(content)
	h := sha256.New()
	h.Write(raw)
	h.Write([]byte(parentID))
	h.Write([]byte(message))
	h.Write([]byte(strconv.FormatInt(ts.UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// Create initializes a buffer with a main branch and a root version holding
// the initial content.
func (s *Set) Create(name string, initialContent []Item) (*Buffer, error) {
	if name == "" {
		return nil, auierr.New(auierr.InvalidArgs, "buffer name cannot be empty")
	}

	content, err := canonicalize(initialContent)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.buffers[name]; exists {
		return nil, auierr.New(auierr.InvalidArgs, "buffer %q already exists", name)
	}

	now := time.Now()
	root := &Version{
		ID:        versionID(content, "", "initial", now),
		Content:   content,
		Message:   "initial",
		Timestamp: now,
	}

	buf := &Buffer{
		ID:   uuid.NewString(),
		Name: name,
		Branches: map[string]*Branch{
			DefaultBranch: {Name: DefaultBranch, HeadVersion: root.ID, CreatedAt: now},
		},
		Versions:       map[string]*Version{root.ID: root},
		CurrentBranch:  DefaultBranch,
		WorkingContent: cloneItems(content),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.buffers[name] = buf
	return buf, nil
}

// Get returns the buffer with the given name.
func (s *Set) Get(name string) (*Buffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, ok := s.buffers[name]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "buffer %q not found", name)
	}
	return buf, nil
}

// List returns every buffer name.
func (s *Set) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.buffers))
	for name := range s.buffers {
		names = append(names, name)
	}
	return names
}

// Delete removes a buffer.
func (s *Set) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buffers[name]; !ok {
		return auierr.New(auierr.NotFound, "buffer %q not found", name)
	}
	delete(s.buffers, name)
	return nil
}

// SetWorkingContent replaces the working copy.
func (s *Set) SetWorkingContent(name string, content []Item) error {
	buf, err := s.Get(name)
	if err != nil {
		return err
	}

	canonical, err := canonicalize(content)
	if err != nil {
		return err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	buf.WorkingContent = canonical
	buf.refreshDirty()
	buf.UpdatedAt = time.Now()
	return nil
}

// Append adds items to the working copy.
func (s *Set) Append(name string, items []Item) error {
	buf, err := s.Get(name)
	if err != nil {
		return err
	}

	canonical, err := canonicalize(items)
	if err != nil {
		return err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	buf.WorkingContent = append(buf.WorkingContent, canonical...)
	buf.refreshDirty()
	buf.UpdatedAt = time.Now()
	return nil
}

// WorkingContent returns a copy of the working content.
func (s *Set) WorkingContent(name string) ([]Item, error) {
	buf, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()
	return cloneItems(buf.WorkingContent), nil
}

// Commit snapshots the working content as a new version on the current
// branch. Fails when there is nothing to commit.
func (s *Set) Commit(name, message string) (*Version, error) {
	buf, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	if !buf.Dirty {
		return nil, auierr.New(auierr.NothingToCommit, "buffer %q has no changes to commit", name)
	}

	branch := buf.Branches[buf.CurrentBranch]
	now := time.Now()
	version := &Version{
		ID:        versionID(buf.WorkingContent, branch.HeadVersion, message, now),
		Content:   cloneItems(buf.WorkingContent),
		Message:   message,
		Timestamp: now,
		ParentID:  branch.HeadVersion,
	}

	buf.Versions[version.ID] = version
	branch.HeadVersion = version.ID
	buf.Dirty = false
	buf.UpdatedAt = now
	return version, nil
}

// Rollback moves the current branch head back along parent links and resets
// the working content to that version. History beyond the new head remains
// addressable by version id.
func (s *Set) Rollback(name string, steps int) (*Version, error) {
	if steps < 1 {
		return nil, auierr.New(auierr.InvalidArgs, "rollback steps must be >= 1")
	}

	buf, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	branch := buf.Branches[buf.CurrentBranch]
	current := buf.Versions[branch.HeadVersion]
	for i := 0; i < steps; i++ {
		if current == nil || current.ParentID == "" {
			return nil, auierr.New(auierr.NoSuchAncestor, "buffer %q has no ancestor %d steps back", name, steps)
		}
		current = buf.Versions[current.ParentID]
	}
	if current == nil {
		return nil, auierr.New(auierr.NoSuchAncestor, "buffer %q has no ancestor %d steps back", name, steps)
	}

	branch.HeadVersion = current.ID
	buf.WorkingContent = cloneItems(current.Content)
	buf.Dirty = false
	buf.UpdatedAt = time.Now()
	return current, nil
}

// CreateBranch creates a branch at the current head.
func (s *Set) CreateBranch(name, branchName string) (*Branch, error) {
	if branchName == "" {
		return nil, auierr.New(auierr.InvalidArgs, "branch name cannot be empty")
	}

	buf, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	if _, exists := buf.Branches[branchName]; exists {
		return nil, auierr.New(auierr.BranchExists, "branch %q already exists on buffer %q", branchName, name)
	}

	current := buf.Branches[buf.CurrentBranch]
	branch := &Branch{
		Name:         branchName,
		HeadVersion:  current.HeadVersion,
		CreatedAt:    time.Now(),
		ParentBranch: buf.CurrentBranch,
	}
	buf.Branches[branchName] = branch
	buf.UpdatedAt = branch.CreatedAt
	return branch, nil
}

// SwitchBranch moves to another branch and reloads the working content from
// its head. Uncommitted changes block the switch.
func (s *Set) SwitchBranch(name, branchName string) error {
	buf, err := s.Get(name)
	if err != nil {
		return err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	branch, ok := buf.Branches[branchName]
	if !ok {
		return auierr.New(auierr.NotFound, "branch %q not found on buffer %q", branchName, name)
	}
	if buf.Dirty {
		return auierr.New(auierr.UncommittedChanges, "buffer %q has uncommitted changes", name)
	}

	buf.CurrentBranch = branchName
	buf.WorkingContent = cloneItems(buf.Versions[branch.HeadVersion].Content)
	buf.Dirty = false
	buf.UpdatedAt = time.Now()
	return nil
}

// History walks the parent chain from the current head, newest first.
// limit <= 0 returns the full chain.
func (s *Set) History(name string, limit int) ([]*Version, error) {
	buf, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	var history []*Version
	current := buf.head()
	for current != nil {
		history = append(history, current)
		if limit > 0 && len(history) >= limit {
			break
		}
		if current.ParentID == "" {
			break
		}
		current = buf.Versions[current.ParentID]
	}
	return history, nil
}

// TagVersion attaches a tag to an existing version.
func (s *Set) TagVersion(name, versionID, tag string) error {
	buf, err := s.Get(name)
	if err != nil {
		return err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	version, ok := buf.Versions[versionID]
	if !ok {
		return auierr.New(auierr.NotFound, "version %q not found on buffer %q", versionID, name)
	}
	for _, t := range version.Tags {
		if t == tag {
			return nil
		}
	}
	version.Tags = append(version.Tags, tag)
	return nil
}

func (s *Set) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("buffer.Set(%d buffers)", len(s.buffers))
}
