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

// Package aui is the Unified Agentic Orchestration Service façade.
//
// The service owns the session manager; every public operation resolves a
// session, touches it, and dispatches to one component. LLM-using paths
// consult the admin plane on entry and record cost on exit.
package aui

import (
	"context"
	"encoding/json"
	"time"

	"github.com/humanizer-ai/aui/pkg/admin"
	"github.com/humanizer-ai/aui/pkg/archive"
	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/book"
	"github.com/humanizer-ai/aui/pkg/buffer"
	"github.com/humanizer-ai/aui/pkg/config"
	"github.com/humanizer-ai/aui/pkg/embedder"
	"github.com/humanizer-ai/aui/pkg/llms"
	"github.com/humanizer-ai/aui/pkg/observability"
	"github.com/humanizer-ai/aui/pkg/persona"
	"github.com/humanizer-ai/aui/pkg/session"
	"github.com/humanizer-ai/aui/pkg/store"
)

// PipelineResult is the pipeline adapter's output.
type PipelineResult struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// PipelineExecutor executes and validates pipeline text. External adapter.
type PipelineExecutor interface {
	Execute(ctx context.Context, pipeline string) (*PipelineResult, error)

	// Validate parses without executing. Implementations that cannot
	// separate parsing may execute with a dry-run flag.
	Validate(ctx context.Context, pipeline string) error
}

// SearchResult is one hit from the search adapter.
type SearchResult struct {
	ID        string         `json:"id"`
	NodeID    string         `json:"node_id,omitempty"`
	Text      string         `json:"text"`
	Relevance float64        `json:"relevance"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchOptions bounds a search call.
type SearchOptions struct {
	Limit        int            `json:"limit,omitempty"`
	MinRelevance float64        `json:"min_relevance,omitempty"`
	Filters      map[string]any `json:"filters,omitempty"`
}

// SearchService is the session-scoped search adapter.
type SearchService interface {
	Search(ctx context.Context, sessionID, query string, opts SearchOptions) ([]SearchResult, error)
	Refine(ctx context.Context, sessionID string, opts SearchOptions) ([]SearchResult, error)
	AddAnchor(ctx context.Context, sessionID, resultID, anchorType string) error
	Results(ctx context.Context, sessionID string) ([]SearchResult, error)
}

// Adapters bundles the external collaborators.
type Adapters struct {
	LLM      llms.Provider
	Embedder embedder.Provider
	Pipeline PipelineExecutor
	Search   SearchService
	Voice    persona.VoiceAnalyzer
	Rewriter book.Rewriter
}

// Service is the AUI façade.
type Service struct {
	cfg      *config.Config
	sessions *session.Manager
	store    store.Store
	admin    *admin.Plane
	adapters Adapters

	driver     *archive.Driver
	discoverer *archive.Discoverer
	assembler  *book.Assembler
	personas   *persona.Manager
	metrics    *observability.Metrics // optional

	tasks *taskRegistry
}

// New constructs a service with injected adapters. st may be nil, in which
// case an in-memory store is created.
func New(cfg *config.Config, st store.Store, adapters Adapters) (*Service, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.SetDefaults()

	if st == nil {
		memory, err := store.NewMemory()
		if err != nil {
			return nil, err
		}
		st = memory
	}

	plane := admin.NewPlane(admin.Config{
		EnableCostTracking: cfg.EnableCostTracking == nil || *cfg.EnableCostTracking,
		CostRetentionDays:  cfg.CostRetentionDays,
		DefaultTierID:      cfg.DefaultTierID,
	}, st)

	s := &Service{
		cfg: cfg,
		sessions: session.NewManager(session.Config{
			MaxSessions:     cfg.MaxSessions,
			SessionTimeout:  cfg.SessionTimeout,
			CleanupInterval: cfg.CleanupInterval,
		}),
		store:    st,
		admin:    plane,
		adapters: adapters,
		tasks:    newTaskRegistry(),
	}

	s.discoverer = archive.NewDiscoverer(st)
	if adapters.Embedder != nil {
		s.driver = archive.NewDriver(st, adapters.Embedder)
	}
	s.assembler = book.NewAssembler(st, adapters.Embedder, adapters.Rewriter)
	s.personas = persona.NewManager(st, adapters.Voice, s.personaArchiveSearch())

	return s, nil
}

// SetMetrics attaches service metrics: LLM cost flows from the admin plane,
// tool executions from each executor, and the session count feeds the
// active-sessions gauge.
func (s *Service) SetMetrics(m *observability.Metrics) {
	s.metrics = m
	s.admin.SetMetrics(m)
	s.sessions.SetCountListener(m.SetActiveSessions)
}

// Admin exposes the admin plane for config, prompt, tier and report
// operations.
func (s *Service) Admin() *admin.Plane { return s.admin }

// Sessions exposes the session manager.
func (s *Service) Sessions() *session.Manager { return s.sessions }

// Store exposes the backing store.
func (s *Service) Store() store.Store { return s.store }

// Close stops background work and releases the store.
func (s *Service) Close() error {
	s.sessions.Destroy()
	return s.store.Close()
}

// ---------------------------------------------------------------------------
// Session operations
// ---------------------------------------------------------------------------

// CreateSessionOptions names the optional attributes of a new session.
type CreateSessionOptions struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// CreateSession allocates a session.
func (s *Service) CreateSession(opts CreateSessionOptions) *session.Session {
	return s.sessions.Create(session.CreateOptions{UserID: opts.UserID, Name: opts.Name})
}

// GetSession resolves a live session, attempting store rehydration when
// persistence is enabled.
func (s *Service) GetSession(id string) (*session.Session, error) {
	sess, err := s.sessions.Get(id)
	if err == nil {
		return sess, nil
	}
	if !s.cfg.PersistSessions {
		return nil, err
	}

	snapshot, snapErr := s.store.GetSessionSnapshot(context.Background(), id)
	if snapErr != nil {
		return nil, err
	}

	rehydrated := &session.Session{}
	if unmarshalErr := json.Unmarshal(snapshot.Payload, rehydrated); unmarshalErr != nil {
		return nil, auierr.Wrap(auierr.StoreFailure, unmarshalErr, "failed to decode session snapshot %s", id)
	}
	if rehydrated.ID == "" {
		rehydrated.ID = snapshot.ID
	}
	if rehydrated.UserID == "" {
		rehydrated.UserID = snapshot.UserID
	}
	if rehydrateErr := s.sessions.Rehydrate(rehydrated); rehydrateErr != nil {
		return nil, rehydrateErr
	}
	return rehydrated, nil
}

// DeleteSession removes a session and its snapshot.
func (s *Service) DeleteSession(id string) error {
	if s.cfg.PersistSessions {
		_ = s.store.DeleteSessionSnapshot(context.Background(), id)
	}
	return s.sessions.Delete(id)
}

// ListSessions returns live sessions, newest-updated first.
func (s *Service) ListSessions() []*session.Session {
	return s.sessions.List()
}

// PersistSession snapshots a session to the store.
func (s *Service) PersistSession(id string) error {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return err
	}

	sess.Lock()
	payload, marshalErr := json.Marshal(sess)
	sess.Unlock()
	if marshalErr != nil {
		return auierr.Wrap(auierr.Internal, marshalErr, "failed to encode session")
	}

	return s.store.SaveSessionSnapshot(context.Background(), &store.SessionSnapshot{
		ID:        sess.ID,
		UserID:    sess.UserID,
		Name:      sess.Name,
		Payload:   payload,
		UpdatedAt: time.Now(),
	})
}

// resolve loads and touches a session.
func (s *Service) resolve(id string) (*session.Session, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	s.sessions.Touch(sess)
	return sess, nil
}

// ---------------------------------------------------------------------------
// Buffer operations
// ---------------------------------------------------------------------------

// CreateBuffer creates a named buffer in the session.
func (s *Service) CreateBuffer(sessionID, name string, initialContent []buffer.Item) (*buffer.Buffer, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	buf, err := sess.Buffers.Create(name, initialContent)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	sess.ActiveBufferName = name
	sess.Unlock()
	return buf, nil
}

// GetBuffer returns a buffer by name.
func (s *Service) GetBuffer(sessionID, name string) (*buffer.Buffer, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Buffers.Get(name)
}

// ListBuffers returns the session's buffer names.
func (s *Service) ListBuffers(sessionID string) ([]string, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Buffers.List(), nil
}

// SetBufferContent replaces a buffer's working content.
func (s *Service) SetBufferContent(sessionID, name string, content []buffer.Item) error {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return err
	}
	return sess.Buffers.SetWorkingContent(name, content)
}

// AppendToBuffer appends items to a buffer's working content.
func (s *Service) AppendToBuffer(sessionID, name string, items []buffer.Item) error {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return err
	}
	return sess.Buffers.Append(name, items)
}

// Commit snapshots a buffer's working content.
func (s *Service) Commit(sessionID, name, message string) (*buffer.Version, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Buffers.Commit(name, message)
}

// Rollback moves a buffer back along its history.
func (s *Service) Rollback(sessionID, name string, steps int) (*buffer.Version, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Buffers.Rollback(name, steps)
}

// GetHistory walks a buffer's history, newest first.
func (s *Service) GetHistory(sessionID, name string, limit int) ([]*buffer.Version, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Buffers.History(name, limit)
}

// Branch creates a branch at the buffer's current head.
func (s *Service) Branch(sessionID, name, branchName string) (*buffer.Branch, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Buffers.CreateBranch(name, branchName)
}

// SwitchBranch moves a buffer to another branch.
func (s *Service) SwitchBranch(sessionID, name, branchName string) error {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return err
	}
	return sess.Buffers.SwitchBranch(name, branchName)
}

// Merge merges a source branch into the buffer's current branch.
func (s *Service) Merge(sessionID, name, sourceBranch, message string, strategy buffer.Strategy) (*buffer.MergeResult, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Buffers.Merge(name, sourceBranch, message, strategy)
}

// Diff compares two buffer versions.
func (s *Service) Diff(sessionID, name, from, to string) (*buffer.Diff, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Buffers.Diff(name, from, to)
}
