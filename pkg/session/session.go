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

// Package session provides tenant session lifecycle management.
//
// Each session owns its buffers, task references and command history. The
// Manager enforces a capacity bound with oldest-first eviction, an idle TTL
// refreshed on every touch, and a background sweeper that removes expired
// sessions.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/buffer"
)

// Session is one tenant interaction.
type Session struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id,omitempty"`
	Name             string         `json:"name,omitempty"`
	Buffers          *buffer.Set    `json:"-"`
	ActiveBufferName string         `json:"active_buffer_name,omitempty"`
	SearchSessionID  string         `json:"search_session_id,omitempty"`
	CurrentTaskID    string         `json:"current_task_id,omitempty"`
	TaskHistory      []string       `json:"task_history,omitempty"`
	CommandHistory   []string       `json:"command_history,omitempty"`
	Variables        map[string]any `json:"variables,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	ExpiresAt        time.Time      `json:"expires_at"`
	CommandCount     int            `json:"command_count"`
	SearchCount      int            `json:"search_count"`
	TaskCount        int            `json:"task_count"`

	mu sync.Mutex
}

// Lock serializes per-session mutation. Step appends and buffer operations
// for one session run under this lock.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

func (s *Session) expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Config configures a Manager.
type Config struct {
	// MaxSessions is the capacity before oldest-first eviction.
	MaxSessions int `yaml:"max_sessions,omitempty"`

	// SessionTimeout is the idle TTL refreshed on every touch.
	SessionTimeout time.Duration `yaml:"session_timeout,omitempty"`

	// CleanupInterval is the sweeper cadence.
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty"`
}

// SetDefaults applies the default capacity and timings.
func (c *Config) SetDefaults() {
	if c.MaxSessions == 0 {
		c.MaxSessions = 1000
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 30 * time.Minute
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = 60 * time.Second
	}
}

// Manager owns the session map.
type Manager struct {
	cfg      Config
	mu       sync.RWMutex
	sessions map[string]*Session
	stopCh   chan struct{}
	stopOnce sync.Once
	onCount  func(int)

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a manager and starts its cleanup sweeper.
func NewManager(cfg Config) *Manager {
	cfg.SetDefaults()
	m := &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
	go m.sweep()
	return m
}

func (m *Manager) sweep() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stopCh:
			return
		}
	}
}

// SetCountListener registers a callback observing the session count after
// every change. Used to feed the active-sessions gauge.
func (m *Manager) SetCountListener(fn func(int)) {
	m.onCount = fn
	m.notifyCount()
}

// notifyCount reports the current count to the listener. Called outside the
// map lock.
func (m *Manager) notifyCount() {
	if m.onCount != nil {
		m.onCount(m.Count())
	}
}

// CreateOptions names the optional attributes of a new session.
type CreateOptions struct {
	UserID string
	Name   string
}

// Create allocates a new session. At capacity the session with the oldest
// UpdatedAt is evicted first.
func (m *Manager) Create(opts CreateOptions) *Session {
	m.mu.Lock()

	if len(m.sessions) >= m.cfg.MaxSessions {
		m.evictOldestLocked()
	}

	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    opts.UserID,
		Name:      opts.Name,
		Buffers:   buffer.NewSet(),
		Variables: make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.cfg.SessionTimeout),
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.notifyCount()
	return s
}

// Rehydrate inserts a restored session under its own id, evicting at
// capacity like Create. Unmarshaled snapshots lack the fields JSON skips, so
// the buffer set and variable map are re-initialized when absent, and the
// timestamps are refreshed so the session is immediately live.
func (m *Manager) Rehydrate(s *Session) error {
	if s == nil || s.ID == "" {
		return auierr.New(auierr.InvalidArgs, "session id is required to rehydrate")
	}
	if s.Buffers == nil {
		s.Buffers = buffer.NewSet()
	}
	if s.Variables == nil {
		s.Variables = make(map[string]any)
	}

	m.mu.Lock()
	if _, exists := m.sessions[s.ID]; !exists && len(m.sessions) >= m.cfg.MaxSessions {
		m.evictOldestLocked()
	}
	now := m.now()
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(m.cfg.SessionTimeout)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.notifyCount()
	return nil
}

// evictOldestLocked removes the session with the oldest UpdatedAt.
// Callers hold m.mu.
func (m *Manager) evictOldestLocked() {
	var oldest *Session
	for _, s := range m.sessions {
		if oldest == nil || s.UpdatedAt.Before(oldest.UpdatedAt) {
			oldest = s
		}
	}
	if oldest != nil {
		delete(m.sessions, oldest.ID)
	}
}

// Get returns the session, or a NotFound error when the id is unknown or the
// session expired. Expired sessions are removed on access.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()

	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, auierr.New(auierr.NotFound, "session %q not found", id)
	}
	if s.expired(m.now()) {
		delete(m.sessions, id)
		m.mu.Unlock()
		m.notifyCount()
		return nil, auierr.New(auierr.NotFound, "session %q expired", id)
	}
	m.mu.Unlock()
	return s, nil
}

// Touch refreshes the session's timestamps.
func (m *Manager) Touch(s *Session) {
	now := m.now()
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(m.cfg.SessionTimeout)
}

// List returns the non-expired sessions, newest-updated first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if !s.expired(now) {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions
}

// Delete removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()

	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		return auierr.New(auierr.NotFound, "session %q not found", id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.notifyCount()
	return nil
}

// Cleanup removes every expired session. Each removal holds the map lock
// individually so tenant calls are never blocked for more than one removal.
func (m *Manager) Cleanup() int {
	now := m.now()

	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		if s.expired(now) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.mu.Lock()
		if s, ok := m.sessions[id]; ok && s.expired(now) {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
	}
	if len(expired) > 0 {
		m.notifyCount()
	}
	return len(expired)
}

// Count returns the number of sessions currently held, expired included.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Destroy stops the sweeper and clears the session map.
func (m *Manager) Destroy() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	m.notifyCount()
}

// SetClock replaces the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}
