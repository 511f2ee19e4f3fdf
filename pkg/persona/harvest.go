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

// Package persona implements the interactive persona harvest state machine.
//
// A harvest collects writing samples, runs the voice-analyzer adapter over
// them, and finalizes a persisted persona profile with zero or more styles:
//
//	collecting → analyzing → finalizing → complete
//
// Samples may only be added while collecting; analysis requires at least one
// sample. Completed harvests stay inspectable for a short retention window.
package persona

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/hash"
	"github.com/humanizer-ai/aui/pkg/store"
)

// Phase is the harvest lifecycle state.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseAnalyzing  Phase = "analyzing"
	PhaseFinalizing Phase = "finalizing"
	PhaseComplete   Phase = "complete"
)

// completedRetention keeps finished harvests inspectable before removal.
const completedRetention = 60 * time.Second

// Sample is one collected writing sample.
type Sample struct {
	ID            string  `json:"id"`
	Text          string  `json:"text"`
	TextHash      string  `json:"text_hash"`
	Source        string  `json:"source,omitempty"`
	ArchiveNodeID string  `json:"archive_node_id,omitempty"`
	Relevance     float64 `json:"relevance,omitempty"`
}

// Harvest is one in-flight persona harvest.
type Harvest struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	Name      string         `json:"name"`
	Phase     Phase          `json:"phase"`
	Samples   []Sample       `json:"samples"`
	Traits    map[string]any `json:"traits,omitempty"`
	PersonaID string         `json:"persona_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// VoiceAnalyzer extracts voice traits from samples. External adapter; its
// result is stored opaquely.
type VoiceAnalyzer interface {
	Analyze(ctx context.Context, samples []string) (map[string]any, error)
}

// ArchiveSearch finds candidate samples in the archive. Results carry the
// source node so harvests can deduplicate.
type ArchiveSearch func(ctx context.Context, query string, limit int) ([]ArchiveHit, error)

// ArchiveHit is one archive search result.
type ArchiveHit struct {
	NodeID     string
	Text       string
	AuthorRole string
	Relevance  float64
}

// FinalizeOptions shapes the persisted persona.
type FinalizeOptions struct {
	VoiceTraits    map[string]any
	ToneMarkers    []string
	FormalityRange []float64
	Styles         []map[string]any
	SetAsDefault   bool
}

// Manager owns the harvest records.
type Manager struct {
	mu       sync.Mutex
	harvests map[string]*Harvest
	store    store.Store
	analyzer VoiceAnalyzer
	search   ArchiveSearch
}

// NewManager creates a harvest manager. search may be nil when no archive
// is attached.
func NewManager(st store.Store, analyzer VoiceAnalyzer, search ArchiveSearch) *Manager {
	return &Manager{
		harvests: make(map[string]*Harvest),
		store:    st,
		analyzer: analyzer,
		search:   search,
	}
}

// Start creates a harvest in the collecting phase.
func (m *Manager) Start(userID, name string) *Harvest {
	now := time.Now()
	h := &Harvest{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Phase:     PhaseCollecting,
		Samples:   []Sample{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.harvests[h.ID] = h
	m.mu.Unlock()
	return h
}

// Get returns a harvest by id.
func (m *Manager) Get(id string) (*Harvest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.harvests[id]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "harvest %q not found", id)
	}
	return h, nil
}

// AddSample appends a manual sample. Only allowed while collecting.
func (m *Manager) AddSample(id, text, source string) (*Harvest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.harvests[id]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "harvest %q not found", id)
	}
	if h.Phase != PhaseCollecting {
		return nil, auierr.New(auierr.WrongPhase, "harvest %q is %s; samples can only be added while collecting", id, h.Phase)
	}

	textHash := hash.HashText(text)
	for _, sample := range h.Samples {
		if sample.TextHash == textHash {
			return h, nil
		}
	}

	h.Samples = append(h.Samples, Sample{
		ID:       uuid.NewString(),
		Text:     text,
		TextHash: textHash,
		Source:   source,
	})
	h.UpdatedAt = time.Now()
	return h, nil
}

// HarvestFromArchive pulls samples from the archive. Hits are restricted to
// author role "user" (or absent), deduplicated by node id, and filtered by
// minRelevance.
func (m *Manager) HarvestFromArchive(ctx context.Context, id, query string, limit int, minRelevance float64) (*Harvest, error) {
	if m.search == nil {
		return nil, auierr.New(auierr.AdapterFailure, "no archive search is configured")
	}
	if limit <= 0 {
		limit = 20
	}

	// Validate phase before the adapter call so the error surfaces early.
	h, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if h.Phase != PhaseCollecting {
		return nil, auierr.New(auierr.WrongPhase, "harvest %q is %s; samples can only be added while collecting", id, h.Phase)
	}

	hits, err := m.search(ctx, query, limit)
	if err != nil {
		return nil, auierr.Wrap(auierr.AdapterFailure, err, "archive search failed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.harvests[id]
	if !ok {
		return nil, auierr.New(auierr.NotFound, "harvest %q not found", id)
	}
	if h.Phase != PhaseCollecting {
		return nil, auierr.New(auierr.WrongPhase, "harvest %q is %s; samples can only be added while collecting", id, h.Phase)
	}

	seen := make(map[string]struct{})
	seenHashes := make(map[string]struct{})
	for _, sample := range h.Samples {
		if sample.ArchiveNodeID != "" {
			seen[sample.ArchiveNodeID] = struct{}{}
		}
		seenHashes[sample.TextHash] = struct{}{}
	}

	for _, hit := range hits {
		if hit.AuthorRole != "" && hit.AuthorRole != "user" {
			continue
		}
		if hit.Relevance < minRelevance {
			continue
		}
		if _, dup := seen[hit.NodeID]; dup {
			continue
		}
		textHash := hash.HashText(hit.Text)
		if _, dup := seenHashes[textHash]; dup {
			continue
		}
		seen[hit.NodeID] = struct{}{}
		seenHashes[textHash] = struct{}{}
		h.Samples = append(h.Samples, Sample{
			ID:            uuid.NewString(),
			Text:          hit.Text,
			TextHash:      textHash,
			Source:        "archive",
			ArchiveNodeID: hit.NodeID,
			Relevance:     hit.Relevance,
		})
	}
	h.UpdatedAt = time.Now()
	return h, nil
}

// ExtractTraits transitions to analyzing and runs the voice analyzer over
// every sample. Fails with InvalidArgs when nothing was collected.
func (m *Manager) ExtractTraits(ctx context.Context, id string) (*Harvest, error) {
	m.mu.Lock()
	h, ok := m.harvests[id]
	if !ok {
		m.mu.Unlock()
		return nil, auierr.New(auierr.NotFound, "harvest %q not found", id)
	}
	if h.Phase != PhaseCollecting {
		m.mu.Unlock()
		return nil, auierr.New(auierr.WrongPhase, "harvest %q is %s; traits are extracted from collecting", id, h.Phase)
	}
	if len(h.Samples) == 0 {
		m.mu.Unlock()
		return nil, auierr.New(auierr.InvalidArgs, "harvest %q has no samples", id)
	}
	h.Phase = PhaseAnalyzing
	texts := make([]string, 0, len(h.Samples))
	for _, sample := range h.Samples {
		texts = append(texts, sample.Text)
	}
	m.mu.Unlock()

	traits, err := m.analyzer.Analyze(ctx, texts)
	if err != nil {
		return nil, auierr.Wrap(auierr.AdapterFailure, err, "voice analysis failed")
	}

	m.mu.Lock()
	h.Traits = traits
	h.UpdatedAt = time.Now()
	m.mu.Unlock()
	return h, nil
}

// Finalize persists the persona plus styles and completes the harvest. The
// first style becomes the default unless one is marked. The harvest record
// is retained for a minute afterwards for inspection.
func (m *Manager) Finalize(ctx context.Context, id string, opts FinalizeOptions) (*store.Persona, error) {
	m.mu.Lock()
	h, ok := m.harvests[id]
	if !ok {
		m.mu.Unlock()
		return nil, auierr.New(auierr.NotFound, "harvest %q not found", id)
	}
	if h.Phase != PhaseAnalyzing {
		m.mu.Unlock()
		return nil, auierr.New(auierr.WrongPhase, "harvest %q is %s; finalize follows analysis", id, h.Phase)
	}
	h.Phase = PhaseFinalizing
	m.mu.Unlock()

	traits := opts.VoiceTraits
	if traits == nil {
		traits = h.Traits
	}

	examples := make([]string, 0, len(h.Samples))
	for _, sample := range h.Samples {
		examples = append(examples, sample.Text)
	}

	persona := &store.Persona{
		ID:             uuid.NewString(),
		UserID:         h.UserID,
		Name:           h.Name,
		IsDefault:      opts.SetAsDefault,
		VoiceTraits:    traits,
		ToneMarkers:    opts.ToneMarkers,
		FormalityRange: opts.FormalityRange,
		ExampleTexts:   examples,
		CreatedAt:      time.Now(),
	}
	if err := m.store.SavePersona(ctx, persona); err != nil {
		return nil, err
	}

	defaultIdx := 0
	for i, descriptor := range opts.Styles {
		if marked, ok := descriptor["default"].(bool); ok && marked {
			defaultIdx = i
			break
		}
	}
	for i, descriptor := range opts.Styles {
		style := &store.StyleProfile{
			ID:         uuid.NewString(),
			PersonaID:  persona.ID,
			Name:       styleName(descriptor, i),
			IsDefault:  i == defaultIdx,
			Descriptor: descriptor,
			CreatedAt:  time.Now(),
		}
		if err := m.store.SaveStyle(ctx, style); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	h.Phase = PhaseComplete
	h.PersonaID = persona.ID
	h.UpdatedAt = time.Now()
	m.mu.Unlock()

	time.AfterFunc(completedRetention, func() {
		m.mu.Lock()
		delete(m.harvests, id)
		m.mu.Unlock()
	})

	return persona, nil
}

func styleName(descriptor map[string]any, i int) string {
	if name, ok := descriptor["name"].(string); ok && name != "" {
		return name
	}
	return fmt.Sprintf("style-%d", i+1)
}
