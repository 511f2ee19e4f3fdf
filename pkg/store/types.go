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

package store

import "time"

// Node is one archived content passage, optionally embedded.
type Node struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	SourceType      string    `json:"source_type,omitempty"`
	AuthorRole      string    `json:"author_role,omitempty"`
	SourceCreatedAt time.Time `json:"source_created_at,omitempty"`
	WordCount       int       `json:"word_count"`
	HierarchyLevel  int       `json:"hierarchy_level"`
	ParentID        string    `json:"parent_id,omitempty"`
	Embedding       []float32 `json:"-"`
	EmbeddingModel  string    `json:"embedding_model,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Embedded reports whether the node carries a stored embedding.
func (n *Node) Embedded() bool {
	return len(n.Embedding) > 0
}

// Chapter is one assembled book chapter.
type Chapter struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Passages []string `json:"passage_ids,omitempty"`
	Order    int      `json:"order"`
}

// Book is an assembled narrative over cluster passages.
type Book struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Introduction string    `json:"introduction,omitempty"`
	ArcType      string    `json:"arc_type"`
	ClusterID    string    `json:"cluster_id,omitempty"`
	PersonaID    string    `json:"persona_id,omitempty"`
	Chapters     []Chapter `json:"chapters"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Cluster groups similar passages discovered by the cluster driver.
type Cluster struct {
	ID                 string         `json:"id"`
	Label              string         `json:"label"`
	Description        string         `json:"description,omitempty"`
	Passages           []string       `json:"passage_ids"`
	TotalPassages      int            `json:"total_passages"`
	Coherence          float64        `json:"coherence"`
	Keywords           []string       `json:"keywords,omitempty"`
	SourceDistribution map[string]int `json:"source_distribution,omitempty"`
	DateRange          *DateRange     `json:"date_range,omitempty"`
	AvgWordCount       float64        `json:"avg_word_count"`
	CreatedAt          time.Time      `json:"created_at"`
}

// DateRange is a min/max pair of source timestamps.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Artifact is a rendered book export.
type Artifact struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	Format    string    `json:"format"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Persona is a persisted voice descriptor set.
type Persona struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id,omitempty"`
	Name           string         `json:"name"`
	IsDefault      bool           `json:"is_default"`
	VoiceTraits    map[string]any `json:"voice_traits,omitempty"`
	ToneMarkers    []string       `json:"tone_markers,omitempty"`
	FormalityRange []float64      `json:"formality_range,omitempty"`
	ExampleTexts   []string       `json:"example_texts,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// StyleProfile is one named rendering style attached to a persona.
type StyleProfile struct {
	ID         string         `json:"id"`
	PersonaID  string         `json:"persona_id"`
	Name       string         `json:"name"`
	IsDefault  bool           `json:"is_default"`
	Descriptor map[string]any `json:"descriptor,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CostEntry records one LLM call.
type CostEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"user_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostCents    float64   `json:"cost_cents"`
	LatencyMs    int64     `json:"latency_ms"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
}

// Usage aggregates cost entries per (user, period). Period keys are
// YYYY-MM-DD for days and YYYY-MM for months.
type Usage struct {
	UserID       string             `json:"user_id"`
	Period       string             `json:"period"`
	TokensUsed   int                `json:"tokens_used"`
	RequestCount int                `json:"request_count"`
	CostCents    float64            `json:"cost_cents"`
	ByModel      map[string]int     `json:"by_model,omitempty"`
	ByOperation  map[string]int     `json:"by_operation,omitempty"`
	CostByModel  map[string]float64 `json:"cost_by_model,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// SessionSnapshot is a persisted session for rehydration.
type SessionSnapshot struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Payload   []byte    `json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchOptions bounds an embedding search.
type SearchOptions struct {
	Limit     int
	Threshold float32
}
