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

// Package book assembles narrative books from discovered clusters.
//
// The pipeline runs harvest → arc → chapters, optionally followed by a
// persona-consistent rewrite pass and an indexing pass that chunks chapters
// back into the archive with embeddings.
package book

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/embedder"
	"github.com/humanizer-ai/aui/pkg/store"
)

// ArcType orders the harvested passages into a narrative.
type ArcType string

const (
	ArcChronological ArcType = "chronological"
	ArcThematic      ArcType = "thematic"
	ArcDramatic      ArcType = "dramatic"
	ArcExploratory   ArcType = "exploratory"
)

// Passage is a harvested passage with its relevance to the cluster.
type Passage struct {
	Node      *store.Node
	Relevance float64
}

// Rewriter rewrites a chapter in a persona's voice. External adapter.
type Rewriter interface {
	Rewrite(ctx context.Context, content string, persona *store.Persona, style map[string]any) (string, error)
}

// Options configures book creation.
type Options struct {
	UserID            string
	Title             string
	Description       string
	ArcType           ArcType
	MaxPassages       int
	PersonaID         string
	UseDefaultPersona *bool
	RewritePasses     int
	Progress          func(phase string)
}

// SetDefaults applies the default bounds.
func (o *Options) SetDefaults() {
	if o.ArcType == "" {
		o.ArcType = ArcChronological
	}
	if o.MaxPassages == 0 {
		o.MaxPassages = 50
	}
	if o.RewritePasses == 0 {
		o.RewritePasses = 3
	}
}

// Assembler builds books.
type Assembler struct {
	store    store.Store
	embedder embedder.Provider // optional; enables chapter indexing
	rewriter Rewriter          // optional; enables persona rewrite
}

// NewAssembler creates an assembler. embedder and rewriter may be nil.
func NewAssembler(st store.Store, emb embedder.Provider, rewriter Rewriter) *Assembler {
	return &Assembler{store: st, embedder: emb, rewriter: rewriter}
}

// CreateFromCluster assembles a book from a discovered cluster.
func (a *Assembler) CreateFromCluster(ctx context.Context, clusterID string, opts Options) (*store.Book, error) {
	opts.SetDefaults()
	progress := func(phase string) {
		if opts.Progress != nil {
			opts.Progress(phase)
		}
	}

	cluster, err := a.store.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	persona, err := a.resolvePersona(ctx, opts)
	if err != nil {
		return nil, err
	}

	progress("gathering")
	passages, err := a.gather(ctx, cluster, opts.MaxPassages)
	if err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		return nil, auierr.New(auierr.InvalidArgs, "cluster %q has no usable passages", clusterID)
	}

	progress("generating_arc")
	arranged := arrangeArc(passages, opts.ArcType)

	progress("assembling")
	chapters := splitChapters(arranged)

	if persona != nil && a.rewriter != nil {
		progress("persona_rewriting")
		style := a.defaultStyle(ctx, persona)
		for i := range chapters {
			rewritten := chapters[i].Content
			for pass := 0; pass < opts.RewritePasses; pass++ {
				next, err := a.rewriter.Rewrite(ctx, rewritten, persona, style)
				if err != nil {
					return nil, auierr.Wrap(auierr.AdapterFailure, err, "persona rewrite failed on chapter %d", i+1)
				}
				if next == rewritten {
					break
				}
				rewritten = next
			}
			chapters[i].Content = rewritten
		}
	}

	now := time.Now()
	book := &store.Book{
		ID:          uuid.NewString(),
		UserID:      opts.UserID,
		Title:       opts.Title,
		Description: opts.Description,
		ArcType:     string(opts.ArcType),
		ClusterID:   clusterID,
		Chapters:    chapters,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if persona != nil {
		book.PersonaID = persona.ID
	}
	if book.Title == "" {
		book.Title = cluster.Label
	}
	if book.Description == "" {
		book.Description = cluster.Description
	}
	book.Introduction = fmt.Sprintf("Drawn from %d passages arranged along a %s arc.", len(arranged), opts.ArcType)

	if err := a.store.SaveBook(ctx, book); err != nil {
		return nil, err
	}

	if a.embedder != nil {
		progress("indexing")
		if err := a.index(ctx, book); err != nil {
			return nil, err
		}
	}

	progress("complete")
	return book, nil
}

// resolvePersona applies the precedence rule: explicit id, then the user
// default unless disabled, else none.
func (a *Assembler) resolvePersona(ctx context.Context, opts Options) (*store.Persona, error) {
	if opts.PersonaID != "" {
		return a.store.GetPersona(ctx, opts.PersonaID)
	}
	if opts.UseDefaultPersona != nil && !*opts.UseDefaultPersona {
		return nil, nil
	}
	if opts.UserID == "" {
		return nil, nil
	}
	persona, err := a.store.GetDefaultPersona(ctx, opts.UserID)
	if auierr.IsKind(err, auierr.NotFound) {
		return nil, nil
	}
	return persona, err
}

func (a *Assembler) defaultStyle(ctx context.Context, persona *store.Persona) map[string]any {
	styles, err := a.store.ListStyles(ctx, persona.ID)
	if err != nil {
		return nil
	}
	for _, style := range styles {
		if style.IsDefault {
			return style.Descriptor
		}
	}
	if len(styles) > 0 {
		return styles[0].Descriptor
	}
	return nil
}

// gather loads up to max cluster passages and scores each by similarity to
// the cluster centroid (relevance = 1 - distance).
func (a *Assembler) gather(ctx context.Context, cluster *store.Cluster, max int) ([]Passage, error) {
	ids := cluster.Passages
	if len(ids) > max {
		ids = ids[:max]
	}
	nodes, err := a.store.GetNodes(ctx, ids)
	if err != nil {
		return nil, err
	}

	centroid := computeCentroid(nodes)
	passages := make([]Passage, 0, len(nodes))
	for _, node := range nodes {
		relevance := 1.0
		if centroid != nil && node.Embedded() {
			relevance = 1 - cosineDistance(node.Embedding, centroid)
		}
		passages = append(passages, Passage{Node: node, Relevance: relevance})
	}
	return passages, nil
}

func computeCentroid(nodes []*store.Node) []float32 {
	var centroid []float32
	count := 0
	for _, node := range nodes {
		if !node.Embedded() {
			continue
		}
		if centroid == nil {
			centroid = make([]float32, len(node.Embedding))
		}
		if len(node.Embedding) != len(centroid) {
			continue
		}
		for i, v := range node.Embedding {
			centroid[i] += v
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range centroid {
		centroid[i] /= float32(count)
	}
	return centroid
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// arrangeArc orders passages according to the arc type.
func arrangeArc(passages []Passage, arc ArcType) []Passage {
	arranged := append([]Passage(nil), passages...)
	switch arc {
	case ArcChronological:
		// Missing dates sort first.
		sort.SliceStable(arranged, func(i, j int) bool {
			return arranged[i].Node.SourceCreatedAt.Before(arranged[j].Node.SourceCreatedAt)
		})
	case ArcThematic:
		sort.SliceStable(arranged, func(i, j int) bool {
			if arranged[i].Node.SourceType != arranged[j].Node.SourceType {
				return arranged[i].Node.SourceType < arranged[j].Node.SourceType
			}
			return arranged[i].Relevance > arranged[j].Relevance
		})
	case ArcDramatic:
		// Tension builds: least relevant first.
		sort.SliceStable(arranged, func(i, j int) bool {
			return arranged[i].Relevance < arranged[j].Relevance
		})
	case ArcExploratory:
		rand.Shuffle(len(arranged), func(i, j int) {
			arranged[i], arranged[j] = arranged[j], arranged[i]
		})
	}
	return arranged
}

// chapterSeparator joins passages inside one chapter.
const chapterSeparator = "\n\n---\n\n"

// splitChapters cuts the arranged passages into 3-5 chapters.
func splitChapters(passages []Passage) []store.Chapter {
	n := len(passages)
	chapterCount := (n + 9) / 10
	if chapterCount < 3 {
		chapterCount = 3
	}
	if chapterCount > 5 {
		chapterCount = 5
	}
	if chapterCount > n {
		chapterCount = n
	}

	var chapters []store.Chapter
	for c := 0; c < chapterCount; c++ {
		start := c * n / chapterCount
		end := (c + 1) * n / chapterCount
		group := passages[start:end]

		var parts []string
		var ids []string
		for _, passage := range group {
			parts = append(parts, passage.Node.Text)
			ids = append(ids, passage.Node.ID)
		}
		content := strings.Join(parts, chapterSeparator)

		chapters = append(chapters, store.Chapter{
			ID:       uuid.NewString(),
			Title:    chapterTitle(content),
			Content:  content,
			Passages: ids,
			Order:    len(chapters),
		})
	}
	return chapters
}

// chapterTitle derives a title from the first five words.
func chapterTitle(content string) string {
	words := strings.Fields(content)
	if len(words) > 5 {
		words = words[:5]
	}
	title := strings.Join(words, " ")
	if title == "" {
		title = "Untitled"
	}
	return title
}

// index chunks each chapter back into the archive as hierarchy-level-0
// nodes with embeddings, plus an apex node for the arc introduction.
func (a *Assembler) index(ctx context.Context, book *store.Book) error {
	model := a.embedder.Model()
	for _, chapter := range book.Chapters {
		embedding, err := a.embedder.EmbedText(ctx, chapter.Content)
		if err != nil {
			return auierr.Wrap(auierr.AdapterFailure, err, "failed to embed chapter %q", chapter.Title)
		}
		node := &store.Node{
			ID:             "book:" + book.ID + ":" + chapter.ID,
			Text:           chapter.Content,
			SourceType:     "book_chapter",
			WordCount:      len(strings.Fields(chapter.Content)),
			HierarchyLevel: 0,
			ParentID:       book.ID,
			Embedding:      embedding,
			EmbeddingModel: model,
			CreatedAt:      time.Now(),
		}
		if err := a.store.AddNode(ctx, node); err != nil {
			return err
		}
	}

	if book.Introduction != "" {
		embedding, err := a.embedder.EmbedText(ctx, book.Introduction)
		if err != nil {
			return auierr.Wrap(auierr.AdapterFailure, err, "failed to embed book introduction")
		}
		apex := &store.Node{
			ID:             "book:" + book.ID + ":apex",
			Text:           book.Introduction,
			SourceType:     "book_apex",
			WordCount:      len(strings.Fields(book.Introduction)),
			HierarchyLevel: 2,
			ParentID:       book.ID,
			Embedding:      embedding,
			EmbeddingModel: model,
			CreatedAt:      time.Now(),
		}
		if err := a.store.AddNode(ctx, apex); err != nil {
			return err
		}
	}
	return nil
}
