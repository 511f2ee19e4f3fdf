package book

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanizer-ai/aui/pkg/store"
)

func seedCluster(t *testing.T, st store.Store, n int) *store.Cluster {
	t.Helper()
	ctx := context.Background()

	cluster := &store.Cluster{
		ID:        "cl-1",
		Label:     "forest walks",
		CreatedAt: time.Now(),
	}
	for i := 0; i < n; i++ {
		node := &store.Node{
			ID:              fmt.Sprintf("p-%02d", i),
			Text:            fmt.Sprintf("Passage %d about walking in the forest and listening closely.", i),
			SourceType:      "journal",
			WordCount:       11,
			SourceCreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Embedding:       []float32{1, float32(i) * 0.01, 0},
			CreatedAt:       time.Now(),
		}
		require.NoError(t, st.AddNode(ctx, node))
		cluster.Passages = append(cluster.Passages, node.ID)
	}
	cluster.TotalPassages = n
	require.NoError(t, st.SaveCluster(ctx, cluster))
	return cluster
}

func TestCreateFromCluster_Chronological(t *testing.T) {
	st, err := store.NewMemory()
	require.NoError(t, err)
	cluster := seedCluster(t, st, 20)

	var phases []string
	assembler := NewAssembler(st, nil, nil)
	b, err := assembler.CreateFromCluster(context.Background(), cluster.ID, Options{
		UserID:   "u1",
		Title:    "Forest Book",
		ArcType:  ArcChronological,
		Progress: func(phase string) { phases = append(phases, phase) },
	})
	require.NoError(t, err)

	assert.Equal(t, "Forest Book", b.Title)
	assert.Equal(t, string(ArcChronological), b.ArcType)
	// 20 passages → ceil(20/10)=2, clamped to 3 chapters.
	assert.Len(t, b.Chapters, 3)
	assert.Equal(t, []string{"gathering", "generating_arc", "assembling", "complete"}, phases)

	// Chronological order: the first chapter opens with the earliest
	// passage.
	assert.True(t, strings.HasPrefix(b.Chapters[0].Content, "Passage 0"))

	// Chapter content joins passages with the separator.
	assert.Contains(t, b.Chapters[0].Content, "\n\n---\n\n")

	// Titles come from the first five words.
	assert.Equal(t, "Passage 0 about walking in", b.Chapters[0].Title)

	// The book was persisted.
	stored, err := st.GetBook(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Title, stored.Title)
}

func TestChapterCountClamp(t *testing.T) {
	tests := []struct {
		passages int
		want     int
	}{
		{passages: 5, want: 3},
		{passages: 30, want: 3},
		{passages: 40, want: 4},
		{passages: 50, want: 5},
		{passages: 90, want: 5},
		{passages: 2, want: 2}, // fewer passages than the minimum chapters
	}
	for _, tt := range tests {
		passages := make([]Passage, tt.passages)
		for i := range passages {
			passages[i] = Passage{Node: &store.Node{ID: fmt.Sprintf("n%d", i), Text: "text"}}
		}
		chapters := splitChapters(passages)
		assert.Len(t, chapters, tt.want, "passages=%d", tt.passages)
	}
}

func TestArcOrdering(t *testing.T) {
	passages := []Passage{
		{Node: &store.Node{ID: "b", SourceType: "chat", SourceCreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}, Relevance: 0.5},
		{Node: &store.Node{ID: "a", SourceType: "chat", SourceCreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, Relevance: 0.9},
		{Node: &store.Node{ID: "c", SourceType: "journal"}, Relevance: 0.7}, // missing date
	}

	chrono := arrangeArc(passages, ArcChronological)
	assert.Equal(t, "c", chrono[0].Node.ID) // missing dates sort first
	assert.Equal(t, "a", chrono[1].Node.ID)
	assert.Equal(t, "b", chrono[2].Node.ID)

	dramatic := arrangeArc(passages, ArcDramatic)
	assert.Equal(t, "b", dramatic[0].Node.ID) // lowest relevance first
	assert.Equal(t, "a", dramatic[2].Node.ID)

	thematic := arrangeArc(passages, ArcThematic)
	assert.Equal(t, "chat", thematic[0].Node.SourceType)
	assert.Equal(t, "a", thematic[0].Node.ID) // higher relevance within group
}

type recordingRewriter struct {
	calls int
}

func (r *recordingRewriter) Rewrite(ctx context.Context, content string, persona *store.Persona, style map[string]any) (string, error) {
	r.calls++
	// Converge on the second pass.
	if strings.HasPrefix(content, "rewritten: ") {
		return content, nil
	}
	return "rewritten: " + content, nil
}

func TestPersonaRewrite(t *testing.T) {
	st, err := store.NewMemory()
	require.NoError(t, err)
	ctx := context.Background()
	cluster := seedCluster(t, st, 10)

	p := &store.Persona{ID: "per-1", UserID: "u1", Name: "voice", IsDefault: true, CreatedAt: time.Now()}
	require.NoError(t, st.SavePersona(ctx, p))

	rewriter := &recordingRewriter{}
	assembler := NewAssembler(st, nil, rewriter)

	b, err := assembler.CreateFromCluster(ctx, cluster.ID, Options{UserID: "u1", RewritePasses: 3})
	require.NoError(t, err)

	assert.Equal(t, "per-1", b.PersonaID)
	for _, chapter := range b.Chapters {
		assert.True(t, strings.HasPrefix(chapter.Content, "rewritten: "))
	}
	// Each chapter converges after two passes instead of burning all
	// three.
	assert.Equal(t, len(b.Chapters)*2, rewriter.calls)
}

func TestResolvePersona_ExplicitDisable(t *testing.T) {
	st, err := store.NewMemory()
	require.NoError(t, err)
	ctx := context.Background()
	cluster := seedCluster(t, st, 10)

	p := &store.Persona{ID: "per-1", UserID: "u1", IsDefault: true, CreatedAt: time.Now()}
	require.NoError(t, st.SavePersona(ctx, p))

	disabled := false
	assembler := NewAssembler(st, nil, &recordingRewriter{})
	b, err := assembler.CreateFromCluster(ctx, cluster.ID, Options{UserID: "u1", UseDefaultPersona: &disabled})
	require.NoError(t, err)

	assert.Empty(t, b.PersonaID)
	assert.False(t, strings.HasPrefix(b.Chapters[0].Content, "rewritten: "))
}

func makeBook() *store.Book {
	return &store.Book{
		ID:           "bk-1",
		Title:        "Forest & Memory",
		Description:  "A short study",
		Introduction: "How these passages found each other.",
		ArcType:      "chronological",
		Chapters: []store.Chapter{
			{ID: "c1", Title: "First steps", Content: "Paragraph one.\n\nParagraph <two> & more.", Order: 0},
			{ID: "c2", Title: "Deeper in", Content: "Only one paragraph.", Order: 1},
		},
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestExportMarkdown(t *testing.T) {
	out, err := Export(makeBook(), FormatMarkdown)
	require.NoError(t, err)

	assert.Contains(t, out, "# Forest & Memory")
	assert.Contains(t, out, "*A short study*")
	assert.Contains(t, out, "## Introduction")
	assert.Contains(t, out, "## First steps")
	assert.Contains(t, out, "## Deeper in")
	assert.Contains(t, out, "_Assembled 2025-03-01 · 2 chapters_")
}

func TestExportHTML(t *testing.T) {
	out, err := Export(makeBook(), FormatHTML)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>Forest &amp; Memory</title>")
	// Text content is escaped and paragraphs are wrapped.
	assert.Contains(t, out, "<p>Paragraph &lt;two&gt; &amp; more.</p>")
	assert.Contains(t, out, "<p>Paragraph one.</p>")
	assert.NotContains(t, out, "<two>")
}

func TestExportJSON_RoundTrip(t *testing.T) {
	original := makeBook()
	out, err := Export(original, FormatJSON)
	require.NoError(t, err)

	var decoded store.Book
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))

	reexported, err := Export(&decoded, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, out, reexported)
}

func TestExport_UnknownFormat(t *testing.T) {
	_, err := Export(makeBook(), Format("pdf"))
	assert.Error(t, err)
}

func TestHarvest_FiltersAndSourceCaps(t *testing.T) {
	hits := []Passage{
		{Node: &store.Node{ID: "a1", SourceType: "chat", SourceCreatedAt: date(2024, 1, 5)}, Relevance: 0.9},
		{Node: &store.Node{ID: "a2", SourceType: "chat", SourceCreatedAt: date(2024, 1, 6)}, Relevance: 0.8},
		{Node: &store.Node{ID: "a3", SourceType: "chat", SourceCreatedAt: date(2024, 1, 7)}, Relevance: 0.7},
		{Node: &store.Node{ID: "j1", SourceType: "journal", SourceCreatedAt: date(2024, 1, 8)}, Relevance: 0.6},
		{Node: &store.Node{ID: "x1", SourceType: "chat", SourceCreatedAt: date(2023, 1, 1)}, Relevance: 0.95}, // out of range
		{Node: &store.Node{ID: "e1", SourceType: "chat", SourceCreatedAt: date(2024, 1, 9)}, Relevance: 0.85}, // excluded
		{Node: &store.Node{ID: "w1", SourceType: "chat", SourceCreatedAt: date(2024, 1, 9)}, Relevance: 0.1},  // below floor
	}
	search := func(ctx context.Context, query string, limit int) ([]Passage, error) {
		return hits, nil
	}

	results, err := Harvest(context.Background(), search, HarvestOptions{
		Query:               "forest",
		Limit:               10,
		MinRelevance:        0.5,
		DateRange:           &store.DateRange{From: date(2024, 1, 1), To: date(2024, 12, 31)},
		ExcludeIDs:          []string{"e1"},
		MaxFromSingleSource: 2,
	})
	require.NoError(t, err)

	// chat capped at 2 (a1, a2 by relevance), journal keeps j1.
	require.Len(t, results, 3)
	assert.Equal(t, "a1", results[0].Node.ID)
	assert.Equal(t, "a2", results[1].Node.ID)
	assert.Equal(t, "j1", results[2].Node.ID)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
