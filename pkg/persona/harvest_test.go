package persona

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/store"
)

type stubAnalyzer struct {
	sampleCount int
}

func (a *stubAnalyzer) Analyze(ctx context.Context, samples []string) (map[string]any, error) {
	a.sampleCount = len(samples)
	return map[string]any{"cadence": "long sentences", "samples": len(samples)}, nil
}

func stubSearch(hits []ArchiveHit) ArchiveSearch {
	return func(ctx context.Context, query string, limit int) ([]ArchiveHit, error) {
		return hits, nil
	}
}

func newTestManager(t *testing.T, hits []ArchiveHit) (*Manager, *stubAnalyzer, store.Store) {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	analyzer := &stubAnalyzer{}
	return NewManager(st, analyzer, stubSearch(hits)), analyzer, st
}

func TestHarvestLifecycle(t *testing.T) {
	m, analyzer, st := newTestManager(t, nil)
	ctx := context.Background()

	h := m.Start("u1", "my voice")
	assert.Equal(t, PhaseCollecting, h.Phase)

	_, err := m.AddSample(h.ID, "first sample text", "manual")
	require.NoError(t, err)
	_, err = m.AddSample(h.ID, "second sample text", "manual")
	require.NoError(t, err)

	h, err = m.ExtractTraits(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseAnalyzing, h.Phase)
	assert.Equal(t, 2, analyzer.sampleCount)
	assert.Equal(t, "long sentences", h.Traits["cadence"])

	persona, err := m.Finalize(ctx, h.ID, FinalizeOptions{
		ToneMarkers:  []string{"wry"},
		Styles:       []map[string]any{{"name": "essay"}, {"name": "letter"}},
		SetAsDefault: true,
	})
	require.NoError(t, err)
	assert.Equal(t, PhaseComplete, h.Phase)
	assert.True(t, persona.IsDefault)
	assert.Len(t, persona.ExampleTexts, 2)

	// Persisted persona and styles.
	stored, err := st.GetDefaultPersona(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, persona.ID, stored.ID)

	styles, err := st.ListStyles(ctx, persona.ID)
	require.NoError(t, err)
	require.Len(t, styles, 2)
	var defaults int
	for _, style := range styles {
		if style.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)

	// The completed harvest stays inspectable for the retention window.
	_, err = m.Get(h.ID)
	assert.NoError(t, err)
}

func TestAddSample_DeduplicatesByContent(t *testing.T) {
	m, _, _ := newTestManager(t, nil)

	h := m.Start("u1", "voice")
	_, err := m.AddSample(h.ID, "The same text.", "manual")
	require.NoError(t, err)

	// Cosmetically different duplicates hash identically and are dropped.
	h, err = m.AddSample(h.ID, "  the SAME text.  ", "manual")
	require.NoError(t, err)
	assert.Len(t, h.Samples, 1)

	h, err = m.AddSample(h.ID, "Different text entirely.", "manual")
	require.NoError(t, err)
	assert.Len(t, h.Samples, 2)
}

func TestExtractTraits_NoSamples(t *testing.T) {
	m, _, _ := newTestManager(t, nil)

	h := m.Start("u1", "empty")
	_, err := m.ExtractTraits(context.Background(), h.ID)
	assert.True(t, auierr.IsKind(err, auierr.InvalidArgs))

	// The harvest stays collectable after the failed extraction.
	got, getErr := m.Get(h.ID)
	require.NoError(t, getErr)
	assert.Equal(t, PhaseCollecting, got.Phase)
}

func TestAddSample_WrongPhase(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	ctx := context.Background()

	h := m.Start("u1", "voice")
	_, err := m.AddSample(h.ID, "only sample", "manual")
	require.NoError(t, err)
	_, err = m.ExtractTraits(ctx, h.ID)
	require.NoError(t, err)

	_, err = m.AddSample(h.ID, "too late", "manual")
	assert.True(t, auierr.IsKind(err, auierr.WrongPhase))

	_, err = m.HarvestFromArchive(ctx, h.ID, "query", 10, 0)
	assert.True(t, auierr.IsKind(err, auierr.WrongPhase))
}

func TestHarvestFromArchive_FiltersAndDeduplicates(t *testing.T) {
	hits := []ArchiveHit{
		{NodeID: "n1", Text: "user wrote this", AuthorRole: "user", Relevance: 0.9},
		{NodeID: "n2", Text: "assistant wrote this", AuthorRole: "assistant", Relevance: 0.95},
		{NodeID: "n3", Text: "role absent", Relevance: 0.8},
		{NodeID: "n1", Text: "duplicate node", AuthorRole: "user", Relevance: 0.85},
		{NodeID: "n4", Text: "too weak", AuthorRole: "user", Relevance: 0.2},
	}
	m, _, _ := newTestManager(t, hits)
	ctx := context.Background()

	h := m.Start("u1", "voice")
	h, err := m.HarvestFromArchive(ctx, h.ID, "query", 10, 0.5)
	require.NoError(t, err)

	// n1 once (user), n3 (absent role); n2 wrong role, n4 below floor.
	require.Len(t, h.Samples, 2)
	assert.Equal(t, "n1", h.Samples[0].ArchiveNodeID)
	assert.Equal(t, "n3", h.Samples[1].ArchiveNodeID)

	// Repeating the harvest adds nothing new.
	h, err = m.HarvestFromArchive(ctx, h.ID, "query", 10, 0.5)
	require.NoError(t, err)
	assert.Len(t, h.Samples, 2)
}

func TestFinalize_MarkedStyleBecomesDefault(t *testing.T) {
	m, _, st := newTestManager(t, nil)
	ctx := context.Background()

	h := m.Start("u1", "voice")
	_, err := m.AddSample(h.ID, "a sample", "manual")
	require.NoError(t, err)
	_, err = m.ExtractTraits(ctx, h.ID)
	require.NoError(t, err)

	persona, err := m.Finalize(ctx, h.ID, FinalizeOptions{
		Styles: []map[string]any{
			{"name": "essay"},
			{"name": "letter", "default": true},
			{"name": "aphorism"},
		},
	})
	require.NoError(t, err)

	styles, err := st.ListStyles(ctx, persona.ID)
	require.NoError(t, err)
	require.Len(t, styles, 3)
	for _, style := range styles {
		assert.Equal(t, style.Name == "letter", style.IsDefault, "style %s", style.Name)
	}
}

func TestFinalize_WrongPhase(t *testing.T) {
	m, _, _ := newTestManager(t, nil)

	h := m.Start("u1", "voice")
	_, err := m.Finalize(context.Background(), h.ID, FinalizeOptions{})
	assert.True(t, auierr.IsKind(err, auierr.WrongPhase))
}
