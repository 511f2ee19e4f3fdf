package archive

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanizer-ai/aui/pkg/embedder"
	"github.com/humanizer-ai/aui/pkg/store"
)

// stubEmbedder produces deterministic unit vectors.
type stubEmbedder struct {
	calls    int
	failNext bool
}

func (e *stubEmbedder) embed(text string) []float32 {
	// Spread vectors on the unit circle by text length so cosine
	// similarity is deterministic but non-trivial.
	switch len(text) % 3 {
	case 0:
		return []float32{1, 0, 0}
	case 1:
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func (e *stubEmbedder) EmbedNodes(ctx context.Context, nodes []embedder.NodeText) ([]embedder.NodeEmbedding, error) {
	e.calls++
	if e.failNext {
		e.failNext = false
		return nil, errors.New("embedder unavailable")
	}
	out := make([]embedder.NodeEmbedding, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, embedder.NodeEmbedding{NodeID: node.ID, Embedding: e.embed(node.Text)})
	}
	return out, nil
}

func (e *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *stubEmbedder) Model() string { return "stub-embed" }
func (e *stubEmbedder) Close() error  { return nil }

func seedNodes(t *testing.T, st store.Store, total, embedded int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < total; i++ {
		node := &store.Node{
			ID:         fmt.Sprintf("node-%03d", i),
			Text:       fmt.Sprintf("passage number %d with enough words to pass the floor easily", i),
			SourceType: "conversation",
			WordCount:  11,
			CreatedAt:  time.Now(),
		}
		if i < embedded {
			node.Embedding = []float32{1, 0, 0}
			node.EmbeddingModel = "stub-embed"
		}
		require.NoError(t, st.AddNode(ctx, node))
	}
}

func TestEmbedAll_Idempotent(t *testing.T) {
	st, err := store.NewMemory()
	require.NoError(t, err)
	seedNodes(t, st, 100, 40)

	driver := NewDriver(st, &stubEmbedder{})

	result, err := driver.EmbedAll(context.Background(), EmbedOptions{BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 60, result.Embedded)
	assert.Equal(t, 40, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.True(t, result.Success)

	// A second run finds nothing to do.
	again, err := driver.EmbedAll(context.Background(), EmbedOptions{BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Embedded)
	assert.Equal(t, 100, again.Skipped)
	assert.True(t, again.Success)
}

func TestEmbedAll_FiltersCountAsSkipped(t *testing.T) {
	st, err := store.NewMemory()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.AddNode(ctx, &store.Node{ID: "short", Text: "too short", WordCount: 2}))
	require.NoError(t, st.AddNode(ctx, &store.Node{ID: "long", Text: "this node has plenty of words to clear the minimum floor", WordCount: 11}))

	driver := NewDriver(st, &stubEmbedder{})
	result, err := driver.EmbedAll(ctx, EmbedOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Embedded)
	assert.Equal(t, 1, result.Skipped)
}

func TestEmbedAll_BatchFailureCountsWholeBatch(t *testing.T) {
	st, err := store.NewMemory()
	require.NoError(t, err)
	seedNodes(t, st, 20, 0)

	emb := &stubEmbedder{failNext: true}
	driver := NewDriver(st, emb)

	result, err := driver.EmbedAll(context.Background(), EmbedOptions{BatchSize: 10})
	require.NoError(t, err)

	assert.Equal(t, 10, result.Failed)
	assert.Equal(t, 10, result.Embedded)
	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 1)
}

func TestEmbedAll_ProgressCallback(t *testing.T) {
	st, err := store.NewMemory()
	require.NoError(t, err)
	seedNodes(t, st, 25, 0)

	var phases []string
	var lastProcessed int
	driver := NewDriver(st, &stubEmbedder{})
	_, err = driver.EmbedAll(context.Background(), EmbedOptions{
		BatchSize: 10,
		Progress: func(p Progress) {
			phases = append(phases, p.Phase)
			lastProcessed = p.Processed
			assert.Equal(t, 3, p.TotalBatches)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"scanning", "embedding", "embedding", "embedding", "complete"}, phases)
	assert.Equal(t, 25, lastProcessed)
}

func TestDiscover_EmptyArchive(t *testing.T) {
	st, err := store.NewMemory()
	require.NoError(t, err)

	discoverer := NewDiscoverer(st)
	result, err := discoverer.Discover(context.Background(), DiscoverOptions{})
	require.NoError(t, err)

	assert.Empty(t, result.Clusters)
	assert.Equal(t, 0, result.TotalPassages)
	assert.Equal(t, 0, result.NoisePassages)
}

func TestDiscover_GrowsClusters(t *testing.T) {
	st, err := store.NewMemory()
	require.NoError(t, err)
	ctx := context.Background()

	// Ten near-identical vectors form one tight cluster; three outliers
	// stay noise.
	for i := 0; i < 10; i++ {
		require.NoError(t, st.AddNode(ctx, &store.Node{
			ID:              fmt.Sprintf("alike-%d", i),
			Text:            "walking through the quiet forest thinking about language and memory together",
			SourceType:      "journal",
			WordCount:       11,
			SourceCreatedAt: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Embedding:       []float32{1, 0.01 * float32(i), 0},
		}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, st.AddNode(ctx, &store.Node{
			ID:         fmt.Sprintf("outlier-%d", i),
			Text:       "entirely unrelated subject matter about databases and indexes",
			SourceType: "notes",
			WordCount:  9,
			Embedding:  []float32{0, 0, 1},
		}))
	}

	discoverer := NewDiscoverer(st)
	result, err := discoverer.Discover(ctx, DiscoverOptions{
		MinClusterSize: 5,
		MinSimilarity:  0.95,
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Clusters)
	cluster := result.Clusters[0]
	assert.GreaterOrEqual(t, cluster.TotalPassages, 5)
	assert.Greater(t, cluster.Coherence, 0.9)
	assert.Equal(t, 11.0, cluster.AvgWordCount)
	assert.NotEmpty(t, cluster.Keywords)
	assert.Contains(t, cluster.SourceDistribution, "journal")
	require.NotNil(t, cluster.DateRange)
	assert.True(t, cluster.DateRange.From.Before(cluster.DateRange.To))
	assert.Equal(t, result.TotalPassages-result.AssignedPassages, result.NoisePassages)
}

func TestDiscover_ExcludePatterns(t *testing.T) {
	st, err := store.NewMemory()
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, st.AddNode(ctx, &store.Node{
			ID:        fmt.Sprintf("n-%d", i),
			Text:      "PROMO: buy now this amazing offer with many excited words",
			WordCount: 10,
			Embedding: []float32{1, 0, 0},
		}))
	}

	discoverer := NewDiscoverer(st)
	result, err := discoverer.Discover(ctx, DiscoverOptions{
		MinClusterSize:  2,
		ExcludePatterns: []string{`^PROMO:`},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalPassages)
	assert.Empty(t, result.Clusters)
}
