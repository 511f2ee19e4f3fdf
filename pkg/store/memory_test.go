package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanizer-ai/aui/pkg/auierr"
)

func TestMemory_NodesAndEmbeddings(t *testing.T) {
	m, err := NewMemory()
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, m.AddNode(ctx, &Node{
			ID:        fmt.Sprintf("n%d", i),
			Text:      "text",
			WordCount: 1,
		}))
	}

	count, err := m.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	pending, err := m.GetNodesNeedingEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 10)

	require.NoError(t, m.StoreEmbedding(ctx, "n0", []float32{1, 0}, "m1"))
	require.NoError(t, m.StoreEmbedding(ctx, "n1", []float32{0.9, 0.1}, "m1"))
	require.NoError(t, m.StoreEmbedding(ctx, "n2", []float32{0, 1}, "m1"))

	pending, err = m.GetNodesNeedingEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 7)

	node, err := m.GetNode(ctx, "n0")
	require.NoError(t, err)
	assert.True(t, node.Embedded())
	assert.Equal(t, "m1", node.EmbeddingModel)

	err = m.StoreEmbedding(ctx, "ghost", []float32{1}, "m1")
	assert.True(t, auierr.IsKind(err, auierr.NotFound))

	ids, err := m.GetRandomEmbeddedNodeIDs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	matches, err := m.SearchByEmbedding(ctx, []float32{1, 0}, SearchOptions{Limit: 2, Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "n0", matches[0].NodeID)
	assert.Equal(t, "n1", matches[1].NodeID)
}

func TestMemory_DefaultPersonaSwap(t *testing.T) {
	m, err := NewMemory()
	require.NoError(t, err)
	ctx := context.Background()

	p1 := &Persona{ID: "p1", UserID: "u1", IsDefault: true, CreatedAt: time.Now()}
	require.NoError(t, m.SavePersona(ctx, p1))
	p2 := &Persona{ID: "p2", UserID: "u1", IsDefault: true, CreatedAt: time.Now()}
	require.NoError(t, m.SavePersona(ctx, p2))

	got, err := m.GetDefaultPersona(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "p2", got.ID)
	assert.False(t, p1.IsDefault)
}

func TestMemory_CostEntriesAndPrune(t *testing.T) {
	m, err := NewMemory()
	require.NoError(t, err)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendCostEntry(ctx, &CostEntry{
			ID:        fmt.Sprintf("e%d", i),
			Timestamp: base.AddDate(0, 0, i),
			UserID:    "u1",
		}))
	}

	since, err := m.CostEntriesSince(ctx, base.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Len(t, since, 2)

	ranged, err := m.CostEntriesRange(ctx, base.AddDate(0, 0, 1), base.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Len(t, ranged, 3)

	pruned, err := m.PruneCostEntries(ctx, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	remaining, err := m.CostEntriesSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestMemory_SessionSnapshots(t *testing.T) {
	m, err := NewMemory()
	require.NoError(t, err)
	ctx := context.Background()

	snapshot := &SessionSnapshot{ID: "s1", UserID: "u1", Payload: []byte(`{"id":"s1"}`), UpdatedAt: time.Now()}
	require.NoError(t, m.SaveSessionSnapshot(ctx, snapshot))

	got, err := m.GetSessionSnapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, snapshot.Payload, got.Payload)

	require.NoError(t, m.DeleteSessionSnapshot(ctx, "s1"))
	_, err = m.GetSessionSnapshot(ctx, "s1")
	assert.True(t, auierr.IsKind(err, auierr.NotFound))
}

func TestMemory_BooksClustersArtifacts(t *testing.T) {
	m, err := NewMemory()
	require.NoError(t, err)
	ctx := context.Background()

	book := &Book{ID: "b1", UserID: "u1", Title: "T", CreatedAt: time.Now()}
	require.NoError(t, m.SaveBook(ctx, book))
	books, err := m.ListBooks(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, books, 1)
	empty, err := m.ListBooks(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, empty)

	cluster := &Cluster{ID: "c1", Label: "L", CreatedAt: time.Now()}
	require.NoError(t, m.SaveCluster(ctx, cluster))
	got, err := m.GetCluster(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "L", got.Label)

	artifact := &Artifact{ID: "a1", BookID: "b1", Format: "markdown", Content: "# T", CreatedAt: time.Now()}
	require.NoError(t, m.SaveArtifact(ctx, artifact))
	artifacts, err := m.ListArtifacts(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, artifacts, 1)
}
