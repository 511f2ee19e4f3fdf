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

package aui

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/humanizer-ai/aui/pkg/archive"
	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/book"
	"github.com/humanizer-ai/aui/pkg/persona"
	"github.com/humanizer-ai/aui/pkg/store"
)

// ArchiveStats summarizes the corpus.
type ArchiveStats struct {
	TotalNodes    int `json:"total_nodes"`
	EmbeddedNodes int `json:"embedded_nodes"`
	PendingNodes  int `json:"pending_nodes"`
}

// GetArchiveStats counts nodes and embeddings.
func (s *Service) GetArchiveStats(ctx context.Context) (*ArchiveStats, error) {
	total, err := s.store.CountNodes(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.GetNodesNeedingEmbeddings(ctx, 0)
	if err != nil {
		return nil, err
	}
	return &ArchiveStats{
		TotalNodes:    total,
		EmbeddedNodes: total - len(pending),
		PendingNodes:  len(pending),
	}, nil
}

func (s *Service) requireDriver() (*archive.Driver, error) {
	if s.driver == nil {
		return nil, auierr.New(auierr.AdapterFailure, "no embedding adapter is configured")
	}
	return s.driver, nil
}

// EmbedAll embeds every node still missing a vector.
func (s *Service) EmbedAll(ctx context.Context, opts archive.EmbedOptions) (*archive.EmbedResult, error) {
	driver, err := s.requireDriver()
	if err != nil {
		return nil, err
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = s.cfg.Embedding.BatchSize
	}
	if opts.MinWordCount == 0 {
		opts.MinWordCount = s.cfg.Embedding.MinWordCount
	}
	return driver.EmbedAll(ctx, opts)
}

// EmbedBatch embeds an explicit list of node ids.
func (s *Service) EmbedBatch(ctx context.Context, nodeIDs []string, opts archive.EmbedOptions) (*archive.EmbedResult, error) {
	driver, err := s.requireDriver()
	if err != nil {
		return nil, err
	}
	return driver.EmbedBatch(ctx, nodeIDs, opts)
}

// DiscoverClusters runs cluster discovery and persists the clusters.
func (s *Service) DiscoverClusters(ctx context.Context, opts archive.DiscoverOptions) (*archive.DiscoverResult, error) {
	if opts.SampleSize == 0 {
		opts.SampleSize = s.cfg.Cluster.SampleSize
	}
	if opts.MaxClusters == 0 {
		opts.MaxClusters = s.cfg.Cluster.MaxClusters
	}
	if opts.MinClusterSize == 0 {
		opts.MinClusterSize = s.cfg.Cluster.MinClusterSize
	}
	if opts.MinSimilarity == 0 {
		opts.MinSimilarity = s.cfg.Cluster.MinSimilarity
	}

	result, err := s.discoverer.Discover(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, cluster := range result.Clusters {
		if err := s.store.SaveCluster(ctx, cluster); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ListClusters returns the persisted clusters.
func (s *Service) ListClusters(ctx context.Context) ([]*store.Cluster, error) {
	return s.store.ListClusters(ctx)
}

// GetCluster returns one cluster.
func (s *Service) GetCluster(ctx context.Context, id string) (*store.Cluster, error) {
	return s.store.GetCluster(ctx, id)
}

// SaveCluster persists an externally assembled cluster.
func (s *Service) SaveCluster(ctx context.Context, cluster *store.Cluster) error {
	if cluster.ID == "" {
		cluster.ID = uuid.NewString()
	}
	if cluster.CreatedAt.IsZero() {
		cluster.CreatedAt = time.Now()
	}
	return s.store.SaveCluster(ctx, cluster)
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

// CreateBookFromCluster assembles a book from a cluster.
func (s *Service) CreateBookFromCluster(ctx context.Context, clusterID string, opts book.Options) (*store.Book, error) {
	if opts.MaxPassages == 0 {
		opts.MaxPassages = s.cfg.MaxPassagesDefault
	}
	if opts.RewritePasses == 0 {
		opts.RewritePasses = s.cfg.RewritePasses
	}
	return s.assembler.CreateFromCluster(ctx, clusterID, opts)
}

// CreateBookWithPersona assembles a book with an explicit persona.
func (s *Service) CreateBookWithPersona(ctx context.Context, clusterID, personaID string, opts book.Options) (*store.Book, error) {
	opts.PersonaID = personaID
	return s.CreateBookFromCluster(ctx, clusterID, opts)
}

// ListBooks returns books, optionally filtered by user.
func (s *Service) ListBooks(ctx context.Context, userID string) ([]*store.Book, error) {
	return s.store.ListBooks(ctx, userID)
}

// GetBook returns one book.
func (s *Service) GetBook(ctx context.Context, id string) (*store.Book, error) {
	return s.store.GetBook(ctx, id)
}

// ExportBook renders a book and persists the rendering as an artifact.
func (s *Service) ExportBook(ctx context.Context, bookID string, format book.Format) (*store.Artifact, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	content, err := book.Export(b, format)
	if err != nil {
		return nil, err
	}

	artifact := &store.Artifact{
		ID:        uuid.NewString(),
		BookID:    bookID,
		Format:    string(format),
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveArtifact(ctx, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

// DownloadArtifact returns a rendered artifact.
func (s *Service) DownloadArtifact(ctx context.Context, id string) (*store.Artifact, error) {
	return s.store.GetArtifact(ctx, id)
}

// ListArtifacts returns the artifacts of a book, or all when bookID is
// empty.
func (s *Service) ListArtifacts(ctx context.Context, bookID string) ([]*store.Artifact, error) {
	return s.store.ListArtifacts(ctx, bookID)
}

// ---------------------------------------------------------------------------
// Persona harvest
// ---------------------------------------------------------------------------

// personaArchiveSearch adapts the store's embedding search for harvests.
func (s *Service) personaArchiveSearch() persona.ArchiveSearch {
	return func(ctx context.Context, query string, limit int) ([]persona.ArchiveHit, error) {
		if s.adapters.Embedder == nil {
			return nil, auierr.New(auierr.AdapterFailure, "no embedding adapter is configured")
		}
		embedding, err := s.adapters.Embedder.EmbedText(ctx, query)
		if err != nil {
			return nil, err
		}
		matches, err := s.store.SearchByEmbedding(ctx, embedding, store.SearchOptions{Limit: limit})
		if err != nil {
			return nil, err
		}

		hits := make([]persona.ArchiveHit, 0, len(matches))
		for _, match := range matches {
			node, err := s.store.GetNode(ctx, match.NodeID)
			if err != nil {
				continue
			}
			hits = append(hits, persona.ArchiveHit{
				NodeID:     node.ID,
				Text:       node.Text,
				AuthorRole: node.AuthorRole,
				Relevance:  float64(match.Similarity),
			})
		}
		return hits, nil
	}
}

// StartPersonaHarvest begins a harvest for the session's user.
func (s *Service) StartPersonaHarvest(sessionID, name string) (*persona.Harvest, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return s.personas.Start(sess.UserID, name), nil
}

// AddPersonaSample appends a manual sample to a harvest.
func (s *Service) AddPersonaSample(sessionID, harvestID, text, source string) (*persona.Harvest, error) {
	if _, err := s.resolve(sessionID); err != nil {
		return nil, err
	}
	return s.personas.AddSample(harvestID, text, source)
}

// HarvestFromArchive pulls samples from the archive into a harvest.
func (s *Service) HarvestFromArchive(ctx context.Context, sessionID, harvestID, query string, limit int, minRelevance float64) (*persona.Harvest, error) {
	if _, err := s.resolve(sessionID); err != nil {
		return nil, err
	}
	return s.personas.HarvestFromArchive(ctx, harvestID, query, limit, minRelevance)
}

// ExtractPersonaTraits runs the voice analyzer over a harvest's samples.
func (s *Service) ExtractPersonaTraits(ctx context.Context, sessionID, harvestID string) (*persona.Harvest, error) {
	if _, err := s.resolve(sessionID); err != nil {
		return nil, err
	}
	return s.personas.ExtractTraits(ctx, harvestID)
}

// FinalizePersona persists the persona and completes the harvest.
func (s *Service) FinalizePersona(ctx context.Context, sessionID, harvestID string, opts persona.FinalizeOptions) (*store.Persona, error) {
	if _, err := s.resolve(sessionID); err != nil {
		return nil, err
	}
	return s.personas.Finalize(ctx, harvestID, opts)
}

// GeneratePersonaSample asks the LLM adapter for a sample paragraph in the
// persona's voice. Cost-recorded like any LLM call.
func (s *Service) GeneratePersonaSample(ctx context.Context, sessionID, personaID, topic string) (string, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return "", err
	}
	if s.adapters.LLM == nil {
		return "", auierr.New(auierr.AdapterFailure, "no LLM adapter is configured")
	}

	p, err := s.store.GetPersona(ctx, personaID)
	if err != nil {
		return "", err
	}

	model := s.adapters.LLM.Model()
	if err := s.gateLLM(sess.UserID, model); err != nil {
		return "", err
	}

	resp, err := s.adapters.LLM.Generate(ctx, llmPersonaRequest(p, topic))
	if err != nil {
		s.admin.RecordLLMCost(adminCostRecord(sess.UserID, sess.ID, model, "persona_sample",
			0, 0, 0, 0, false, err.Error()))
		return "", auierr.Wrap(auierr.AdapterFailure, err, "persona sample generation failed")
	}

	s.admin.RecordLLMCost(adminCostRecord(sess.UserID, sess.ID, model, "persona_sample",
		resp.InputTokens, resp.OutputTokens, resp.CostCents, resp.LatencyMs, true, ""))
	return resp.Text, nil
}
