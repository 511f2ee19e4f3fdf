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

// Package embedder defines the embedding adapter the archive driver and
// book assembler consume, plus a local ollama provider.
package embedder

import "context"

// NodeText pairs a node id with the text to embed.
type NodeText struct {
	ID   string
	Text string
}

// NodeEmbedding is one embedding result.
type NodeEmbedding struct {
	NodeID    string
	Embedding []float32
}

// Provider generates embeddings.
type Provider interface {
	// EmbedNodes embeds a batch of node texts.
	EmbedNodes(ctx context.Context, nodes []NodeText) ([]NodeEmbedding, error)

	// EmbedText embeds a single text.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// Model returns the embedding model id.
	Model() string

	// Close releases provider resources.
	Close() error
}
