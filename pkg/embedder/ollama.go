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

package embedder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/humanizer-ai/aui/pkg/httpclient"
)

// Global mutex to serialize ollama embedding requests.
// Ollama's llama runner crashes when receiving concurrent embedding requests.
var ollamaEmbedMu sync.Mutex

// OllamaConfig configures the local ollama embedder.
type OllamaConfig struct {
	Host    string        `yaml:"host,omitempty"`
	Model   string        `yaml:"model,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// SetDefaults applies local defaults.
func (c *OllamaConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "nomic-embed-text"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Ollama embeds through a local ollama server.
type Ollama struct {
	cfg    OllamaConfig
	client *httpclient.Client
}

// NewOllama creates an ollama embedder.
func NewOllama(cfg OllamaConfig) *Ollama {
	cfg.SetDefaults()
	return &Ollama{
		cfg:    cfg,
		client: httpclient.New(httpclient.WithTimeout(cfg.Timeout)),
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *Ollama) EmbedText(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	var out ollamaEmbedResponse
	err := e.client.DoJSON(ctx, "POST", e.cfg.Host+"/api/embeddings", nil,
		ollamaEmbedRequest{Model: e.cfg.Model, Prompt: text}, &out)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	return out.Embedding, nil
}

func (e *Ollama) EmbedNodes(ctx context.Context, nodes []NodeText) ([]NodeEmbedding, error) {
	results := make([]NodeEmbedding, 0, len(nodes))
	for _, node := range nodes {
		embedding, err := e.EmbedText(ctx, node.Text)
		if err != nil {
			return results, fmt.Errorf("failed to embed node %s: %w", node.ID, err)
		}
		results = append(results, NodeEmbedding{NodeID: node.ID, Embedding: embedding})
	}
	return results, nil
}

func (e *Ollama) Model() string { return e.cfg.Model }
func (e *Ollama) Close() error  { return nil }

var _ Provider = (*Ollama)(nil)
