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

package llms

import (
	"context"
	"fmt"
	"time"

	"github.com/humanizer-ai/aui/pkg/httpclient"
)

// OllamaConfig configures the local ollama provider.
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
		c.Model = "llama3.2"
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
}

// OllamaProvider calls a local ollama server.
type OllamaProvider struct {
	cfg    OllamaConfig
	client *httpclient.Client
}

// NewOllamaProvider creates an ollama-backed provider.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	cfg.SetDefaults()
	return &OllamaProvider{
		cfg:    cfg,
		client: httpclient.New(httpclient.WithTimeout(cfg.Timeout)),
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (p *OllamaProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	payload := ollamaGenerateRequest{
		Model:   model,
		System:  req.SystemPrompt,
		Prompt:  req.UserPrompt,
		Options: options,
	}

	var out ollamaGenerateResponse
	latency, err := timed(func() error {
		return p.client.DoJSON(ctx, "POST", p.cfg.Host+"/api/generate", nil, payload, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("ollama generate failed: %w", err)
	}

	return &Response{
		Text:         out.Response,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
		LatencyMs:    latency,
	}, nil
}

func (p *OllamaProvider) Model() string { return "ollama/" + p.cfg.Model }
func (p *OllamaProvider) Close() error  { return nil }

var _ Provider = (*OllamaProvider)(nil)
