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
	"fmt"
	"time"

	"github.com/humanizer-ai/aui/pkg/registry"
)

// ProviderConfig declares one named provider.
type ProviderConfig struct {
	Type    string        `yaml:"type"` // "ollama" or "openai"
	Host    string        `yaml:"host,omitempty"`
	APIKey  string        `yaml:"api_key,omitempty"`
	Model   string        `yaml:"model,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Validate checks the provider declaration.
func (c *ProviderConfig) Validate() error {
	switch c.Type {
	case "ollama", "openai":
		return nil
	case "":
		return fmt.Errorf("llm provider type is required")
	default:
		return fmt.Errorf("unsupported llm provider type: %s", c.Type)
	}
}

// Registry manages named LLM providers.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// CreateFromConfig builds and registers a provider.
func (r *Registry) CreateFromConfig(name string, cfg *ProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid llm config %q: %w", name, err)
	}

	var provider Provider
	switch cfg.Type {
	case "ollama":
		provider = NewOllamaProvider(OllamaConfig{Host: cfg.Host, Model: cfg.Model, Timeout: cfg.Timeout})
	case "openai":
		provider = NewOpenAIProvider(OpenAIConfig{Host: cfg.Host, APIKey: cfg.APIKey, Model: cfg.Model, Timeout: cfg.Timeout})
	}

	if err := r.Register(name, provider); err != nil {
		return nil, err
	}
	return provider, nil
}
