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

// Package llms defines the LLM adapter the core consumes plus HTTP
// providers for local (ollama) and OpenAI-compatible endpoints.
//
// The core never talks to a model vendor directly; every reasoning,
// rewrite and trait-extraction path goes through Provider so tests can
// substitute stubs and the admin plane can meter usage uniformly.
package llms

import (
	"context"
	"time"
)

// Request is one completion call.
type Request struct {
	SystemPrompt string  `json:"system_prompt,omitempty"`
	UserPrompt   string  `json:"user_prompt"`
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

// Response is the adapter's answer.
type Response struct {
	Text         string  `json:"text"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	LatencyMs    int64   `json:"latency_ms"`
	CostCents    float64 `json:"cost_cents,omitempty"`
}

// Provider is the single-call LLM adapter.
type Provider interface {
	// Generate performs one completion.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Model returns the default model id of this provider.
	Model() string

	// Close releases provider resources.
	Close() error
}

// timed wraps a call and stamps its latency.
func timed(fn func() error) (int64, error) {
	start := time.Now()
	err := fn()
	return time.Since(start).Milliseconds(), err
}
