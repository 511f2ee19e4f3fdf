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

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/humanizer-ai/aui/pkg/llms"
	"github.com/humanizer-ai/aui/pkg/tool"
	"github.com/humanizer-ai/aui/pkg/utils"
)

const reasonerSystemPrompt = `You are the planning engine of an agent. Decide the single next action.
Respond with ONLY a JSON object of this shape:
{"next_action":"tool|ask_user|adjust_plan|complete","reasoning":"...","tool_call":{"tool":"name","args":{}},"answer":"...","question":"...","confidence":0.0}
Use "tool" to invoke one of the available tools, "ask_user" when you need
information only the user has, "adjust_plan" to revise your approach, and
"complete" with a final answer when the request is satisfied.`

// LLMReasoner implements Reasoner over the LLM adapter. The task trace and
// the available tools are rendered into the prompt; the model answers with a
// single JSON decision.
type LLMReasoner struct {
	provider llms.Provider
	model    string
	counter  *utils.TokenCounter
}

// NewLLMReasoner creates a reasoner. model may be empty to use the
// provider's default.
func NewLLMReasoner(provider llms.Provider, model string) *LLMReasoner {
	return &LLMReasoner{provider: provider, model: model}
}

// Model returns the model the reasoner calls.
func (r *LLMReasoner) Model() string {
	if r.model != "" {
		return r.model
	}
	return r.provider.Model()
}

func (r *LLMReasoner) Reason(ctx context.Context, task *Task, tools []tool.Info) (*Reasoning, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Request: %s\n\n", task.Request)

	if len(tools) > 0 {
		prompt.WriteString("Available tools:\n")
		for _, info := range tools {
			fmt.Fprintf(&prompt, "- %s: %s\n", info.Name, info.Description)
			for _, p := range info.Parameters {
				fmt.Fprintf(&prompt, "    %s (%s%s): %s\n", p.Name, p.Type, requiredMark(p), p.Description)
			}
		}
		prompt.WriteString("\n")
	}

	snapshot := task.Snapshot()
	if len(snapshot.Steps) > 0 {
		prompt.WriteString("Steps so far:\n")
		for _, step := range snapshot.Steps {
			fmt.Fprintf(&prompt, "[%s] %s\n", step.Type, step.Content)
			if step.ToolResult != nil {
				raw, _ := json.Marshal(step.ToolResult)
				fmt.Fprintf(&prompt, "    result: %s\n", raw)
			}
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("Decide the next action.")

	resp, err := r.provider.Generate(ctx, llms.Request{
		SystemPrompt: reasonerSystemPrompt,
		UserPrompt:   prompt.String(),
		Model:        r.model,
	})
	if err != nil {
		return nil, fmt.Errorf("llm adapter failed: %w", err)
	}

	reasoning, err := parseReasoning(resp.Text)
	if err != nil {
		return nil, err
	}
	reasoning.InputTokens = resp.InputTokens
	reasoning.OutputTokens = resp.OutputTokens
	reasoning.CostCents = resp.CostCents

	// Some local adapters report no usage; estimate so metering never
	// sees zero-token reasoning calls.
	if reasoning.InputTokens == 0 && reasoning.OutputTokens == 0 {
		if r.counter == nil {
			r.counter, _ = utils.NewTokenCounter(r.Model())
		}
		if r.counter != nil {
			reasoning.InputTokens = r.counter.Count(reasonerSystemPrompt) + r.counter.Count(prompt.String())
			reasoning.OutputTokens = r.counter.Count(resp.Text)
		} else {
			reasoning.InputTokens = utils.EstimateTokens(prompt.String())
			reasoning.OutputTokens = utils.EstimateTokens(resp.Text)
		}
	}
	return reasoning, nil
}

func requiredMark(p tool.Parameter) string {
	if p.Required {
		return ", required"
	}
	return ""
}

// parseReasoning extracts the decision JSON from the model's reply,
// tolerating prose or fences around it.
func parseReasoning(text string) (*Reasoning, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("reasoner reply contains no JSON object: %q", truncate(text, 120))
	}

	var reasoning Reasoning
	if err := json.Unmarshal([]byte(text[start:end+1]), &reasoning); err != nil {
		return nil, fmt.Errorf("failed to parse reasoner reply: %w", err)
	}
	if reasoning.NextAction == "" {
		return nil, fmt.Errorf("reasoner reply is missing next_action")
	}
	return &reasoning, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Reasoner = (*LLMReasoner)(nil)
