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
	"fmt"
	"log/slog"

	"github.com/humanizer-ai/aui/pkg/tool"
)

// Action is the reasoner's decision for the next move.
type Action string

const (
	ActionTool       Action = "tool"
	ActionAskUser    Action = "ask_user"
	ActionAdjustPlan Action = "adjust_plan"
	ActionComplete   Action = "complete"
)

// Reasoning is one reasoner decision.
type Reasoning struct {
	NextAction Action     `json:"next_action"`
	Reasoning  string     `json:"reasoning"`
	ToolCall   *tool.Call `json:"tool_call,omitempty"`
	Answer     string     `json:"answer,omitempty"`
	Question   string     `json:"question,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`

	// Usage reported by the underlying adapter.
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	CostCents    float64 `json:"cost_cents,omitempty"`
}

// Reasoner decides the next action given the task so far.
type Reasoner interface {
	Reason(ctx context.Context, task *Task, tools []tool.Info) (*Reasoning, error)
}

// UsageFunc observes adapter usage for metering. Called once per reasoning
// call with that call's token counts and cost.
type UsageFunc func(inputTokens, outputTokens int, costCents float64)

// Options bounds one run.
type Options struct {
	MaxSteps int
}

// SetDefaults applies the default step budget.
func (o *Options) SetDefaults() {
	if o.MaxSteps == 0 {
		o.MaxSteps = 10
	}
}

// Loop drives tasks through the ReAct state machine.
type Loop struct {
	reasoner Reasoner
	executor *tool.Executor
	onUsage  UsageFunc
}

// NewLoop creates a loop. onUsage may be nil.
func NewLoop(reasoner Reasoner, executor *tool.Executor, onUsage UsageFunc) *Loop {
	return &Loop{reasoner: reasoner, executor: executor, onUsage: onUsage}
}

// Run executes a task from pending until a terminal status or
// awaiting_input. The returned error reflects controller failures only;
// per-step failures are absorbed into the task trace.
func (l *Loop) Run(ctx context.Context, task *Task, opts Options) error {
	opts.SetDefaults()

	if err := task.transition(StatusPlanning); err != nil {
		return err
	}
	return l.iterate(ctx, task, opts)
}

// Resume continues a task parked in awaiting_input. The user's answer
// becomes the next observe step before reasoning re-enters.
func (l *Loop) Resume(ctx context.Context, task *Task, answer string, opts Options) error {
	opts.SetDefaults()

	task.mu.Lock()
	status := task.Status
	task.mu.Unlock()
	if status != StatusAwaitingInput {
		return fmt.Errorf("task %s is %s, not awaiting input", task.ID, status)
	}

	if err := task.appendStep(&Step{Type: StepObserve, Content: answer}); err != nil {
		return err
	}
	task.mu.Lock()
	task.PendingQuestion = ""
	task.mu.Unlock()
	if err := task.transition(StatusExecuting); err != nil {
		return err
	}
	return l.iterate(ctx, task, opts)
}

// iterate is the shared reasoning loop for Run and Resume.
func (l *Loop) iterate(ctx context.Context, task *Task, opts Options) error {
	for i := 0; i < opts.MaxSteps; i++ {
		if cancelled, err := l.checkCancelled(ctx, task); cancelled {
			return err
		}

		reasoning, err := l.reasoner.Reason(ctx, task, l.executor.Tools())
		if err != nil {
			return l.fail(task, fmt.Sprintf("reasoning failed: %v", err))
		}
		tokens := reasoning.InputTokens + reasoning.OutputTokens
		task.addUsage(tokens, reasoning.CostCents)
		if l.onUsage != nil {
			l.onUsage(reasoning.InputTokens, reasoning.OutputTokens, reasoning.CostCents)
		}

		switch reasoning.NextAction {
		case ActionTool:
			if reasoning.ToolCall == nil {
				return l.fail(task, "reasoner chose a tool action without a tool call")
			}
			if err := task.transition(StatusExecuting); err != nil {
				return err
			}
			if err := task.appendStep(&Step{
				Type:       StepReason,
				Content:    reasoning.Reasoning,
				Tokens:     tokens,
				Confidence: reasoning.Confidence,
			}); err != nil {
				return err
			}
			if err := task.appendStep(&Step{
				Type:     StepAct,
				Content:  "invoking " + reasoning.ToolCall.Tool,
				ToolCall: reasoning.ToolCall,
			}); err != nil {
				return err
			}

			if cancelled, err := l.checkCancelled(ctx, task); cancelled {
				return err
			}

			result, execErr := l.executor.Execute(ctx, *reasoning.ToolCall)
			if execErr != nil {
				result = &tool.Result{Success: false, Error: execErr.Error()}
			}
			task.addUsage(result.TokensUsed, result.CostCents)

			observation := "tool succeeded"
			if !result.Success {
				observation = "tool failed: " + result.Error
			}
			if err := task.appendStep(&Step{
				Type:       StepObserve,
				Content:    observation,
				ToolCall:   reasoning.ToolCall,
				ToolResult: result,
				DurationMs: result.DurationMs,
			}); err != nil {
				return err
			}

		case ActionAskUser:
			task.mu.Lock()
			task.PendingQuestion = reasoning.Question
			task.mu.Unlock()
			if err := task.transition(StatusAwaitingInput); err != nil {
				return err
			}
			slog.Debug("task awaiting input", "task_id", task.ID, "question", reasoning.Question)
			return nil

		case ActionAdjustPlan:
			if err := task.appendStep(&Step{
				Type:       StepAdjust,
				Content:    reasoning.Reasoning,
				Tokens:     tokens,
				Confidence: reasoning.Confidence,
			}); err != nil {
				return err
			}

		case ActionComplete:
			if err := task.appendStep(&Step{
				Type:       StepComplete,
				Content:    reasoning.Answer,
				Tokens:     tokens,
				Confidence: reasoning.Confidence,
			}); err != nil {
				return err
			}
			task.mu.Lock()
			task.Result = reasoning.Answer
			task.mu.Unlock()
			return task.transition(StatusCompleted)

		default:
			return l.fail(task, fmt.Sprintf("reasoner returned unknown action %q", reasoning.NextAction))
		}
	}

	return l.fail(task, "max steps exceeded")
}

// checkCancelled observes the cancellation flag and the context.
func (l *Loop) checkCancelled(ctx context.Context, task *Task) (bool, error) {
	if task.isCancelled() || ctx.Err() != nil {
		_ = task.transition(StatusCancelled)
		return true, nil
	}
	return false, nil
}

// fail records an error step and moves the task to failed.
func (l *Loop) fail(task *Task, message string) error {
	_ = task.appendStep(&Step{Type: StepError, Content: message})
	task.mu.Lock()
	task.Error = message
	task.mu.Unlock()
	return task.transition(StatusFailed)
}
