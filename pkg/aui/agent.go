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
	"sync"
	"time"

	"github.com/humanizer-ai/aui/pkg/admin"
	"github.com/humanizer-ai/aui/pkg/agent"
	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/buffer"
	"github.com/humanizer-ai/aui/pkg/session"
	"github.com/humanizer-ai/aui/pkg/tool"
)

// taskRegistry indexes live tasks by id.
type taskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*agent.Task
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{tasks: make(map[string]*agent.Task)}
}

func (r *taskRegistry) put(t *agent.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
}

func (r *taskRegistry) get(id string) (*agent.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// AgentOptions bounds one agent run.
type AgentOptions struct {
	MaxSteps    int           `json:"max_steps,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	AutoApprove bool          `json:"auto_approve,omitempty"`
	Priority    int           `json:"priority,omitempty"`

	// Reasoner overrides the LLM-backed default. Tests use this.
	Reasoner agent.Reasoner `json:"-"`

	// Approval gates destructive tool calls when AutoApprove is off.
	Approval tool.ApprovalFunc `json:"-"`
}

// buildExecutor wires the builtin tool set bound to one session.
func (s *Service) buildExecutor(sess *session.Session, opts AgentOptions) (*tool.Executor, error) {
	executor := tool.NewExecutor(tool.ExecutorConfig{
		AutoApprove:    opts.AutoApprove,
		DefaultTimeout: s.cfg.ToolTimeout,
	}, opts.Approval)
	executor.SetMetrics(s.metrics)

	var runner tool.PipelineRunner
	if s.adapters.Pipeline != nil {
		runner = &pipelineRunner{pipeline: s.adapters.Pipeline}
	}
	var searcher tool.Searcher
	if s.adapters.Search != nil {
		searcher = &sessionSearcher{service: s, sessionID: sess.ID}
	}

	buffers := func(ctx context.Context) *buffer.Set { return sess.Buffers }
	if err := tool.RegisterBuiltins(executor, runner, searcher, buffers); err != nil {
		return nil, err
	}
	return executor, nil
}

// pipelineRunner adapts the pipeline adapter to the tool interface.
type pipelineRunner struct {
	pipeline PipelineExecutor
}

func (r *pipelineRunner) Execute(ctx context.Context, pipeline string) (any, error) {
	result, err := r.pipeline.Execute(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, auierr.New(auierr.AdapterFailure, "pipeline failed: %s", result.Error)
	}
	return result.Data, nil
}

// sessionSearcher adapts the search adapter to the tool interface, counting
// searches against the session.
type sessionSearcher struct {
	service   *Service
	sessionID string
}

func (ss *sessionSearcher) Search(ctx context.Context, query string, args map[string]any) ([]any, error) {
	opts := SearchOptions{}
	if limit, ok := args["limit"].(float64); ok {
		opts.Limit = int(limit)
	}
	results, err := ss.service.adapters.Search.Search(ctx, ss.sessionID, query, opts)
	if err != nil {
		return nil, err
	}
	if sess, sessErr := ss.service.sessions.Get(ss.sessionID); sessErr == nil {
		sess.Lock()
		sess.SearchCount++
		sess.Unlock()
	}
	out := make([]any, 0, len(results))
	for _, result := range results {
		out = append(out, result)
	}
	return out, nil
}

// gateLLM consults the admin plane before an LLM-using path runs.
func (s *Service) gateLLM(userID, model string) error {
	check := s.admin.CheckLimits(userID)
	if err := admin.LimitError(check); err != nil {
		return err
	}
	if model != "" && !admin.IsModelAllowed(check.Tier, model) {
		return auierr.New(auierr.ModelNotAllowed, "model %q is not allowed on tier %s", model, check.Tier.ID)
	}
	return nil
}

// RunAgent executes an agent task for a session. The call is synchronous:
// it returns when the task reaches a terminal status or parks in
// awaiting_input.
func (s *Service) RunAgent(ctx context.Context, sessionID, request string, opts AgentOptions) (*agent.Task, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}

	reasoner := opts.Reasoner
	model := ""
	if reasoner == nil {
		if s.adapters.LLM == nil {
			return nil, auierr.New(auierr.AdapterFailure, "no LLM adapter is configured; set one or pass a reasoner")
		}
		llmReasoner := agent.NewLLMReasoner(s.adapters.LLM, "")
		model = llmReasoner.Model()
		reasoner = llmReasoner
	}

	if err := s.gateLLM(sess.UserID, model); err != nil {
		return nil, err
	}

	if opts.MaxSteps == 0 {
		opts.MaxSteps = s.cfg.MaxStepsDefault
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	task := agent.NewTask(sess.ID, sess.UserID, request, opts.Priority)
	s.tasks.put(task)

	sess.Lock()
	sess.CurrentTaskID = task.ID
	sess.TaskHistory = append(sess.TaskHistory, task.ID)
	sess.TaskCount++
	sess.Unlock()

	executor, err := s.buildExecutor(sess, opts)
	if err != nil {
		return nil, err
	}

	onUsage := func(inputTokens, outputTokens int, costCents float64) {
		s.admin.RecordLLMCost(admin.CostRecord{
			UserID:       sess.UserID,
			SessionID:    sess.ID,
			Model:        model,
			Operation:    "agent",
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			CostCents:    costCents,
			HasCost:      costCents > 0,
			Success:      true,
		})
	}

	s.admin.IncActiveTasks(sess.UserID)
	defer s.admin.DecActiveTasks(sess.UserID)

	loop := agent.NewLoop(reasoner, executor, onUsage)
	if err := loop.Run(ctx, task, agent.Options{MaxSteps: opts.MaxSteps}); err != nil {
		return task, err
	}
	return task, nil
}

// ResumeAgent supplies the user's answer to a task parked in
// awaiting_input.
func (s *Service) ResumeAgent(ctx context.Context, sessionID, taskID, answer string, opts AgentOptions) (*agent.Task, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}

	task, ok := s.tasks.get(taskID)
	if !ok || task.SessionID != sess.ID {
		return nil, auierr.New(auierr.NotFound, "task %q not found in session %q", taskID, sessionID)
	}

	reasoner := opts.Reasoner
	model := ""
	if reasoner == nil {
		if s.adapters.LLM == nil {
			return nil, auierr.New(auierr.AdapterFailure, "no LLM adapter is configured; set one or pass a reasoner")
		}
		llmReasoner := agent.NewLLMReasoner(s.adapters.LLM, "")
		model = llmReasoner.Model()
		reasoner = llmReasoner
	}
	if err := s.gateLLM(sess.UserID, model); err != nil {
		return nil, err
	}
	if opts.MaxSteps == 0 {
		opts.MaxSteps = s.cfg.MaxStepsDefault
	}

	executor, err := s.buildExecutor(sess, opts)
	if err != nil {
		return nil, err
	}

	onUsage := func(inputTokens, outputTokens int, costCents float64) {
		s.admin.RecordLLMCost(admin.CostRecord{
			UserID:       sess.UserID,
			SessionID:    sess.ID,
			Model:        model,
			Operation:    "agent",
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			CostCents:    costCents,
			HasCost:      costCents > 0,
			Success:      true,
		})
	}

	s.admin.IncActiveTasks(sess.UserID)
	defer s.admin.DecActiveTasks(sess.UserID)

	loop := agent.NewLoop(reasoner, executor, onUsage)
	if err := loop.Resume(ctx, task, answer, agent.Options{MaxSteps: opts.MaxSteps}); err != nil {
		return task, err
	}
	return task, nil
}

// GetTask returns a task by id.
func (s *Service) GetTask(taskID string) (*agent.Task, error) {
	task, ok := s.tasks.get(taskID)
	if !ok {
		return nil, auierr.New(auierr.NotFound, "task %q not found", taskID)
	}
	return task, nil
}

// CancelAgent flags a task for cancellation.
func (s *Service) CancelAgent(taskID string) error {
	task, ok := s.tasks.get(taskID)
	if !ok {
		return auierr.New(auierr.NotFound, "task %q not found", taskID)
	}
	task.Cancel()
	return nil
}

// BqlOptions bounds a pipeline execution.
type BqlOptions struct {
	DryRun   bool          `json:"dry_run,omitempty"`
	MaxItems int           `json:"max_items,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// BqlResult is the outcome of a pipeline execution.
type BqlResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ExecuteBql runs pipeline text through the pipeline adapter.
func (s *Service) ExecuteBql(ctx context.Context, sessionID, pipeline string, opts BqlOptions) (*BqlResult, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	if s.adapters.Pipeline == nil {
		return nil, auierr.New(auierr.AdapterFailure, "no pipeline adapter is configured")
	}

	sess.Lock()
	sess.CommandHistory = append(sess.CommandHistory, pipeline)
	sess.CommandCount++
	sess.Unlock()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if opts.DryRun {
		if err := s.adapters.Pipeline.Validate(ctx, pipeline); err != nil {
			return &BqlResult{Success: false, Error: err.Error()}, nil
		}
		return &BqlResult{Success: true}, nil
	}

	result, err := s.adapters.Pipeline.Execute(ctx, pipeline)
	if err != nil {
		return &BqlResult{Success: false, Error: err.Error()}, nil
	}
	if result.Error != "" {
		return &BqlResult{Success: false, Error: result.Error}, nil
	}

	data := result.Data
	if opts.MaxItems > 0 {
		if list, ok := data.([]any); ok && len(list) > opts.MaxItems {
			data = list[:opts.MaxItems]
		}
	}
	return &BqlResult{Success: true, Data: data}, nil
}
