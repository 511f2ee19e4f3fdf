package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanizer-ai/aui/pkg/tool"
)

// scriptedReasoner replays a fixed decision sequence.
type scriptedReasoner struct {
	decisions []Reasoning
	index     int
}

func (r *scriptedReasoner) Reason(ctx context.Context, task *Task, tools []tool.Info) (*Reasoning, error) {
	if r.index >= len(r.decisions) {
		return nil, errors.New("script exhausted")
	}
	decision := r.decisions[r.index]
	r.index++
	return &decision, nil
}

// staticTool returns fixed data.
type staticTool struct {
	name string
	data any
}

func (s *staticTool) Info() tool.Info {
	return tool.Info{Name: s.name, Description: "test tool"}
}

func (s *staticTool) Execute(ctx context.Context, args map[string]any) (*tool.Result, error) {
	return &tool.Result{Success: true, Data: s.data}, nil
}

func newExecutor(t *testing.T, tools ...tool.Tool) *tool.Executor {
	t.Helper()
	executor := tool.NewExecutor(tool.ExecutorConfig{AutoApprove: true}, nil)
	for _, tl := range tools {
		require.NoError(t, executor.Register(tl))
	}
	return executor
}

func TestRun_HappyPath(t *testing.T) {
	reasoner := &scriptedReasoner{decisions: []Reasoning{
		{
			NextAction:   ActionTool,
			Reasoning:    "run the pipeline first",
			ToolCall:     &tool.Call{Tool: "bql_execute", Args: map[string]any{"pipeline": "load | transform"}},
			InputTokens:  100,
			OutputTokens: 20,
		},
		{
			NextAction:   ActionTool,
			Reasoning:    "search for supporting passages",
			ToolCall:     &tool.Call{Tool: "search", Args: map[string]any{"query": "fox"}},
			InputTokens:  120,
			OutputTokens: 25,
		},
		{
			NextAction:   ActionComplete,
			Answer:       "done",
			InputTokens:  90,
			OutputTokens: 10,
		},
	}}

	executor := newExecutor(t,
		&staticTool{name: "bql_execute", data: []any{1, 2}},
		&staticTool{name: "search", data: []any{"r1", "r2"}},
	)

	var usageCalls int
	loop := NewLoop(reasoner, executor, func(in, out int, cost float64) { usageCalls++ })

	task := NewTask("sess", "user", "do the thing", 0)
	require.NoError(t, loop.Run(context.Background(), task, Options{}))

	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, "done", task.Result)
	assert.Equal(t, 3, usageCalls)
	assert.Equal(t, 365, task.TokensUsed)

	// reason, act, observe, reason, act, observe, complete.
	require.Len(t, task.Steps, 7)
	wantTypes := []StepType{StepReason, StepAct, StepObserve, StepReason, StepAct, StepObserve, StepComplete}
	for i, step := range task.Steps {
		assert.Equal(t, wantTypes[i], step.Type, "step %d", i)
	}
	assert.Equal(t, "bql_execute", task.Steps[1].ToolCall.Tool)
	assert.True(t, task.Steps[2].ToolResult.Success)
	assert.Equal(t, len(task.Steps), task.CurrentStepIndex)
}

func TestRun_MaxStepsExceeded(t *testing.T) {
	// The reasoner never completes.
	decisions := make([]Reasoning, 20)
	for i := range decisions {
		decisions[i] = Reasoning{NextAction: ActionAdjustPlan, Reasoning: "keep thinking"}
	}
	loop := NewLoop(&scriptedReasoner{decisions: decisions}, newExecutor(t), nil)

	task := NewTask("sess", "user", "never ends", 0)
	require.NoError(t, loop.Run(context.Background(), task, Options{MaxSteps: 3}))

	assert.Equal(t, StatusFailed, task.Status)
	assert.Contains(t, task.Error, "max steps exceeded")
	last := task.Steps[len(task.Steps)-1]
	assert.Equal(t, StepError, last.Type)
}

func TestRun_AwaitingInputAndResume(t *testing.T) {
	reasoner := &scriptedReasoner{decisions: []Reasoning{
		{NextAction: ActionAskUser, Question: "which buffer?"},
		{NextAction: ActionComplete, Answer: "resumed and finished"},
	}}
	loop := NewLoop(reasoner, newExecutor(t), nil)

	task := NewTask("sess", "user", "needs input", 0)
	require.NoError(t, loop.Run(context.Background(), task, Options{}))

	assert.Equal(t, StatusAwaitingInput, task.Status)
	assert.Equal(t, "which buffer?", task.PendingQuestion)

	require.NoError(t, loop.Resume(context.Background(), task, "buffer B", Options{}))
	assert.Equal(t, StatusCompleted, task.Status)

	// The answer arrived as an observe step before reasoning re-entered.
	var observed bool
	for _, step := range task.Steps {
		if step.Type == StepObserve && step.Content == "buffer B" {
			observed = true
		}
	}
	assert.True(t, observed)
}

func TestRun_Cancellation(t *testing.T) {
	reasoner := &scriptedReasoner{decisions: []Reasoning{
		{NextAction: ActionAdjustPlan, Reasoning: "step 1"},
		{NextAction: ActionAdjustPlan, Reasoning: "step 2"},
	}}
	loop := NewLoop(reasoner, newExecutor(t), nil)

	task := NewTask("sess", "user", "to be cancelled", 0)
	task.Cancel()
	require.NoError(t, loop.Run(context.Background(), task, Options{}))

	assert.Equal(t, StatusCancelled, task.Status)
	assert.Empty(t, task.Steps)
}

func TestTask_TerminalStateIsFinal(t *testing.T) {
	reasoner := &scriptedReasoner{decisions: []Reasoning{
		{NextAction: ActionComplete, Answer: "ok"},
	}}
	loop := NewLoop(reasoner, newExecutor(t), nil)

	task := NewTask("sess", "user", "finish fast", 0)
	require.NoError(t, loop.Run(context.Background(), task, Options{}))
	require.Equal(t, StatusCompleted, task.Status)

	before := len(task.Steps)
	err := task.appendStep(&Step{Type: StepObserve, Content: "late"})
	assert.Error(t, err)
	assert.Len(t, task.Steps, before)
	assert.Error(t, task.transition(StatusExecuting))
	assert.Equal(t, StatusCompleted, task.Status)
}

func TestRun_ToolFailureIsObserved(t *testing.T) {
	reasoner := &scriptedReasoner{decisions: []Reasoning{
		{NextAction: ActionTool, Reasoning: "try it", ToolCall: &tool.Call{Tool: "missing"}},
		{NextAction: ActionComplete, Answer: "gave up"},
	}}
	loop := NewLoop(reasoner, newExecutor(t), nil)

	task := NewTask("sess", "user", "tool missing", 0)
	require.NoError(t, loop.Run(context.Background(), task, Options{}))

	// The failed tool call did not fail the task.
	assert.Equal(t, StatusCompleted, task.Status)
	var failedObserve *Step
	for _, step := range task.Steps {
		if step.Type == StepObserve && step.ToolResult != nil && !step.ToolResult.Success {
			failedObserve = step
		}
	}
	require.NotNil(t, failedObserve)
	assert.Contains(t, failedObserve.ToolResult.Error, "not found")
}

func TestParseReasoning(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    Action
		wantErr bool
	}{
		{
			name: "bare json",
			text: `{"next_action":"complete","answer":"done"}`,
			want: ActionComplete,
		},
		{
			name: "fenced json",
			text: "Here you go:\n```json\n{\"next_action\":\"tool\",\"tool_call\":{\"tool\":\"search\",\"args\":{}}}\n```",
			want: ActionTool,
		},
		{name: "no json", text: "I cannot decide", wantErr: true},
		{name: "missing action", text: `{"reasoning":"hmm"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := parseReasoning(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, parsed.NextAction)
		})
	}
}
