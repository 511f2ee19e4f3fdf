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

// Package agent implements the ReAct task controller.
//
// A task moves through an explicit state machine:
//
//	pending → planning → executing ⇄ awaiting_input
//	                         ↓
//	                 completed | failed | cancelled
//
// Steps are append-only; terminal statuses are final. Suspension for user
// input is an explicit return to the caller, resumed by a later call that
// supplies the answer.
package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/tool"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending       Status = "pending"
	StatusPlanning      Status = "planning"
	StatusExecuting     Status = "executing"
	StatusAwaitingInput Status = "awaiting_input"
	StatusPaused        Status = "paused"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// IsTerminal returns whether this status is final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StepType classifies one step of a task.
type StepType string

const (
	StepReason   StepType = "reason"
	StepAct      StepType = "act"
	StepObserve  StepType = "observe"
	StepAdjust   StepType = "adjust"
	StepComplete StepType = "complete"
	StepError    StepType = "error"
)

// Step is one append-only entry in a task's trace.
type Step struct {
	ID         string       `json:"id"`
	Type       StepType     `json:"type"`
	Content    string       `json:"content"`
	ToolCall   *tool.Call   `json:"tool_call,omitempty"`
	ToolResult *tool.Result `json:"tool_result,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
	DurationMs int64        `json:"duration_ms,omitempty"`
	Tokens     int          `json:"tokens,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
}

// Task is one agent run.
type Task struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	Request          string    `json:"request"`
	Status           Status    `json:"status"`
	Steps            []*Step   `json:"steps"`
	Plan             string    `json:"plan,omitempty"`
	CurrentStepIndex int       `json:"current_step_index"`
	Result           string    `json:"result,omitempty"`
	Error            string    `json:"error,omitempty"`
	PendingQuestion  string    `json:"pending_question,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	TokensUsed       int       `json:"tokens_used"`
	CostCents        float64   `json:"cost_cents"`
	Priority         int       `json:"priority,omitempty"`

	mu        sync.Mutex
	cancelled bool
}

// NewTask creates a pending task.
func NewTask(sessionID, userID, request string, priority int) *Task {
	now := time.Now()
	return &Task{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Request:   request,
		Status:    StatusPending,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// appendStep adds a step. Steps on terminal tasks are rejected.
func (t *Task) appendStep(step *Step) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Status.IsTerminal() {
		return auierr.New(auierr.WrongPhase, "task %s is %s; no further steps accepted", t.ID, t.Status)
	}
	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}
	t.Steps = append(t.Steps, step)
	t.CurrentStepIndex = len(t.Steps)
	t.UpdatedAt = time.Now()
	return nil
}

// transition moves the task to a new status. Terminal statuses are final.
func (t *Task) transition(status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Status.IsTerminal() {
		return auierr.New(auierr.WrongPhase, "task %s is %s; cannot transition to %s", t.ID, t.Status, status)
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

// Cancel flags the task for cancellation. The loop observes the flag at
// every step boundary.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

func (t *Task) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// addUsage accumulates token and cost totals.
func (t *Task) addUsage(tokens int, costCents float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TokensUsed += tokens
	t.CostCents += costCents
}

// Snapshot returns a copy safe to expose to callers.
func (t *Task) Snapshot() Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	copied := Task{
		ID:               t.ID,
		SessionID:        t.SessionID,
		UserID:           t.UserID,
		Request:          t.Request,
		Status:           t.Status,
		Plan:             t.Plan,
		CurrentStepIndex: t.CurrentStepIndex,
		Result:           t.Result,
		Error:            t.Error,
		PendingQuestion:  t.PendingQuestion,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		TokensUsed:       t.TokensUsed,
		CostCents:        t.CostCents,
		Priority:         t.Priority,
	}
	copied.Steps = append([]*Step(nil), t.Steps...)
	return copied
}
