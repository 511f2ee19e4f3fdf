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

package tool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/observability"
	"github.com/humanizer-ai/aui/pkg/registry"
)

// ExecutorConfig configures the executor.
type ExecutorConfig struct {
	// AutoApprove skips the approval gate entirely.
	AutoApprove bool

	// DefaultTimeout bounds a tool call when the caller sets none.
	DefaultTimeout time.Duration
}

// SetDefaults applies the default call timeout.
func (c *ExecutorConfig) SetDefaults() {
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 30 * time.Second
	}
}

// Executor dispatches named tools with validation, approval gating and
// per-call deadlines.
type Executor struct {
	cfg      ExecutorConfig
	tools    *registry.BaseRegistry[Tool]
	approval ApprovalFunc
	metrics  *observability.Metrics // optional
}

// NewExecutor creates an executor. approval may be nil, in which case gated
// calls are denied unless AutoApprove is set.
func NewExecutor(cfg ExecutorConfig, approval ApprovalFunc) *Executor {
	cfg.SetDefaults()
	return &Executor{
		cfg:      cfg,
		tools:    registry.NewBaseRegistry[Tool](),
		approval: approval,
	}
}

// SetMetrics attaches the service metrics so every execution feeds the
// per-tool counter.
func (e *Executor) SetMetrics(m *observability.Metrics) { e.metrics = m }

// Register adds a tool.
func (e *Executor) Register(t Tool) error {
	return e.tools.Register(t.Info().Name, t)
}

// Tools lists the registered tool declarations.
func (e *Executor) Tools() []Info {
	var infos []Info
	for _, t := range e.tools.List() {
		infos = append(infos, t.Info())
	}
	return infos
}

// validateArgs checks args against the tool's parameter declarations and
// fills declared defaults.
func validateArgs(info Info, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = make(map[string]any)
	}
	for _, param := range info.Parameters {
		value, present := args[param.Name]
		if !present {
			if param.Default != nil {
				args[param.Name] = param.Default
				continue
			}
			if param.Required {
				return nil, auierr.New(auierr.InvalidArgs, "tool %s: missing required argument %q", info.Name, param.Name)
			}
			continue
		}
		if err := checkType(param, value); err != nil {
			return nil, err
		}
		if len(param.Enum) > 0 {
			s, _ := value.(string)
			found := false
			for _, allowed := range param.Enum {
				if s == allowed {
					found = true
					break
				}
			}
			if !found {
				return nil, auierr.New(auierr.InvalidArgs, "tool %s: argument %q must be one of %v", info.Name, param.Name, param.Enum)
			}
		}
	}
	return args, nil
}

func checkType(param Parameter, value any) error {
	ok := true
	switch param.Type {
	case TypeString:
		_, ok = value.(string)
	case TypeNumber:
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			ok = false
		}
	case TypeBoolean:
		_, ok = value.(bool)
	case TypeArray:
		_, ok = value.([]any)
	case TypeObject:
		_, ok = value.(map[string]any)
	}
	if !ok {
		return auierr.New(auierr.InvalidArgs, "argument %q must be a %s", param.Name, param.Type)
	}
	return nil
}

// Execute runs a tool call. Failures that belong to the tool itself are
// reported inside the Result; only unknown tools, invalid arguments and
// denied approvals return an error.
func (e *Executor) Execute(ctx context.Context, call Call) (*Result, error) {
	t, ok := e.tools.Get(call.Tool)
	if !ok {
		return nil, auierr.New(auierr.NotFound, "tool %q not found", call.Tool)
	}
	info := t.Info()

	args, err := validateArgs(info, call.Args)
	if err != nil {
		return nil, err
	}

	if (info.Destructive || info.RequiresApproval) && !e.cfg.AutoApprove {
		if e.approval == nil || !e.approval(ctx, call, info) {
			return nil, auierr.New(auierr.ApprovalDenied, "tool %q was not approved", call.Tool).
				WithDetail("action", fmt.Sprintf("%s(%v)", call.Tool, call.Args))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.DefaultTimeout)
	defer cancel()

	started := time.Now()
	result, err := t.Execute(callCtx, args)
	duration := time.Since(started)

	if callCtx.Err() == context.DeadlineExceeded {
		slog.Warn("tool call timed out", "tool", call.Tool, "timeout", e.cfg.DefaultTimeout)
		e.metrics.ObserveTool(call.Tool, false)
		return &Result{Success: false, Error: "timeout", DurationMs: duration.Milliseconds()}, nil
	}
	if err != nil {
		e.metrics.ObserveTool(call.Tool, false)
		return &Result{Success: false, Error: err.Error(), DurationMs: duration.Milliseconds()}, nil
	}
	if result == nil {
		result = &Result{Success: true}
	}
	if result.DurationMs == 0 {
		result.DurationMs = duration.Milliseconds()
	}

	e.metrics.ObserveTool(call.Tool, result.Success)
	slog.Debug("tool executed", "tool", call.Tool, "success", result.Success, "duration_ms", result.DurationMs)
	return result, nil
}

// ExecuteWithTimeout runs a call with an explicit deadline.
func (e *Executor) ExecuteWithTimeout(ctx context.Context, call Call, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		return e.Execute(ctx, call)
	}
	scoped := *e
	scoped.cfg.DefaultTimeout = timeout
	return scoped.Execute(ctx, call)
}
