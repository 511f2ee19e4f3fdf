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
	"time"

	"github.com/humanizer-ai/aui/pkg/buffer"
)

// PipelineRunner executes pipeline text. The pipeline language itself is
// external; the tool only frames the call.
type PipelineRunner interface {
	Execute(ctx context.Context, pipeline string) (any, error)
}

// Searcher performs session-scoped semantic search.
type Searcher interface {
	Search(ctx context.Context, query string, opts map[string]any) ([]any, error)
}

// PipelineTool exposes pipeline execution to the agent loop.
type PipelineTool struct {
	Runner PipelineRunner
}

func (t *PipelineTool) Info() Info {
	return Info{
		Name:        "bql_execute",
		Description: "Execute a BQL pipeline and return its data",
		Parameters: []Parameter{
			{Name: "pipeline", Type: TypeString, Description: "Pipeline text to execute", Required: true},
		},
	}
}

func (t *PipelineTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	started := time.Now()
	pipeline, _ := args["pipeline"].(string)
	data, err := t.Runner.Execute(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return okResult(data, started), nil
}

// SearchTool exposes semantic search to the agent loop.
type SearchTool struct {
	Searcher Searcher
}

func (t *SearchTool) Info() Info {
	return Info{
		Name:        "search",
		Description: "Search the archive for passages matching a query",
		Parameters: []Parameter{
			{Name: "query", Type: TypeString, Description: "Search query", Required: true},
			{Name: "limit", Type: TypeNumber, Description: "Maximum results", Default: float64(10)},
		},
	}
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	started := time.Now()
	query, _ := args["query"].(string)
	results, err := t.Searcher.Search(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return okResult(results, started), nil
}

// BufferTool exposes one buffer operation. Writes are destructive and gated.
type BufferTool struct {
	Op      string
	Buffers func(ctx context.Context) *buffer.Set
}

func (t *BufferTool) Info() Info {
	switch t.Op {
	case "list":
		return Info{
			Name:        "buffer_list",
			Description: "List the session's buffers",
		}
	case "write":
		return Info{
			Name:        "buffer_write",
			Description: "Replace a buffer's working content",
			Parameters: []Parameter{
				{Name: "name", Type: TypeString, Description: "Buffer name", Required: true},
				{Name: "content", Type: TypeArray, Description: "New content items", Required: true},
			},
			Destructive: true,
		}
	case "commit":
		return Info{
			Name:        "buffer_commit",
			Description: "Commit a buffer's working content",
			Parameters: []Parameter{
				{Name: "name", Type: TypeString, Description: "Buffer name", Required: true},
				{Name: "message", Type: TypeString, Description: "Commit message", Required: true},
			},
		}
	case "rollback":
		return Info{
			Name:        "buffer_rollback",
			Description: "Roll a buffer back by a number of commits",
			Parameters: []Parameter{
				{Name: "name", Type: TypeString, Description: "Buffer name", Required: true},
				{Name: "steps", Type: TypeNumber, Description: "Steps to roll back", Default: float64(1)},
			},
			Destructive: true,
		}
	default:
		return Info{Name: "buffer_" + t.Op, Description: "Unknown buffer operation"}
	}
}

func (t *BufferTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	started := time.Now()
	buffers := t.Buffers(ctx)
	if buffers == nil {
		return nil, fmt.Errorf("no buffer set bound to this call")
	}

	switch t.Op {
	case "list":
		return okResult(buffers.List(), started), nil
	case "write":
		name, _ := args["name"].(string)
		content, _ := args["content"].([]any)
		if err := buffers.SetWorkingContent(name, content); err != nil {
			return nil, err
		}
		return okResult(map[string]any{"name": name, "items": len(content)}, started), nil
	case "commit":
		name, _ := args["name"].(string)
		message, _ := args["message"].(string)
		version, err := buffers.Commit(name, message)
		if err != nil {
			return nil, err
		}
		return okResult(map[string]any{"version_id": version.ID}, started), nil
	case "rollback":
		name, _ := args["name"].(string)
		steps := 1
		if n, ok := args["steps"].(float64); ok {
			steps = int(n)
		}
		version, err := buffers.Rollback(name, steps)
		if err != nil {
			return nil, err
		}
		return okResult(map[string]any{"version_id": version.ID}, started), nil
	default:
		return nil, fmt.Errorf("unknown buffer operation %q", t.Op)
	}
}

// RegisterBuiltins wires the standard tool set into an executor.
// buffers resolves the buffer set of the calling session; runner and
// searcher may be nil, in which case their tools are omitted.
func RegisterBuiltins(e *Executor, runner PipelineRunner, searcher Searcher, buffers func(ctx context.Context) *buffer.Set) error {
	if runner != nil {
		if err := e.Register(&PipelineTool{Runner: runner}); err != nil {
			return err
		}
	}
	if searcher != nil {
		if err := e.Register(&SearchTool{Searcher: searcher}); err != nil {
			return err
		}
	}
	if buffers != nil {
		for _, op := range []string{"list", "write", "commit", "rollback"} {
			if err := e.Register(&BufferTool{Op: op, Buffers: buffers}); err != nil {
				return err
			}
		}
	}
	return nil
}
