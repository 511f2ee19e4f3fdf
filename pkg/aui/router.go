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
	"fmt"
	"strings"
)

// Route names one of the request handlers.
type Route string

const (
	RoutePipeline Route = "pipeline"
	RouteSearch   Route = "search"
	RouteAgent    Route = "agent"
)

// ProcessOptions steers a natural-language request.
type ProcessOptions struct {
	// Route overrides intent detection when set.
	Route Route `json:"route,omitempty"`

	DryRun   bool `json:"dry_run,omitempty"`
	MaxItems int  `json:"max_items,omitempty"`
	Verbose  bool `json:"verbose,omitempty"`
}

// Response is the router's uniform reply.
type Response struct {
	Type        string   `json:"type"` // pipeline, search, agent, error
	Message     string   `json:"message,omitempty"`
	Data        any      `json:"data,omitempty"`
	TaskID      string   `json:"task_id,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

var (
	pipelineMarkers = []string{"harvest", "load", "transform", "save", "filter", "select", "|"}
	searchMarkers   = []string{"find", "search", "look for", "where", "containing"}
)

// detectRoute maps free text to a route by keyword sets; anything else goes
// to the agent.
func detectRoute(request string) Route {
	lowered := strings.ToLower(request)
	for _, marker := range pipelineMarkers {
		if strings.Contains(lowered, marker) {
			return RoutePipeline
		}
	}
	for _, marker := range searchMarkers {
		if strings.Contains(lowered, marker) {
			return RouteSearch
		}
	}
	return RouteAgent
}

// Process dispatches a natural-language request. Every path touches the
// session, appends to its command history, and bumps the matching counter.
func (s *Service) Process(ctx context.Context, sessionID, request string, opts ProcessOptions) (*Response, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}

	route := opts.Route
	if route == "" {
		route = detectRoute(request)
	}

	sess.Lock()
	sess.CommandHistory = append(sess.CommandHistory, request)
	sess.CommandCount++
	sess.Unlock()

	switch route {
	case RoutePipeline:
		return s.processPipeline(ctx, sessionID, request, opts)
	case RouteSearch:
		return s.processSearch(ctx, sess.ID, request, opts)
	case RouteAgent:
		return s.processAgent(ctx, sess.ID, request, opts)
	default:
		return errorResponse("unknown route %q", string(route)), nil
	}
}

// processPipeline dry-runs the pipeline first and executes only when it
// parses.
func (s *Service) processPipeline(ctx context.Context, sessionID, request string, opts ProcessOptions) (*Response, error) {
	if s.adapters.Pipeline == nil {
		return &Response{
			Type:        "error",
			Message:     "no pipeline adapter is configured",
			Suggestions: []string{"configure a pipeline executor to run BQL requests"},
		}, nil
	}

	if err := s.adapters.Pipeline.Validate(ctx, request); err != nil {
		return &Response{
			Type:        "error",
			Message:     "pipeline did not parse: " + err.Error(),
			Suggestions: []string{"check the pipeline syntax", "try the agent route instead"},
		}, nil
	}
	if opts.DryRun {
		return &Response{Type: "pipeline", Message: "pipeline parsed"}, nil
	}

	result, err := s.adapters.Pipeline.Execute(ctx, request)
	if err != nil {
		return errorResponse("pipeline failed: %s", err.Error()), nil
	}
	if result.Error != "" {
		return errorResponse("pipeline failed: %s", result.Error), nil
	}

	data := result.Data
	if opts.MaxItems > 0 {
		if list, ok := data.([]any); ok && len(list) > opts.MaxItems {
			data = list[:opts.MaxItems]
		}
	}
	return &Response{Type: "pipeline", Data: data}, nil
}

func (s *Service) processSearch(ctx context.Context, sessionID, request string, opts ProcessOptions) (*Response, error) {
	if s.adapters.Search == nil {
		return &Response{
			Type:        "error",
			Message:     "no search adapter is configured",
			Suggestions: []string{"configure a search service to answer search requests"},
		}, nil
	}

	results, err := s.adapters.Search.Search(ctx, sessionID, request, SearchOptions{Limit: opts.MaxItems})
	if err != nil {
		return errorResponse("search failed: %s", err.Error()), nil
	}

	if sess, sessErr := s.sessions.Get(sessionID); sessErr == nil {
		sess.Lock()
		sess.SearchCount++
		sess.Unlock()
	}
	return &Response{Type: "search", Data: results}, nil
}

func (s *Service) processAgent(ctx context.Context, sessionID, request string, opts ProcessOptions) (*Response, error) {
	if s.adapters.LLM == nil {
		return &Response{
			Type:        "error",
			Message:     "no LLM adapter is configured",
			Suggestions: []string{"configure an LLM provider to run agent requests"},
		}, nil
	}

	task, err := s.RunAgent(ctx, sessionID, request, AgentOptions{})
	if err != nil {
		return errorResponse("agent failed: %s", err.Error()), nil
	}
	return &Response{Type: "agent", TaskID: task.ID, Message: task.Result, Data: task.Snapshot()}, nil
}

func errorResponse(format string, args ...any) *Response {
	return &Response{Type: "error", Message: fmt.Sprintf(format, args...)}
}
