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

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/buffer"
)

// Search performs a session-scoped search through the search adapter.
func (s *Service) Search(ctx context.Context, sessionID, query string, opts SearchOptions) ([]SearchResult, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	if s.adapters.Search == nil {
		return nil, auierr.New(auierr.AdapterFailure, "no search adapter is configured")
	}

	results, err := s.adapters.Search.Search(ctx, sess.ID, query, opts)
	if err != nil {
		return nil, auierr.Wrap(auierr.AdapterFailure, err, "search failed")
	}

	sess.Lock()
	sess.SearchCount++
	sess.SearchSessionID = sess.ID
	sess.Unlock()
	return results, nil
}

// Refine narrows the previous search results.
func (s *Service) Refine(ctx context.Context, sessionID string, opts SearchOptions) ([]SearchResult, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	if s.adapters.Search == nil {
		return nil, auierr.New(auierr.AdapterFailure, "no search adapter is configured")
	}

	results, err := s.adapters.Search.Refine(ctx, sess.ID, opts)
	if err != nil {
		return nil, auierr.Wrap(auierr.AdapterFailure, err, "refine failed")
	}
	return results, nil
}

// AddAnchor marks a search result as an anchor.
func (s *Service) AddAnchor(ctx context.Context, sessionID, resultID, anchorType string) error {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return err
	}
	if s.adapters.Search == nil {
		return auierr.New(auierr.AdapterFailure, "no search adapter is configured")
	}
	return s.adapters.Search.AddAnchor(ctx, sess.ID, resultID, anchorType)
}

// SearchToBufferOptions controls copying results into a buffer.
type SearchToBufferOptions struct {
	Limit  int  `json:"limit,omitempty"`
	Create bool `json:"create,omitempty"`
}

// SearchToBuffer copies the session's current search results into a buffer,
// one item per result.
func (s *Service) SearchToBuffer(ctx context.Context, sessionID, bufferName string, opts SearchToBufferOptions) (int, error) {
	sess, err := s.resolve(sessionID)
	if err != nil {
		return 0, err
	}
	if s.adapters.Search == nil {
		return 0, auierr.New(auierr.AdapterFailure, "no search adapter is configured")
	}

	results, err := s.adapters.Search.Results(ctx, sess.ID)
	if err != nil {
		return 0, auierr.Wrap(auierr.AdapterFailure, err, "failed to fetch search results")
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	if _, err := sess.Buffers.Get(bufferName); err != nil {
		if !opts.Create {
			return 0, err
		}
		if _, err := sess.Buffers.Create(bufferName, nil); err != nil {
			return 0, err
		}
	}

	items := make([]buffer.Item, 0, len(results))
	for _, result := range results {
		items = append(items, map[string]any{
			"id":        result.ID,
			"node_id":   result.NodeID,
			"text":      result.Text,
			"relevance": result.Relevance,
		})
	}
	if err := sess.Buffers.Append(bufferName, items); err != nil {
		return 0, err
	}
	return len(items), nil
}
