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
	"fmt"
	"strings"

	"github.com/humanizer-ai/aui/pkg/admin"
	"github.com/humanizer-ai/aui/pkg/llms"
	"github.com/humanizer-ai/aui/pkg/store"
)

// GetCostReport aggregates cost entries over a date range.
func (s *Service) GetCostReport(opts admin.ReportOptions) *admin.Report {
	return s.admin.CostReport(opts)
}

// GetUsage returns the usage bucket for a user and period.
func (s *Service) GetUsage(userID, period string) *store.Usage {
	return s.admin.GetUsage(userID, period)
}

// CheckLimits evaluates a user against their tier.
func (s *Service) CheckLimits(userID string) *admin.LimitCheck {
	return s.admin.CheckLimits(userID)
}

// ListTiers returns the tier catalog.
func (s *Service) ListTiers() []*admin.Tier {
	return s.admin.ListTiers()
}

// SetUserTier assigns a tier to a user.
func (s *Service) SetUserTier(userID, tierID string) error {
	return s.admin.SetUserTier(userID, tierID)
}

// adminCostRecord builds a cost record for the admin plane.
func adminCostRecord(userID, sessionID, model, operation string, in, out int, cost float64, latency int64, success bool, errMsg string) admin.CostRecord {
	return admin.CostRecord{
		UserID:       userID,
		SessionID:    sessionID,
		Model:        model,
		Operation:    operation,
		InputTokens:  in,
		OutputTokens: out,
		CostCents:    cost,
		HasCost:      cost > 0,
		LatencyMs:    latency,
		Success:      success,
		Error:        errMsg,
	}
}

// llmPersonaRequest frames a sample-generation prompt from a persona's
// stored descriptors.
func llmPersonaRequest(p *store.Persona, topic string) llms.Request {
	var system strings.Builder
	system.WriteString("Write in the voice described below.\n")
	if len(p.ToneMarkers) > 0 {
		fmt.Fprintf(&system, "Tone: %s.\n", strings.Join(p.ToneMarkers, ", "))
	}
	if len(p.VoiceTraits) > 0 {
		system.WriteString("Traits:\n")
		for key, value := range p.VoiceTraits {
			fmt.Fprintf(&system, "- %s: %v\n", key, value)
		}
	}
	if len(p.ExampleTexts) > 0 {
		system.WriteString("Example of the voice:\n")
		system.WriteString(truncateText(p.ExampleTexts[0], 800))
		system.WriteString("\n")
	}

	prompt := "Write one paragraph"
	if topic != "" {
		prompt += " about " + topic
	}
	prompt += " in this voice."

	return llms.Request{SystemPrompt: system.String(), UserPrompt: prompt}
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
