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

// Package observability exposes prometheus metrics for the service.
// All recording helpers are nil-safe so embedding the service as a library
// without metrics costs nothing.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service counters.
type Metrics struct {
	registry *prometheus.Registry

	Requests       *prometheus.CounterVec
	LLMCostCents   *prometheus.CounterVec
	ToolExecutions *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
}

// New creates and registers the service metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aui_requests_total",
			Help: "Requests handled, by route.",
		}, []string{"route"}),
		LLMCostCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aui_llm_cost_cents_total",
			Help: "Accumulated LLM cost in cents, by model.",
		}, []string{"model"}),
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aui_tool_executions_total",
			Help: "Tool executions, by tool and outcome.",
		}, []string{"tool", "success"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aui_active_sessions",
			Help: "Live sessions.",
		}),
	}

	registry.MustRegister(m.Requests, m.LLMCostCents, m.ToolExecutions, m.ActiveSessions)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest counts one request.
func (m *Metrics) ObserveRequest(route string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route).Inc()
}

// ObserveLLMCost accumulates cost for a model.
func (m *Metrics) ObserveLLMCost(model string, cents float64) {
	if m == nil {
		return
	}
	m.LLMCostCents.WithLabelValues(model).Add(cents)
}

// ObserveTool counts one tool execution.
func (m *Metrics) ObserveTool(toolName string, success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.ToolExecutions.WithLabelValues(toolName, label).Inc()
}

// SetActiveSessions records the live session count.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
