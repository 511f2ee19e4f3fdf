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

// Package server exposes the service API over HTTP. Handlers only translate
// JSON to façade calls and error kinds to status codes; every contract lives
// in pkg/aui.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/humanizer-ai/aui/pkg/aui"
	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/book"
	"github.com/humanizer-ai/aui/pkg/buffer"
	"github.com/humanizer-ai/aui/pkg/observability"
)

// Server hosts the HTTP surface.
type Server struct {
	service *aui.Service
	metrics *observability.Metrics
	http    *http.Server
}

// New creates a server. metrics may be nil.
func New(service *aui.Service, metrics *observability.Metrics, host string, port int) *Server {
	s := &Server{service: service, metrics: metrics}
	if metrics != nil {
		service.SetMetrics(metrics)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.createSession)
		r.Get("/sessions", s.listSessions)
		r.Get("/sessions/{id}", s.getSession)
		r.Delete("/sessions/{id}", s.deleteSession)

		r.Post("/sessions/{id}/process", s.process)
		r.Post("/sessions/{id}/agent", s.runAgent)
		r.Post("/sessions/{id}/agent/{taskID}/resume", s.resumeAgent)
		r.Post("/sessions/{id}/agent/{taskID}/cancel", s.cancelAgent)
		r.Post("/sessions/{id}/bql", s.executeBql)

		r.Post("/sessions/{id}/buffers", s.createBuffer)
		r.Get("/sessions/{id}/buffers", s.listBuffers)
		r.Get("/sessions/{id}/buffers/{name}", s.getBuffer)
		r.Put("/sessions/{id}/buffers/{name}/content", s.setBufferContent)
		r.Post("/sessions/{id}/buffers/{name}/append", s.appendToBuffer)
		r.Post("/sessions/{id}/buffers/{name}/commit", s.commit)
		r.Post("/sessions/{id}/buffers/{name}/rollback", s.rollback)
		r.Get("/sessions/{id}/buffers/{name}/history", s.history)
		r.Post("/sessions/{id}/buffers/{name}/branch", s.branch)
		r.Post("/sessions/{id}/buffers/{name}/switch", s.switchBranch)
		r.Post("/sessions/{id}/buffers/{name}/merge", s.merge)
		r.Get("/sessions/{id}/buffers/{name}/diff", s.diff)

		r.Get("/admin/limits/{userID}", s.checkLimits)
		r.Get("/admin/tiers", s.listTiers)
		r.Put("/admin/users/{userID}/tier", s.setUserTier)
		r.Get("/admin/usage/{userID}/{period}", s.getUsage)

		r.Get("/books", s.listBooks)
		r.Get("/books/{id}", s.getBook)
		r.Post("/books/{id}/export", s.exportBook)
		r.Get("/artifacts/{id}", s.downloadArtifact)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// ---------------------------------------------------------------------------
// Encoding helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch auierr.KindOf(err) {
	case auierr.NotFound:
		return http.StatusNotFound
	case auierr.InvalidArgs, auierr.WrongPhase, auierr.UncommittedChanges,
		auierr.NothingToCommit, auierr.NoSuchAncestor, auierr.BranchExists,
		auierr.MergeConflict:
		return http.StatusBadRequest
	case auierr.ApprovalDenied:
		return http.StatusForbidden
	case auierr.LimitExceeded, auierr.ModelNotAllowed:
		return http.StatusTooManyRequests
	case auierr.TimeoutExceeded:
		return http.StatusGatewayTimeout
	case auierr.AdapterFailure, auierr.StoreFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	payload := map[string]any{
		"error": err.Error(),
		"kind":  string(auierr.KindOf(err)),
	}
	var e *auierr.Error
	if errors.As(err, &e) && len(e.Details) > 0 {
		payload["details"] = e.Details
	}
	writeJSON(w, statusFor(err), payload)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return auierr.Wrap(auierr.InvalidArgs, err, "invalid request body")
	}
	return nil
}

func (s *Server) observe(route string) {
	s.metrics.ObserveRequest(route)
}

// ---------------------------------------------------------------------------
// Session handlers
// ---------------------------------------------------------------------------

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	s.observe("create_session")
	var opts aui.CreateSessionOptions
	_ = json.NewDecoder(r.Body).Decode(&opts)
	writeJSON(w, http.StatusCreated, s.service.CreateSession(opts))
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	s.observe("list_sessions")
	writeJSON(w, http.StatusOK, s.service.ListSessions())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	s.observe("get_session")
	sess, err := s.service.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	s.observe("delete_session")
	if err := s.service.DeleteSession(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// NL entry points
// ---------------------------------------------------------------------------

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	s.observe("process")
	var body struct {
		Request string             `json:"request"`
		Options aui.ProcessOptions `json:"options"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.service.Process(r.Context(), chi.URLParam(r, "id"), body.Request, body.Options)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runAgent(w http.ResponseWriter, r *http.Request) {
	s.observe("run_agent")
	var body struct {
		Request string           `json:"request"`
		Options aui.AgentOptions `json:"options"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.service.RunAgent(r.Context(), chi.URLParam(r, "id"), body.Request, body.Options)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task.Snapshot())
}

func (s *Server) resumeAgent(w http.ResponseWriter, r *http.Request) {
	s.observe("resume_agent")
	var body struct {
		Answer  string           `json:"answer"`
		Options aui.AgentOptions `json:"options"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.service.ResumeAgent(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "taskID"), body.Answer, body.Options)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task.Snapshot())
}

func (s *Server) cancelAgent(w http.ResponseWriter, r *http.Request) {
	s.observe("cancel_agent")
	if err := s.service.CancelAgent(chi.URLParam(r, "taskID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) executeBql(w http.ResponseWriter, r *http.Request) {
	s.observe("execute_bql")
	var body struct {
		Pipeline string         `json:"pipeline"`
		Options  aui.BqlOptions `json:"options"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.service.ExecuteBql(r.Context(), chi.URLParam(r, "id"), body.Pipeline, body.Options)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---------------------------------------------------------------------------
// Buffer handlers
// ---------------------------------------------------------------------------

func (s *Server) createBuffer(w http.ResponseWriter, r *http.Request) {
	s.observe("create_buffer")
	var body struct {
		Name    string        `json:"name"`
		Content []buffer.Item `json:"content,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	buf, err := s.service.CreateBuffer(chi.URLParam(r, "id"), body.Name, body.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, buf)
}

func (s *Server) listBuffers(w http.ResponseWriter, r *http.Request) {
	s.observe("list_buffers")
	names, err := s.service.ListBuffers(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) getBuffer(w http.ResponseWriter, r *http.Request) {
	s.observe("get_buffer")
	buf, err := s.service.GetBuffer(chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buf)
}

func (s *Server) setBufferContent(w http.ResponseWriter, r *http.Request) {
	s.observe("set_buffer_content")
	var body struct {
		Content []buffer.Item `json:"content"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.service.SetBufferContent(chi.URLParam(r, "id"), chi.URLParam(r, "name"), body.Content); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) appendToBuffer(w http.ResponseWriter, r *http.Request) {
	s.observe("append_to_buffer")
	var body struct {
		Items []buffer.Item `json:"items"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.service.AppendToBuffer(chi.URLParam(r, "id"), chi.URLParam(r, "name"), body.Items); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	s.observe("commit")
	var body struct {
		Message string `json:"message"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	version, err := s.service.Commit(chi.URLParam(r, "id"), chi.URLParam(r, "name"), body.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, version)
}

func (s *Server) rollback(w http.ResponseWriter, r *http.Request) {
	s.observe("rollback")
	var body struct {
		Steps int `json:"steps"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Steps == 0 {
		body.Steps = 1
	}
	version, err := s.service.Rollback(chi.URLParam(r, "id"), chi.URLParam(r, "name"), body.Steps)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	s.observe("history")
	versions, err := s.service.GetHistory(chi.URLParam(r, "id"), chi.URLParam(r, "name"), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) branch(w http.ResponseWriter, r *http.Request) {
	s.observe("branch")
	var body struct {
		Branch string `json:"branch"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.service.Branch(chi.URLParam(r, "id"), chi.URLParam(r, "name"), body.Branch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) switchBranch(w http.ResponseWriter, r *http.Request) {
	s.observe("switch_branch")
	var body struct {
		Branch string `json:"branch"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.service.SwitchBranch(chi.URLParam(r, "id"), chi.URLParam(r, "name"), body.Branch); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) merge(w http.ResponseWriter, r *http.Request) {
	s.observe("merge")
	var body struct {
		Source   string          `json:"source"`
		Message  string          `json:"message,omitempty"`
		Strategy buffer.Strategy `json:"strategy,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.service.Merge(chi.URLParam(r, "id"), chi.URLParam(r, "name"), body.Source, body.Message, body.Strategy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) diff(w http.ResponseWriter, r *http.Request) {
	s.observe("diff")
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	result, err := s.service.Diff(chi.URLParam(r, "id"), chi.URLParam(r, "name"), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---------------------------------------------------------------------------
// Admin handlers
// ---------------------------------------------------------------------------

func (s *Server) checkLimits(w http.ResponseWriter, r *http.Request) {
	s.observe("check_limits")
	writeJSON(w, http.StatusOK, s.service.CheckLimits(chi.URLParam(r, "userID")))
}

func (s *Server) listTiers(w http.ResponseWriter, r *http.Request) {
	s.observe("list_tiers")
	writeJSON(w, http.StatusOK, s.service.ListTiers())
}

func (s *Server) setUserTier(w http.ResponseWriter, r *http.Request) {
	s.observe("set_user_tier")
	var body struct {
		Tier string `json:"tier"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.service.SetUserTier(chi.URLParam(r, "userID"), body.Tier); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	s.observe("get_usage")
	writeJSON(w, http.StatusOK, s.service.GetUsage(chi.URLParam(r, "userID"), chi.URLParam(r, "period")))
}

// ---------------------------------------------------------------------------
// Book handlers
// ---------------------------------------------------------------------------

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	s.observe("list_books")
	books, err := s.service.ListBooks(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	s.observe("get_book")
	b, err := s.service.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) exportBook(w http.ResponseWriter, r *http.Request) {
	s.observe("export_book")
	var body struct {
		Format book.Format `json:"format"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	artifact, err := s.service.ExportBook(r.Context(), chi.URLParam(r, "id"), body.Format)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, artifact)
}

func (s *Server) downloadArtifact(w http.ResponseWriter, r *http.Request) {
	s.observe("download_artifact")
	artifact, err := s.service.DownloadArtifact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}
