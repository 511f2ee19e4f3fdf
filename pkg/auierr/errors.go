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

// Package auierr defines the error taxonomy shared by every AUI component.
//
// Each public operation of the service returns either a success value or a
// single *Error. The Kind is stable across the service API; the message is
// human-readable; Details carries structured payloads such as exceeded-limit
// records or the action an approval denial would have taken.
package auierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for clients.
type Kind string

const (
	NotFound           Kind = "not_found"
	InvalidArgs        Kind = "invalid_args"
	WrongPhase         Kind = "wrong_phase"
	UncommittedChanges Kind = "uncommitted_changes"
	NothingToCommit    Kind = "nothing_to_commit"
	NoSuchAncestor     Kind = "no_such_ancestor"
	BranchExists       Kind = "branch_exists"
	MergeConflict      Kind = "merge_conflict"
	ApprovalDenied     Kind = "approval_denied"
	TimeoutExceeded    Kind = "timeout_exceeded"
	LimitExceeded      Kind = "limit_exceeded"
	ModelNotAllowed    Kind = "model_not_allowed"
	AdapterFailure     Kind = "adapter_failure"
	StoreFailure       Kind = "store_failure"
	Internal           Kind = "internal"
)

// Error is the single error type crossing component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by kind so callers can use errors.Is with a bare kind
// sentinel, e.g. errors.Is(err, auierr.New(auierr.NotFound, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail attaches a structured detail and returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or Internal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
