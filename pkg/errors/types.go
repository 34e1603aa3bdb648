// Copyright 2025 Helmsman Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors defines the typed errors surfaced by the execution
// repository, plus small convenience wrappers around the standard
// library's errors package.
package errors

import "fmt"

// NotFoundError indicates no record exists for the given id or key.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "execution", "correlation").
	Resource string

	// ID is the identifier that was not found.
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidStateError indicates a lifecycle transition was attempted from
// a state that does not permit it.
type InvalidStateError struct {
	// ID is the execution the transition was attempted on.
	ID string

	// Operation is the attempted transition (e.g., "pause", "resume").
	Operation string

	// Current is the execution's status at the time of the attempt.
	Current string

	// Expected is the status the operation requires.
	Expected string
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("unable to %s execution %s: status is %s, requires %s",
		e.Operation, e.ID, e.Current, e.Expected)
}

// ValidationError indicates a caller-supplied argument violates a
// repository constraint.
type ValidationError struct {
	// Field identifies which input failed validation.
	Field string

	// Message is the human-readable error description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// BackendError indicates a storage backend failure. The caller decides
// whether to retry.
type BackendError struct {
	// Op is the repository operation that failed (e.g., "store", "retrieve").
	Op string

	// Message describes the failure when there is no underlying cause.
	Message string

	// Cause is the underlying backend error.
	Cause error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("backend error during %s: %v", e.Op, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("backend error during %s: %s", e.Op, e.Message)
	default:
		return fmt.Sprintf("backend error during %s", e.Op)
	}
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *BackendError) Unwrap() error {
	return e.Cause
}
