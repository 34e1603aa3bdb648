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

package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("execution", "p1")
	assert.Equal(t, "execution not found: p1", err.Error())
	assert.True(t, IsNotFound(err))
	assert.False(t, IsInvalidState(err))
}

func TestNotFoundSurvivesWrapping(t *testing.T) {
	err := Wrap(NewNotFound("execution", "p1"), "retrieving pipeline")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "retrieving pipeline")
}

func TestInvalidStateError(t *testing.T) {
	err := &InvalidStateError{ID: "o1", Operation: "pause", Current: "NOT_STARTED", Expected: "RUNNING"}
	assert.Equal(t, "unable to pause execution o1: status is NOT_STARTED, requires RUNNING", err.Error())
	assert.True(t, IsInvalidState(err))
}

func TestValidationError(t *testing.T) {
	withField := &ValidationError{Field: "stage", Message: "must be synthetic"}
	assert.Equal(t, "validation failed on stage: must be synthetic", withField.Error())

	bare := &ValidationError{Message: "bad input"}
	assert.Equal(t, "validation failed: bad input", bare.Error())
	assert.True(t, IsValidation(bare))
}

func TestBackendError(t *testing.T) {
	cause := New("connection refused")
	err := NewBackend("store", cause)
	require.Error(t, err)
	assert.True(t, IsBackend(err))
	assert.True(t, Is(err, cause), "cause must unwrap")
	assert.Contains(t, err.Error(), "store")
	assert.Contains(t, err.Error(), "connection refused")

	var backend *BackendError
	require.True(t, As(err, &backend))
	assert.Equal(t, "store", backend.Op)
}

func TestBackendErrorWithoutCause(t *testing.T) {
	err := &BackendError{Op: "storeExecutionContext", Message: "did not commit"}
	assert.Equal(t, "backend error during storeExecutionContext: did not commit", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestNewBackendNilErr(t *testing.T) {
	assert.NoError(t, NewBackend("store", nil))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
	assert.NoError(t, Wrapf(nil, "context %d", 1))
}
