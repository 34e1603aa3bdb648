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

package execution

// Status represents the state of an execution or stage.
type Status string

const (
	// StatusNotStarted indicates the execution has not begun.
	StatusNotStarted Status = "NOT_STARTED"
	// StatusRunning indicates the execution is in progress.
	StatusRunning Status = "RUNNING"
	// StatusPaused indicates the execution was paused by a user.
	StatusPaused Status = "PAUSED"
	// StatusSuspended indicates the execution is waiting on an external
	// condition before it can proceed.
	StatusSuspended Status = "SUSPENDED"
	// StatusSucceeded indicates the execution completed successfully.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailedContinue indicates a failure that downstream stages
	// were configured to tolerate.
	StatusFailedContinue Status = "FAILED_CONTINUE"
	// StatusTerminal indicates an unrecoverable failure.
	StatusTerminal Status = "TERMINAL"
	// StatusCanceled indicates the execution was canceled before completion.
	StatusCanceled Status = "CANCELED"
	// StatusRedirect indicates control was handed to a different stage.
	StatusRedirect Status = "REDIRECT"
	// StatusStopped indicates the execution was stopped by the runner.
	StatusStopped Status = "STOPPED"
	// StatusSkipped indicates the stage was skipped.
	StatusSkipped Status = "SKIPPED"
	// StatusBuffered indicates the execution is queued behind another
	// run of the same configuration.
	StatusBuffered Status = "BUFFERED"
)

// Complete reports whether the status is a terminal state. A complete
// execution will never run again and its correlation pointer, if any,
// is eligible for cleanup.
func (s Status) Complete() bool {
	switch s {
	case StatusSucceeded, StatusFailedContinue, StatusTerminal,
		StatusCanceled, StatusStopped, StatusSkipped:
		return true
	}
	return false
}

// Halt reports whether the status should prevent downstream stages from
// starting.
func (s Status) Halt() bool {
	switch s {
	case StatusTerminal, StatusCanceled, StatusStopped:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }
