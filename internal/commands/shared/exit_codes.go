// Copyright 2025 Tom Barlow
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

package shared

import (
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/tombee/antkeeper/pkg/errors"
)

// Exit codes for antkeeper commands
const (
	ExitSuccess        = 0
	ExitWorkflowFailed = 1
	ExitInvalidInput   = 2
	ExitConfigError    = 3
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for run execution failures
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitWorkflowFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewInputError creates an error for invalid command input
func NewInputError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidInput,
		Message: msg,
		Cause:   cause,
	}
}

// NewConfigError creates an error for configuration problems
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitConfigError,
		Message: msg,
		Cause:   cause,
	}
}

// ExitCode maps an error to the process exit code HandleExitError would use.
// An explicit ExitError wins; otherwise the error taxonomy decides:
// workflow-failed is 1, validation 2, config 3. Anything else is treated as
// an execution failure.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var validationErr *pkgerrors.ValidationError
	if errors.As(err, &validationErr) {
		return ExitInvalidInput
	}

	var configErr *pkgerrors.ConfigError
	if errors.As(err, &configErr) {
		return ExitConfigError
	}

	return ExitWorkflowFailed
}

// HandleExitError prints err to stderr and exits with its mapped code.
//
// A failed workflow is an expected outcome, not a tooling error: its message
// is printed bare, exactly as the handler phrased it. Everything else gets
// the "Error:" prefix.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var wfErr *pkgerrors.WorkflowError
	if errors.As(err, &wfErr) {
		fmt.Fprintln(os.Stderr, wfErr.Message)
		os.Exit(ExitWorkflowFailed)
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(ExitCode(err))
}
