// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without printing an extra
// error message. The command is expected to have written its own
// output already.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. A command's main checks for this
// method on returned errors.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// UsageError reports bad flags, arguments, or configuration. It exits
// with code 2 and may carry a hint for fixing the problem.
type UsageError struct {
	Err  error
	Hint string
}

// Usage returns a UsageError with a formatted message. %w is honoured.
func Usage(format string, args ...any) *UsageError {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// WithHint attaches a suggestion shown after the error.
func (e *UsageError) WithHint(hint string) *UsageError {
	e.Hint = hint
	return e
}

func (e *UsageError) Error() string {
	if e.Hint == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n  hint: " + e.Hint
}

func (e *UsageError) Unwrap() error { return e.Err }

func (e *UsageError) ExitCode() int { return 2 }
