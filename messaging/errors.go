// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// MatrixError represents a structured error response from the Matrix homeserver.
// Callers can use errors.As to extract the structured information:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) {
//	    if matrixErr.Code == ErrCodeNotFound { ... }
//	}
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN", "M_UNKNOWN_TOKEN").
	Code string `json:"errcode"`
	// Message is the human-readable error description from the server.
	Message string `json:"error"`
	// RetryAfterMs is the server's requested wait before retrying, set
	// on M_LIMIT_EXCEEDED responses. Zero when absent.
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
	// SoftLogout is set on M_UNKNOWN_TOKEN when the server expects the
	// client to re-authenticate without discarding local state.
	SoftLogout bool `json:"soft_logout,omitempty"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// ErrMalformedResponse matches a successful response whose body
// could not be decoded.
var ErrMalformedResponse = errors.New("messaging: malformed response")

// MalformedSyncError is returned by Sync when the server answered 200
// but the body does not decode as a sync response. NextBatch holds the
// batch token if it could still be read, so the caller can move past
// a batch that would fail the same way on every retry.
type MalformedSyncError struct {
	NextBatch string
	Err       error
}

func (e *MalformedSyncError) Error() string {
	return fmt.Sprintf("messaging: malformed sync response (next_batch %q): %v", e.NextBatch, e.Err)
}

func (e *MalformedSyncError) Unwrap() []error {
	return []error{ErrMalformedResponse, e.Err}
}

// Standard Matrix error codes.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeMissingToken  = "M_MISSING_TOKEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnrecognized  = "M_UNRECOGNIZED"
	ErrCodeUnknown       = "M_UNKNOWN"
	ErrCodeInvalidParam  = "M_INVALID_PARAM"
	ErrCodeMissingParam  = "M_MISSING_PARAM"
	ErrCodeBadJSON       = "M_BAD_JSON"
	ErrCodeGuestDenied   = "M_GUEST_ACCESS_FORBIDDEN"
)

// IsMatrixError checks whether err is a *MatrixError with the given error code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// IsSessionInvalidated reports whether the homeserver rejected the
// access token. The session cannot recover without new credentials.
func IsSessionInvalidated(err error) bool {
	return IsMatrixError(err, ErrCodeUnknownToken)
}

// IsRateLimited reports whether the server rejected the request for
// exceeding its rate limit.
func IsRateLimited(err error) bool {
	return IsMatrixError(err, ErrCodeLimitExceeded) || StatusCode(err) == http.StatusTooManyRequests
}

// RetryAfter returns the wait the server requested on a rate-limited
// response. The second result is false when err is not a rate limit
// or carries no hint.
func RetryAfter(err error) (time.Duration, bool) {
	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		return 0, false
	}
	if !IsRateLimited(err) || matrixErr.RetryAfterMs <= 0 {
		return 0, false
	}
	return time.Duration(matrixErr.RetryAfterMs) * time.Millisecond, true
}

// StatusCode returns the HTTP status of a Matrix error response, or 0
// when err did not come from a server response.
func StatusCode(err error) int {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.StatusCode
	}
	return 0
}
