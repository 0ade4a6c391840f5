// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"net/http"
	"time"

	"github.com/bureau-foundation/chatsync/lib/netutil"
	"github.com/bureau-foundation/chatsync/messaging"
)

// MaxRetries is the number of retries DefaultRetryPolicy allows after
// the first attempt.
const MaxRetries = 4

// BackoffBase is the delay before the first retry; each later retry
// doubles it.
const BackoffBase = 2 * time.Second

// DefaultRetryPolicy retries with exponential backoff (2s, 4s, 8s,
// 16s) and then gives up. A rate-limit response's retry_after_ms
// replaces the backoff. Bad request, unauthenticated, and forbidden
// responses are never retried, and neither is an unreachable server.
func DefaultRetryPolicy[T any](item T, attempts int, err error) (time.Duration, bool) {
	switch messaging.StatusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return 0, false
	}
	if netutil.IsConnectivityError(err) {
		return 0, false
	}
	if wait, ok := messaging.RetryAfter(err); ok && wait > 0 {
		return wait, true
	}
	if attempts > MaxRetries {
		return 0, false
	}
	return BackoffBase << (attempts - 1), true
}

// NoRetry abandons an item after its first failure.
func NoRetry[T any](T, int, error) (time.Duration, bool) {
	return 0, false
}

// LimitAttempts caps policy at maxAttempts attempts in total, rate
// limits included.
func LimitAttempts[T any](policy RetryPolicy[T], maxAttempts int) RetryPolicy[T] {
	return func(item T, attempts int, err error) (time.Duration, bool) {
		if attempts >= maxAttempts {
			return 0, false
		}
		return policy(item, attempts, err)
	}
}
