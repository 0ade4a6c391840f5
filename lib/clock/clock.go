// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source for keep-alive waits, send retry delays and
// local echo timestamps.
type Clock interface {
	Now() time.Time

	// After delivers the time on the returned channel once d has
	// passed. It delivers at once when d <= 0.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has passed unless the returned Timer
	// is stopped first.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the call. It reports false if the call already ran or
// was cancelled.
func (t *Timer) Stop() bool { return t.stop() }
