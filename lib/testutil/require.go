// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the part of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch, failing the test if
// ch is closed or nothing arrives within timeout. The trailing
// arguments describe what the test was waiting for: a plain string, or
// a format string and its arguments.
//
//	n := testutil.RequireReceive(t, notifications, 5*time.Second, "waiting for %s", kind)
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, what ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed: %s", describe(what))
		}
		return v
	case <-timer.C:
		t.Fatalf("nothing received after %v: %s", timeout, describe(what))
	}
	panic("unreachable")
}

// RequireNoReceive fails the test if ch yields a value within quiet.
// Use it to show that something is being held back, such as a queued
// send behind one in flight.
func RequireNoReceive[T any](t TB, ch <-chan T, quiet time.Duration, what ...any) {
	t.Helper()
	timer := time.NewTimer(quiet) //nolint:realclock bounded negative check
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value %v: %s", v, describe(what))
		}
		t.Fatalf("channel closed unexpectedly: %s", describe(what))
	case <-timer.C:
	}
}

// RequireClosed waits for ch to close (or yield a value) within
// timeout.
//
//	testutil.RequireClosed(t, engine.Done(), 5*time.Second, "engine stopped")
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, what ...any) {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("still open after %v: %s", timeout, describe(what))
	}
}

func describe(what []any) string {
	switch {
	case len(what) == 0:
		return "(no description)"
	case len(what) == 1:
		return fmt.Sprint(what[0])
	}
	if format, ok := what[0].(string); ok {
		return fmt.Sprintf(format, what[1:]...)
	}
	return fmt.Sprint(what...)
}
