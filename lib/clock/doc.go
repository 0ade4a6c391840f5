// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets the sync engine and the send scheduler wait
// without touching the time package, so tests can drive retries and
// keep-alive delays by hand.
//
// A test starts the code under test, calls WaitForTimers until the
// expected waits are registered on the Fake clock, then calls Advance.
package clock
