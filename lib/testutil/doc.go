// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers: bounded channel
// receives for asynchronous assertions and process-unique identifiers.
package testutil
