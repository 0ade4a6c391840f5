// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API endpoints that a
// syncing chat client needs.
//
// [Client] is an unauthenticated client holding the homeserver URL and
// HTTP transport. It logs in, registers guests, and polls /versions,
// returning authenticated [DirectSession] values. A DirectSession keeps
// its access token in mmap-backed memory (see lib/secret) and must be
// closed.
//
// [Session] is the interface the rest of the library programs against:
// /sync, filters, sends with caller-supplied transaction IDs, state,
// redactions, receipts, /messages pagination, and /context lookups.
// The messagingtest package provides an in-memory implementation.
//
// All API errors are returned as [*MatrixError] with the standard Matrix
// error code, HTTP status code, and any retry_after_ms hint.
// [IsMatrixError], [IsSessionInvalidated], and [RetryAfter] classify
// them. Request URLs are built by string concatenation rather than
// url.URL to avoid double-encoding path segments.
package messaging
