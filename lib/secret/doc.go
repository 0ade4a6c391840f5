// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds homeserver credentials in protected memory and
// reads them from disk or the terminal.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock, and excludes it from core dumps
// via madvise(MADV_DONTDUMP). On Close, the memory is zeroed, unlocked,
// and unmapped.
//
// Access tokens are stored on disk either as plain text or sealed with
// age to an x25519 recipient ([SealToken]). [ReadToken] accepts both
// forms and always returns a Buffer. [Prompt] reads a password from the
// controlling terminal without echo.
package secret
