// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds what the chatsync commands share: the command
// logger, exit-code errors, and [Connect], which turns a loaded
// [config.Config] into a running [client.Client] with its session,
// store, and filter wired up.
package cli
