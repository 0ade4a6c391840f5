// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui is the bubbletea model behind chatsync-viewer.
//
// The model has two screens. The room picker lists every synced room,
// filtered as the user types by fzf-style matching. The room screen
// shows a [window.Window] over the room's timeline chain: it follows
// the live end while scrolled to the bottom, fetches older history
// when scrolled past the top, and sends what is typed in the composer
// as a markdown message. Local echoes appear immediately with their
// send status, and failed sends can be retried or cancelled.
//
// Room and sync notifications reach the model as messages through
// [Attach]. Background log records are shown in the status line by
// [LogHandler] instead of being written to the terminal the program
// owns.
package chatui
