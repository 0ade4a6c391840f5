// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package render turns timeline events into styled terminal text.
//
// [FormatEvent] lays out one event with its timestamp, sender, and
// body. Message bodies are treated as markdown and rendered by
// [Markdown], which reflows paragraphs, wraps to the terminal width,
// and highlights fenced code with chroma. Non-message events (joins,
// topic changes, reactions, redactions) become one-line summaries.
//
// [FuzzyRank] and [Highlight] back the room picker in chatsync-viewer:
// they rank room names against a typed query using fzf's matcher.
//
// Output always uses the 256-color profile regardless of what the
// attached terminal reports, so rendering is deterministic in tests and
// when writing to a pipe.
package render
