// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML file shared by chatsync-tail and
// chatsync-viewer.
//
// The file is named by CHATSYNC_CONFIG ([Load]) or a --config flag
// ([LoadFile]); nothing is discovered implicitly. It has five
// sections:
//
//   - homeserver: URL, user ID, token file (plain or age-sealed), guest
//   - sync: long-poll timing, filter file, pending echo ordering
//   - window: bounds for timeline windows
//   - store: SQLite path and snapshot compression
//   - sender: retry attempts for outgoing events
//
// A development, staging or production block overrides string and
// numeric fields when environment selects it. Production requires an
// https homeserver. Paths and the homeserver URL expand ${HOME} and
// ${VAR:-default} after overrides are applied.
//
// [Config.Validate] reports every problem at once.
package config
