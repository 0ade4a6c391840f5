// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package room maintains the client-side model of one Matrix room: a
// chain of timelines, the index from event ID to timeline, receipts,
// account data, typing and unread state, and the bookkeeping for
// local echoes of events the client is sending.
//
// Every mutation takes the room's lock, so one writer at a time
// changes a room. Observers registered with [Room.Subscribe] are
// called after the lock is released, in the order the changes were
// made; an observer may call back into the room.
//
// The merge algorithm in [Room.AddEventsToTimeline] is shared by live
// sync, backward and forward pagination, and /context lookups. It
// stitches timelines together when a batch runs into an event that is
// already resident elsewhere in the chain, which is how gaps left by
// limited syncs close once the caller paginates across them.
package room
