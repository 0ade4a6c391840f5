// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package timeline is the per-room event storage model.
//
// A [Timeline] is a contiguous run of events for one room together
// with the room state at either end and a pagination token for each
// direction. Events are prepended while paginating backwards and
// appended as live events arrive; the base index makes positions
// stable across prepends, so a caller holding relative index 3 keeps
// pointing at the same event after ten more are added at the start.
//
// Timelines for one room form a doubly linked chain. The chain lives
// in an [Arena]: each Timeline is addressed by a generational [ID] and
// neighbour links are stored as IDs rather than pointers. A released
// slot bumps its generation, so stale IDs resolve to nil instead of to
// whatever timeline reuses the slot.
//
// An [Event] wraps the wire payload with the client-local annotations
// the room needs: send status for local echoes, resolved sender and
// target members, and the forward-looking flag that tells readers
// whether the content or the previous content of a state event is
// current at the event's position.
//
// Timelines, arenas, and events each carry their own lock, so readers
// such as a window over the chain can proceed while a room mutates
// it. When more than one is held the order is arena, then timeline.
package timeline
