// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists what a sync client needs to resume after a
// restart: the sync cursor, server filter IDs, and a snapshot of each
// room.
//
// [Memory] keeps everything in process and is what tests and
// short-lived tools use. [SQLite] keeps it in a database file, each
// room snapshot CBOR-encoded and compressed.
package store

import (
	"context"
	"errors"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("store: closed")

// Store is the persistence the sync engine and client depend on.
// Implementations are safe for concurrent use.
type Store interface {
	// SyncToken returns the stored next_batch cursor, or "" before
	// the first sync.
	SyncToken(ctx context.Context) (string, error)
	SetSyncToken(ctx context.Context, token string) error

	// FilterID returns the server filter ID stored under key (a
	// filter.Filter StoreKey), or "" when none is stored.
	FilterID(ctx context.Context, key string) (string, error)
	SetFilterID(ctx context.Context, key, filterID string) error

	// Room returns the stored snapshot of roomID. The bool is false
	// when the room has never been stored.
	Room(ctx context.Context, roomID ref.RoomID) (room.Snapshot, bool, error)
	// StoreRoom replaces the stored snapshot of snapshot.RoomID.
	StoreRoom(ctx context.Context, snapshot room.Snapshot) error
	// Rooms returns every stored snapshot ordered by room ID.
	Rooms(ctx context.Context) ([]room.Snapshot, error)
	// DeleteRoom forgets a room. Deleting an unknown room is not an
	// error.
	DeleteRoom(ctx context.Context, roomID ref.RoomID) error

	Close() error
}
