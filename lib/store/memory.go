// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
)

// Memory is a Store that lives only as long as the process.
type Memory struct {
	mu        sync.Mutex
	closed    bool
	syncToken string
	filters   map[string]string
	rooms     map[ref.RoomID]room.Snapshot
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		filters: make(map[string]string),
		rooms:   make(map[ref.RoomID]room.Snapshot),
	}
}

func (m *Memory) SyncToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	return m.syncToken, nil
}

func (m *Memory) SetSyncToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.syncToken = token
	return nil
}

func (m *Memory) FilterID(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	return m.filters[key], nil
}

func (m *Memory) SetFilterID(ctx context.Context, key, filterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.filters[key] = filterID
	return nil
}

func (m *Memory) Room(ctx context.Context, roomID ref.RoomID) (room.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return room.Snapshot{}, false, ErrClosed
	}
	snapshot, ok := m.rooms[roomID]
	return snapshot, ok, nil
}

func (m *Memory) StoreRoom(ctx context.Context, snapshot room.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.rooms[snapshot.RoomID] = snapshot
	return nil
}

func (m *Memory) Rooms(ctx context.Context) ([]room.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return slices.SortedFunc(maps.Values(m.rooms), func(a, b room.Snapshot) int {
		return cmp.Compare(a.RoomID.String(), b.RoomID.String())
	}), nil
}

func (m *Memory) DeleteRoom(ctx context.Context, roomID ref.RoomID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.rooms, roomID)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
