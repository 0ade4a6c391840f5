// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"cmp"
	"slices"
	"sync"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
)

// RoomRegistry owns the rooms the engine feeds.
type RoomRegistry interface {
	// GetOrCreateRoom returns the room, creating it if needed. The
	// bool reports whether it was created by this call.
	GetOrCreateRoom(roomID ref.RoomID) (*room.Room, bool)
}

// RoomMap is a RoomRegistry that creates every room with the same
// configuration.
type RoomMap struct {
	config room.Config

	mu    sync.RWMutex
	rooms map[ref.RoomID]*room.Room
	// onCreate runs for each new room before it is returned.
	onCreate func(*room.Room)
}

// NewRoomMap returns an empty registry. onCreate, if not nil, runs for
// every room the registry creates, before anyone else can see it.
func NewRoomMap(config room.Config, onCreate func(*room.Room)) *RoomMap {
	return &RoomMap{config: config, rooms: make(map[ref.RoomID]*room.Room), onCreate: onCreate}
}

func (m *RoomMap) GetOrCreateRoom(roomID ref.RoomID) (*room.Room, bool) {
	m.mu.RLock()
	r, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if ok {
		return r, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomID]; ok {
		return r, false
	}
	r = room.New(roomID, m.config)
	if m.onCreate != nil {
		m.onCreate(r)
	}
	m.rooms[roomID] = r
	return r, true
}

// Room returns a known room.
func (m *RoomMap) Room(roomID ref.RoomID) (*room.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

// Rooms returns every known room ordered by ID.
func (m *RoomMap) Rooms() []*room.Room {
	m.mu.RLock()
	rooms := make([]*room.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()
	slices.SortFunc(rooms, func(a, b *room.Room) int {
		return cmp.Compare(a.ID().String(), b.ID().String())
	})
	return rooms
}
